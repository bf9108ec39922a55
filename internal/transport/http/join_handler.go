package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/join"
	"roomgate/backend/internal/middleware"
	"roomgate/backend/internal/service"
)

// JoinHandler 入会接口
type JoinHandler struct {
	access *service.AccessService
	log    *zap.Logger
}

// NewJoinHandler 创建入会处理器
func NewJoinHandler(access *service.AccessService, log *zap.Logger) *JoinHandler {
	return &JoinHandler{access: access, log: log}
}

type joinCodeRequest struct {
	Code         string `json:"code" form:"code"`
	CaptchaToken string `json:"captcha_token" form:"captcha_token"`
}

// joinResponse 入会成功后返回的会议信息（不含密钥）
type joinResponse struct {
	MeetingID  string `json:"meetingId"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

func newJoinResponse(meeting *domain.Meeting, role domain.Role) joinResponse {
	return joinResponse{
		MeetingID:  meeting.ID,
		Identifier: meeting.Identifier,
		Name:       meeting.Name,
		Role:       role.String(),
	}
}

func (h *JoinHandler) joinByHash(c *gin.Context) {
	access, err := h.access.JoinByHash(c.Request.Context(), c.Param("identifier"), c.Query("hash"), middleware.PrincipalID(c))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Success(c, newJoinResponse(access.Meeting, access.Role))
}

func (h *JoinHandler) joinByMail(c *gin.Context) {
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		respondError(c, h.log, domain.ErrUnauthorized, nil)
		return
	}

	access, err := h.access.JoinByMail(c.Request.Context(), c.Param("identifier"), expires, c.Query("hash"), middleware.PrincipalID(c))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Success(c, newJoinResponse(access.Meeting, access.Role))
}

func (h *JoinHandler) joinByCode(c *gin.Context) {
	var req joinCodeRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	decision, err := h.access.JoinByCode(c.Request.Context(), join.Request{
		SessionID:    middleware.SessionID(c),
		Code:         req.Code,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     c.ClientIP(),
	})
	if err != nil {
		var data interface{}
		if decision != nil {
			data = gin.H{"captchaRequired": decision.CaptchaRequired}
		}
		if errors.Is(err, domain.ErrAbuseDetected) {
			data = gin.H{"captchaRequired": true}
		}
		respondError(c, h.log, err, data)
		return
	}

	Success(c, newJoinResponse(decision.Meeting, decision.Role))
}
