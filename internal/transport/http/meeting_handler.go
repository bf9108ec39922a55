package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/middleware"
	"roomgate/backend/internal/service"
)

// MeetingHandler 会议管理接口，仅所有者可用
type MeetingHandler struct {
	meetings    *service.MeetingService
	invitations *service.InvitationService
	log         *zap.Logger
}

// NewMeetingHandler 创建会议管理处理器
func NewMeetingHandler(meetings *service.MeetingService, invitations *service.InvitationService, log *zap.Logger) *MeetingHandler {
	return &MeetingHandler{meetings: meetings, invitations: invitations, log: log}
}

type createMeetingRequest struct {
	Name      string   `json:"name" binding:"required,max=255"`
	Delegates []string `json:"delegates" binding:"max=20"`
	Ephemeral bool     `json:"ephemeral"`
}

type inviteRequest struct {
	Recipients []string `json:"recipients" binding:"required,min=1,max=50,dive,email"`
}

// meetingResponse 返回给所有者的会议视图
type meetingResponse struct {
	Meeting *domain.Meeting `json:"meeting"`
	Links   service.Links   `json:"links"`
}

func (h *MeetingHandler) view(meeting *domain.Meeting) meetingResponse {
	return meetingResponse{Meeting: meeting, Links: h.meetings.Links(meeting)}
}

func (h *MeetingHandler) create(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	meeting, err := h.meetings.Create(c.Request.Context(), service.CreateMeetingInput{
		Name:      req.Name,
		OwnerID:   middleware.PrincipalID(c),
		Delegates: req.Delegates,
		Ephemeral: req.Ephemeral,
	})
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Created(c, h.view(meeting))
}

func (h *MeetingHandler) get(c *gin.Context) {
	meeting, err := h.meetings.Get(c.Request.Context(), c.Param("id"), middleware.PrincipalID(c))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Success(c, h.view(meeting))
}

func (h *MeetingHandler) delete(c *gin.Context) {
	if err := h.meetings.Delete(c.Request.Context(), c.Param("id"), middleware.PrincipalID(c)); err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	NoContent(c)
}

func (h *MeetingHandler) regenerateCodes(c *gin.Context) {
	meeting, err := h.meetings.RegenerateCodes(c.Request.Context(), c.Param("id"), middleware.PrincipalID(c))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Success(c, h.view(meeting))
}

func (h *MeetingHandler) rotateSecrets(c *gin.Context) {
	meeting, err := h.meetings.RotateSecrets(c.Request.Context(), c.Param("id"), middleware.PrincipalID(c))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Success(c, h.view(meeting))
}

func (h *MeetingHandler) invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	meeting, err := h.meetings.Get(ctx, c.Param("id"), middleware.PrincipalID(c))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	if err := h.invitations.Invite(ctx, meeting, req.Recipients); err != nil {
		respondError(c, h.log, err, gin.H{"detail": err.Error()})
		return
	}
	Success(c, gin.H{"sent": len(req.Recipients)})
}
