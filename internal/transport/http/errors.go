package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/mailer"
	"roomgate/backend/internal/service"
	"roomgate/backend/internal/storage"
)

// 通用错误消息
const (
	MsgInvalidRequest    = "请求参数格式错误"
	MsgAccessDenied      = "会议不存在或链接无效"
	MsgLinkExpired       = "链接已过期"
	MsgCaptchaRequired   = "captcha_required"
	MsgFeatureDisabled   = "feature temporarily disabled"
	MsgMeetingNotFound   = "会议不存在"
	MsgIdentityNotFound  = "用户不存在"
	MsgMailNotConfigured = "邮件服务未配置"
	MsgInternalError     = "服务器内部错误，请稍后重试"
)

// errorMapping 错误到 HTTP 状态码、原因码与消息的映射，按顺序匹配
var errorMapping = []struct {
	err    error
	status int
	reason domain.ErrorCode
	msg    string
}{
	{domain.ErrUnauthorized, http.StatusUnauthorized, domain.CodeUnauthorized, MsgAccessDenied},
	{domain.ErrExpired, http.StatusGone, domain.CodeExpired, MsgLinkExpired},
	{domain.ErrAbuseDetected, http.StatusPreconditionRequired, domain.CodeAbuseDetected, MsgCaptchaRequired},
	{domain.ErrDependencyUnavailable, http.StatusServiceUnavailable, domain.CodeDependencyUnavailable, MsgFeatureDisabled},
	{domain.ErrAllocationExhausted, http.StatusInternalServerError, domain.CodeAllocationExhausted, MsgInternalError},
	{storage.ErrMeetingNotFound, http.StatusNotFound, ReasonNotFound, MsgMeetingNotFound},
	{service.ErrIdentityNotFound, http.StatusNotFound, ReasonNotFound, MsgIdentityNotFound},
	{service.ErrInvalidMeetingName, http.StatusBadRequest, ReasonInvalidRequest, "会议名称不能为空，长度不超过 255 且不含控制字符"},
	{service.ErrOwnerRequired, http.StatusBadRequest, ReasonInvalidRequest, "缺少会议所有者"},
	{service.ErrNoRecipients, http.StatusBadRequest, ReasonInvalidRequest, "收件人不能为空"},
	{service.ErrInvalidRecipient, http.StatusBadRequest, ReasonInvalidRequest, "收件人邮箱格式错误"},
	{mailer.ErrNotConfigured, http.StatusServiceUnavailable, ReasonMailNotConfigured, MsgMailNotConfigured},
}

// statusFor 返回错误对应的状态码、原因码与消息；未识别的错误视为内部错误
func statusFor(err error) (int, domain.ErrorCode, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.reason, m.msg
		}
	}
	return http.StatusInternalServerError, ReasonInternal, MsgInternalError
}

// respondError 写入错误响应
//
// 4xx 按调试级别记录；503 按警告记录；其余 5xx（含拨入码分配耗尽）按错误记录。
func respondError(c *gin.Context, log *zap.Logger, err error, data interface{}) {
	status, reason, msg := statusFor(err)
	fields := []zap.Field{
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.String("reason", string(reason)),
		zap.Error(err),
	}
	switch {
	case status == http.StatusServiceUnavailable:
		log.Warn("request failed", fields...)
	case status >= http.StatusInternalServerError:
		log.Error("request failed", fields...)
	default:
		log.Debug("request rejected", fields...)
	}
	Fail(c, status, reason, msg, data)
}
