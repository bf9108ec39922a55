package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/mailer"
	"roomgate/backend/internal/service"
	"roomgate/backend/internal/storage"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason domain.ErrorCode
	}{
		{"哈希不匹配", domain.ErrUnauthorized, http.StatusUnauthorized, domain.CodeUnauthorized},
		{"邮件链接过期", domain.ErrExpired, http.StatusGone, domain.CodeExpired},
		{"需要验证码", domain.ErrAbuseDetected, http.StatusPreconditionRequired, domain.CodeAbuseDetected},
		{"依赖不可用（包装）", domain.Wrap(domain.ErrDependencyUnavailable, errors.New("breaker open")), http.StatusServiceUnavailable, domain.CodeDependencyUnavailable},
		{"拨入码耗尽", domain.Wrap(domain.ErrAllocationExhausted, storage.ErrPinConflict), http.StatusInternalServerError, domain.CodeAllocationExhausted},
		{"会议不存在", storage.ErrMeetingNotFound, http.StatusNotFound, ReasonNotFound},
		{"收件人格式错误", fmt.Errorf("%w %q: %w", service.ErrInvalidRecipient, "x", domain.ErrInvalidEmail), http.StatusBadRequest, ReasonInvalidRequest},
		{"邮件未配置", mailer.ErrNotConfigured, http.StatusServiceUnavailable, ReasonMailNotConfigured},
		{"未知错误", errors.New("boom"), http.StatusInternalServerError, ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason, msg := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, reason)
			assert.NotEmpty(t, msg)
		})
	}
}
