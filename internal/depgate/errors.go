package depgate

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureClass 外部依赖失败的类别
type FailureClass int

const (
	// ClassTransport 连接失败、超时、5xx 及其他无法识别的失败
	ClassTransport FailureClass = iota
	// ClassAuth 凭据被拒绝（401/403）
	ClassAuth
)

// String 返回类别名称
func (c FailureClass) String() string {
	if c == ClassAuth {
		return "auth"
	}
	return "transport"
}

// StatusError 携带外部依赖返回的状态码
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("dependency responded %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("dependency responded %d %s", e.Status, http.StatusText(e.Status))
}

// Classify 根据错误携带的状态码区分失败类别
//
// 只有 401/403 视为凭据问题，其余一律按传输失败处理，不触发凭据刷新。
func Classify(err error) FailureClass {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ClassAuth
		}
	}
	return ClassTransport
}
