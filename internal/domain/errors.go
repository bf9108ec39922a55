package domain

import "fmt"

// ErrorCode 访问控制错误分类
type ErrorCode string

const (
	CodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	CodeExpired               ErrorCode = "EXPIRED"
	CodeDependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
	CodeAllocationExhausted   ErrorCode = "ALLOCATION_EXHAUSTED"
	CodeAbuseDetected         ErrorCode = "ABUSE_DETECTED"
)

// Error 带分类码的业务错误，errors.Is 按分类码匹配
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

var (
	// ErrUnauthorized 哈希或会议码不匹配任何角色；不区分会议是否存在
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "access denied"}
	// ErrExpired 邮件链接已过期
	ErrExpired = &Error{Code: CodeExpired, Message: "link expired"}
	// ErrDependencyUnavailable 外部依赖熔断或调用失败
	ErrDependencyUnavailable = &Error{Code: CodeDependencyUnavailable, Message: "feature temporarily disabled"}
	// ErrAllocationExhausted 无法分配空闲拨入码
	ErrAllocationExhausted = &Error{Code: CodeAllocationExhausted, Message: "no free numeric code"}
	// ErrAbuseDetected 尝试次数超过阈值，需要验证码
	ErrAbuseDetected = &Error{Code: CodeAbuseDetected, Message: "captcha required"}
)

// Error 返回错误信息
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回原因
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按分类码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Wrap 以指定分类包装底层错误
func Wrap(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}
