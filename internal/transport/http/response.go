package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomgate/backend/internal/domain"
)

// 非访问控制类失败的原因码，与 domain.ErrorCode 共用一个取值空间
const (
	ReasonInvalidRequest    domain.ErrorCode = "INVALID_REQUEST"
	ReasonNotFound          domain.ErrorCode = "NOT_FOUND"
	ReasonMailNotConfigured domain.ErrorCode = "MAIL_NOT_CONFIGURED"
	ReasonInternal          domain.ErrorCode = "INTERNAL"
)

// Response 统一响应结构
//
// Reason 只在失败时出现。前端按 Reason 区分"链接失效""需要验证码""功能暂不可用"，
// 不解析 Msg。
type Response struct {
	Code   int              `json:"code"`
	Reason domain.ErrorCode `json:"reason,omitempty"`
	Msg    string           `json:"msg"`
	Data   interface{}      `json:"data,omitempty"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Msg: "成功", Data: data})
}

// Created 会议创建成功（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: http.StatusCreated, Msg: "会议已创建", Data: data})
}

// NoContent 204，无响应体
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, ReasonInvalidRequest, msg, nil)
}

// Fail 失败响应
func Fail(c *gin.Context, status int, reason domain.ErrorCode, msg string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{
		Code:   status,
		Reason: reason,
		Msg:    msg,
		Data:   data,
	})
}
