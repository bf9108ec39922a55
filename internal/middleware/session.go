package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionCookie 客户端会话 cookie 名称
const SessionCookie = "roomgate_session"

const sessionIDKey = "sessionID"

// ClientSession 确保每个客户端都有会话标识
//
// 会议码入会的失败计数按会话统计；cookie 缺失或格式不对时签发新的会话。
func ClientSession(ttl time.Duration, secure bool) gin.HandlerFunc {
	maxAge := int(ttl / time.Second)
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(sessionID) != nil {
			sessionID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sessionID, maxAge, "/", "", secure, true)
		}
		c.Set(sessionIDKey, sessionID)
		c.Next()
	}
}

// SessionID 返回当前请求的会话标识
func SessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
