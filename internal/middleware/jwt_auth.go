package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/auth"
)

const (
	principalIDKey   = "principalID"
	principalNameKey = "principalName"
)

// PrincipalAuth 已登录主体认证中间件
type PrincipalAuth struct {
	tokens *auth.PrincipalTokens
	log    *zap.Logger
}

// NewPrincipalAuth 创建主体认证中间件
func NewPrincipalAuth(tokens *auth.PrincipalTokens, log *zap.Logger) *PrincipalAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrincipalAuth{tokens: tokens, log: log}
}

// RequireAuth 要求携带有效的访问令牌
func (pa *PrincipalAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "请先登录")
			return
		}

		principal, err := pa.tokens.Authenticate(token)
		if err != nil {
			pa.log.Debug("invalid principal token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			abort(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "登录已失效，请重新登录")
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// OptionalAuth 可选认证：令牌有效时记录主体，无效或缺失时按匿名处理
//
// 入会接口对匿名用户开放，但所有者登录后可以跳过哈希校验。
func (pa *PrincipalAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if principal, err := pa.tokens.Authenticate(token); err == nil {
				setPrincipal(c, principal)
			}
		}
		c.Next()
	}
}

// PrincipalID 返回当前请求的主体 ID，匿名请求返回空字符串
func PrincipalID(c *gin.Context) string {
	return c.GetString(principalIDKey)
}

func setPrincipal(c *gin.Context, principal *auth.Principal) {
	c.Set(principalIDKey, principal.ID)
	c.Set(principalNameKey, principal.Name)
}

// extractToken 依次从 Authorization 头和 access_token cookie 中提取令牌
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}
	return ""
}
