package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/config"
	"roomgate/backend/internal/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTokens() *auth.PrincipalTokens {
	return auth.NewPrincipalTokens(&config.JWTConfig{
		Secret:       "principal-secret-0123456789abcdefghij",
		Issuer:       "roomgate",
		AccessExpiry: 15 * time.Minute,
	}, nil)
}

func TestPrincipalAuth(t *testing.T) {
	tokens := newTokens()
	pa := NewPrincipalAuth(tokens, nil)

	router := gin.New()
	router.GET("/required", pa.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, PrincipalID(c))
	})
	router.GET("/optional", pa.OptionalAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "principal=%s", PrincipalID(c))
	})

	issued, err := tokens.Issue(auth.Principal{ID: "owner-1", Name: "Owner"})
	require.NoError(t, err)

	t.Run("携带有效令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/required", nil)
		req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "owner-1", rec.Body.String())
	})

	t.Run("缺少令牌", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/required", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"reason":"AUTHENTICATION_REQUIRED"`)
	})

	t.Run("cookie 中的令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/required", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: issued.AccessToken})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("可选认证下无效令牌按匿名处理", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/optional", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "principal=", rec.Body.String())
	})
}

func TestClientSession(t *testing.T) {
	router := gin.New()
	router.Use(ClientSession(24*time.Hour, false))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})

	t.Run("首次访问签发会话", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 86400, cookies[0].MaxAge)
		assert.Equal(t, cookies[0].Value, rec.Body.String())
		assert.NoError(t, uuid.Validate(rec.Body.String()))
	})

	t.Run("沿用已有会话", func(t *testing.T) {
		existing := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: existing})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, existing, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("伪造的会话值被替换", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "../../etc"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.NotEqual(t, "../../etc", rec.Body.String())
		assert.Len(t, rec.Result().Cookies(), 1)
	})
}

func TestMonitoringMiddleware(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	mm := NewMonitoringMiddleware(metrics, nil)

	router := gin.New()
	router.Use(mm.PanicRecovery(), mm.HTTPMetrics())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := httptest.NewRecorder()
	metrics.HTTPHandler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, body.Body.String(), "roomgate_panics_total 1")
	assert.Contains(t, body.Body.String(), `endpoint="unmatched"`)
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeaders(), RequestSizeLimit(16))
	router.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 1024
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"INVALID_REQUEST"`)
}

func TestNoStore(t *testing.T) {
	router := gin.New()
	router.GET("/join/:identifier", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/join/abc?hash=x", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, levelFor(http.StatusServiceUnavailable))
	assert.Equal(t, zapcore.InfoLevel, levelFor(http.StatusBadRequest))
	assert.Equal(t, zapcore.DebugLevel, levelFor(http.StatusUnauthorized))
	assert.Equal(t, zapcore.DebugLevel, levelFor(http.StatusPreconditionRequired))
	assert.Equal(t, zapcore.DebugLevel, levelFor(http.StatusOK))
}
