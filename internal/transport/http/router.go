package httptransport

import (
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/config"
	"roomgate/backend/internal/health"
	"roomgate/backend/internal/middleware"
	"roomgate/backend/internal/monitoring"
	"roomgate/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config             *config.Config
	MeetingService     *service.MeetingService
	AccessService      *service.AccessService
	IntegrationService *service.IntegrationService
	InvitationService  *service.InvitationService
	PrincipalTokens    *auth.PrincipalTokens
	Metrics            *monitoring.Metrics
	Health             *health.HealthChecker
	Logger             *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(middleware.DefaultBodyLimit))
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	principalAuth := middleware.NewPrincipalAuth(deps.PrincipalTokens, log)
	secureCookie := strings.HasPrefix(deps.Config.Server.PublicURL, "https://")

	meetingHandler := NewMeetingHandler(deps.MeetingService, deps.InvitationService, log)
	joinHandler := NewJoinHandler(deps.AccessService, log)
	integrationHandler := NewIntegrationHandler(deps.IntegrationService, log)

	// 健康检查与指标
	router.GET("/health/live", gin.WrapH(deps.Health.LiveHandler()))
	router.GET("/health/ready", gin.WrapH(deps.Health.ReadyHandler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 入会接口对匿名用户开放；登录的所有者可跳过哈希校验
	joinGroup := router.Group("/join", principalAuth.OptionalAuth())
	{
		joinGroup.Use(middleware.NoStore())
		joinGroup.GET("/:identifier", joinHandler.joinByHash)
		joinGroup.GET("/:identifier/mail", joinHandler.joinByMail)
		joinGroup.POST("/code", middleware.ClientSession(deps.Config.Join.AttemptTTL, secureCookie), joinHandler.joinByCode)
	}

	v1 := router.Group("/api/v1", principalAuth.RequireAuth())
	{
		meetings := v1.Group("/meetings")
		meetings.POST("", meetingHandler.create)
		meetings.GET("/:id", meetingHandler.get)
		meetings.DELETE("/:id", meetingHandler.delete)
		meetings.POST("/:id/codes", meetingHandler.regenerateCodes)
		meetings.POST("/:id/secrets", meetingHandler.rotateSecrets)
		meetings.POST("/:id/invitations", meetingHandler.invite)

		integrations := v1.Group("/integrations")
		integrations.GET("/filestorage", integrationHandler.fileStorage)
		integrations.GET("/identity/:subject", integrationHandler.identity)
	}

	return router
}

// corsConfig 构造 CORS 配置；未配置来源或包含 "*" 时允许所有来源并关闭凭证支持
func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	if allowAll {
		cfg.AllowOrigins = nil
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cfg
}
