package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/bootstrap"
	"roomgate/backend/internal/breaker"
	"roomgate/backend/internal/config"
	"roomgate/backend/internal/depgate"
	"roomgate/backend/internal/health"
	"roomgate/backend/internal/join"
	"roomgate/backend/internal/logger"
	"roomgate/backend/internal/mailer"
	"roomgate/backend/internal/monitoring"
	"roomgate/backend/internal/pin"
	"roomgate/backend/internal/service"
	httptransport "roomgate/backend/internal/transport/http"
)

// main 启动会议入会服务（HTTP API、健康检查与指标）。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting roomgate server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	clock := clockwork.NewRealClock()

	// 初始化存储层
	store, err := bootstrap.OpenStore(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	kv, err := bootstrap.OpenCache(cfg, clock, log)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer kv.Close()

	// 初始化监控系统
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	healthDeps := map[string]health.Pinger{"storage": store}
	if kv.Redis != nil {
		healthDeps["cache"] = kv.Redis
	}
	healthChecker := health.NewHealthChecker(healthDeps, log)

	// 外部依赖门控
	endpoints := breaker.New("endpoint", kv.Store, cfg.Breaker.EndpointBackoff, clock, log)
	principals := breaker.New("principal", kv.Store, cfg.Breaker.PrincipalBackoff, clock, log)
	endpoints.SetTripHook(metrics.RecordBreakerTrip)
	principals.SetTripHook(metrics.RecordBreakerTrip)
	deps := depgate.New(endpoints, principals, cfg.Breaker.CallTimeout, log)
	deps.SetObserver(metrics.RecordDependency)

	httpClient := &http.Client{Timeout: cfg.Breaker.CallTimeout}

	// 哈希与角色判定
	authority, err := auth.NewAuthority(cfg.Security.InstallationSecret, clock)
	if err != nil {
		return err
	}
	resolver := auth.NewResolver(authority, cfg.Features.AuthenticatedAttendee)
	principalTokens := auth.NewPrincipalTokens(&cfg.JWT, clock)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
	)

	// 会议码入会门控
	var captcha join.CaptchaVerifier
	if cfg.Captcha.Enabled {
		captcha = join.NewSiteVerifyClient(cfg.Captcha.Endpoint, cfg.Captcha.Secret, httpClient)
	}
	joinGate := join.NewGate(store, join.NewAttemptCounter(kv.Store, cfg.Join.AttemptTTL), deps, captcha, join.Config{
		AttemptThreshold: int64(cfg.Join.AttemptThreshold),
		CaptchaEnabled:   cfg.Captcha.Enabled,
	}, log)
	joinGate.SetObserver(metrics.RecordJoin)

	// 初始化服务层
	allocator := pin.NewAllocator(store, clock, pin.Options{
		Retention:   cfg.Pin.Retention,
		MaxAttempts: cfg.Pin.MaxAttempts,
	}, log)
	meetingService := service.NewMeetingService(store, allocator, authority, resolver, cfg.Server.PublicURL, log)
	meetingService.SetAllocationHook(metrics.RecordAllocation)

	accessService := service.NewAccessService(store, resolver, authority, joinGate, log)

	var (
		identity    *service.IdentityClient
		credentials service.CredentialStore
	)
	if cfg.Integrations.IdentityURL != "" {
		identity = service.NewIdentityClient(cfg.Integrations.IdentityURL, httpClient)
		credentials = service.NewCachedCredentialStore(kv.Store, identity)
	}
	integrationService := service.NewIntegrationService(deps, credentials, identity, cfg.Integrations.FileStorageURL, httpClient, log)

	invitationService := service.NewInvitationService(authority, mailer.New(&cfg.Mail, log), cfg.Server.PublicURL, cfg.Mail.LinkTTL, log)
	invitationService.SetResultHook(metrics.RecordInvitation)

	// 创建 HTTP 服务器
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:             cfg,
		MeetingService:     meetingService,
		AccessService:      accessService,
		IntegrationService: integrationService,
		InvitationService:  invitationService,
		PrincipalTokens:    principalTokens,
		Metrics:            metrics,
		Health:             healthChecker,
		Logger:             log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
