package depgate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"roomgate/backend/internal/breaker"
	"roomgate/backend/internal/domain"
)

// Outcome 一次门控检查的结果，用于指标统计
type Outcome string

const (
	OutcomeAvailable        Outcome = "available"
	OutcomePrincipalBlocked Outcome = "principal_blocked"
	OutcomeEndpointBlocked  Outcome = "endpoint_blocked"
	OutcomeTransportFailure Outcome = "transport_failure"
	OutcomeAuthFailure      Outcome = "auth_failure"
)

// Call 描述一次受保护的外部调用
type Call struct {
	// Name 依赖名称（filestorage、identity、captcha），仅用于日志和指标
	Name string
	// Endpoint 端点熔断键，通常是依赖的基础 URL
	Endpoint string
	// Principal 主体熔断键，匿名调用留空
	Principal string
	// Op 实际的外部调用
	Op func(ctx context.Context) error
	// Verify 为 false 时只检查熔断状态，不调用 Op
	Verify bool
	// RetryOnAuthError 凭据被拒绝时刷新一次并重试一次
	RetryOnAuthError bool
	// Refresh 刷新凭据，可为空（此时直接重试）
	Refresh func(ctx context.Context) error
	// RefreshEndpoint 签发凭据的身份提供方熔断键，可为空
	RefreshEndpoint string
}

// Gate 依赖门控
//
// 同时持有端点熔断器和主体熔断器：端点故障拦截所有人，
// 某个用户的凭据故障只拦截该用户。
type Gate struct {
	endpoints  *breaker.Breaker
	principals *breaker.Breaker
	timeout    time.Duration
	refreshes  singleflight.Group
	log        *zap.Logger
	observe    func(name string, outcome Outcome)
}

// New 创建依赖门控
//
// timeout 为单次 Op 的超时时间，<= 0 时不额外设置超时。
func New(endpoints, principals *breaker.Breaker, timeout time.Duration, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		endpoints:  endpoints,
		principals: principals,
		timeout:    timeout,
		log:        log,
	}
}

// SetObserver 设置结果回调
func (g *Gate) SetObserver(fn func(name string, outcome Outcome)) {
	g.observe = fn
}

// CheckAvailable 判断依赖当前是否可用
func (g *Gate) CheckAvailable(ctx context.Context, call Call) bool {
	return g.Do(ctx, call) == nil
}

// Do 执行受保护的调用
//
// 依赖不可用时返回包装了 domain.ErrDependencyUnavailable 的错误，Cause 为最后一次失败原因。
func (g *Gate) Do(ctx context.Context, call Call) error {
	if call.Principal != "" && g.principals.IsBlocked(ctx, call.Principal) {
		g.record(call, OutcomePrincipalBlocked)
		return domain.Wrap(domain.ErrDependencyUnavailable, errors.New("principal circuit open"))
	}
	if g.endpoints.IsBlocked(ctx, call.Endpoint) {
		g.record(call, OutcomeEndpointBlocked)
		return domain.Wrap(domain.ErrDependencyUnavailable, errors.New("endpoint circuit open"))
	}
	if !call.Verify || call.Op == nil {
		g.record(call, OutcomeAvailable)
		return nil
	}

	err := g.run(ctx, call.Op)
	if err == nil {
		g.succeed(ctx, call)
		return nil
	}

	if Classify(err) == ClassAuth && call.RetryOnAuthError {
		if call.Refresh != nil {
			if refreshErr := g.refresh(ctx, call); refreshErr != nil {
				g.log.Warn("credential refresh failed",
					zap.String("dependency", call.Name),
					zap.String("principal", call.Principal),
					zap.Error(refreshErr),
				)
				return g.fail(ctx, call, ClassAuth, refreshErr)
			}
		}
		err = g.run(ctx, call.Op)
		if err == nil {
			g.succeed(ctx, call)
			return nil
		}
	}

	return g.fail(ctx, call, Classify(err), err)
}

func (g *Gate) run(ctx context.Context, op func(context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return op(ctx)
}

// refresh 同一主体的并发刷新只执行一次
//
// 身份提供方本身不可达（传输类失败）时打开它的端点熔断器，
// 熔断期间不再发起刷新。
func (g *Gate) refresh(ctx context.Context, call Call) error {
	if call.RefreshEndpoint != "" && g.endpoints.IsBlocked(ctx, call.RefreshEndpoint) {
		return errors.New("refresh endpoint circuit open")
	}

	key := call.Principal
	if key == "" {
		key = call.Endpoint
	}
	_, err, _ := g.refreshes.Do(call.Name+"|"+key, func() (interface{}, error) {
		return nil, g.run(ctx, call.Refresh)
	})
	if call.RefreshEndpoint == "" {
		return err
	}
	if err == nil {
		g.endpoints.Clear(ctx, call.RefreshEndpoint)
	} else if Classify(err) == ClassTransport {
		g.endpoints.MarkFailed(ctx, call.RefreshEndpoint)
	}
	return err
}

func (g *Gate) succeed(ctx context.Context, call Call) {
	g.endpoints.Clear(ctx, call.Endpoint)
	if call.Principal != "" {
		g.principals.Clear(ctx, call.Principal)
	}
	g.record(call, OutcomeAvailable)
}

func (g *Gate) fail(ctx context.Context, call Call, class FailureClass, cause error) error {
	outcome := OutcomeTransportFailure
	if class == ClassAuth && call.Principal != "" {
		outcome = OutcomeAuthFailure
		g.principals.MarkFailed(ctx, call.Principal)
	} else {
		if class == ClassAuth {
			outcome = OutcomeAuthFailure
		}
		g.endpoints.MarkFailed(ctx, call.Endpoint)
	}

	g.log.Warn("dependency unavailable",
		zap.String("dependency", call.Name),
		zap.String("endpoint", call.Endpoint),
		zap.String("principal", call.Principal),
		zap.Stringer("class", class),
		zap.Error(cause),
	)
	g.record(call, outcome)
	return domain.Wrap(domain.ErrDependencyUnavailable, cause)
}

func (g *Gate) record(call Call, outcome Outcome) {
	if g.observe != nil {
		g.observe(call.Name, outcome)
	}
}
