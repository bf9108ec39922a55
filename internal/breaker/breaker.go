package breaker

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"roomgate/backend/internal/cache"
)

// KeyPrefix 熔断记录在缓存中的键前缀
const KeyPrefix = "breaker:"

// State 熔断器状态
type State int

const (
	// StateClosed 无记录，请求放行
	StateClosed State = iota
	// StateOpen 存在未过期记录，请求被拦截
	StateOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker 按键熔断器
//
// 状态完全保存在 TTL 缓存中：键存在即为打开，不存在即为关闭。
// 没有半开探测状态，窗口过期后下一次调用直接尝试，失败则重新打开。
// 每个熔断器有独立的命名空间，不同用途的键不会互相覆盖。
type Breaker struct {
	name   string
	store  cache.Store
	window time.Duration
	clock  clockwork.Clock
	log    *zap.Logger
	onTrip func(name string)
}

// New 创建熔断器
//
// 参数:
//   - name: 命名空间，如 "endpoint"、"principal"
//   - store: 共享 TTL 缓存
//   - window: 退避窗口
//   - clock: 时钟，nil 时使用真实时钟
//   - log: 日志记录器，nil 时不输出
func New(name string, store cache.Store, window time.Duration, clock clockwork.Clock, log *zap.Logger) *Breaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		store:  store,
		window: window,
		clock:  clock,
		log:    log.With(zap.String("circuit_breaker", name)),
	}
}

// SetTripHook 设置熔断打开时的回调（用于指标统计）
func (b *Breaker) SetTripHook(fn func(name string)) {
	b.onTrip = fn
}

// Name 返回命名空间
func (b *Breaker) Name() string {
	return b.name
}

// Window 返回退避窗口
func (b *Breaker) Window() time.Duration {
	return b.window
}

// IsBlocked 判断键是否处于熔断中
//
// 缓存读取失败时放行。
func (b *Breaker) IsBlocked(ctx context.Context, key string) bool {
	return b.State(ctx, key) == StateOpen
}

// State 返回键的当前状态
func (b *Breaker) State(ctx context.Context, key string) State {
	expiresAt, ok := b.expiry(ctx, key)
	if !ok {
		return StateClosed
	}
	if b.clock.Now().Before(expiresAt) {
		return StateOpen
	}
	return StateClosed
}

// Remaining 返回剩余熔断时间，未熔断时为 0
func (b *Breaker) Remaining(ctx context.Context, key string) time.Duration {
	expiresAt, ok := b.expiry(ctx, key)
	if !ok {
		return 0
	}
	remaining := expiresAt.Sub(b.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MarkFailed 记录一次失败，将熔断截止时间刷新为 now + window
//
// 已存在且更晚的截止时间保持不变，熔断时间只会延长不会缩短。
func (b *Breaker) MarkFailed(ctx context.Context, key string) {
	now := b.clock.Now()
	expiresAt := now.Add(b.window)

	wasOpen := false
	if current, ok := b.expiry(ctx, key); ok && now.Before(current) {
		wasOpen = true
		if current.After(expiresAt) {
			expiresAt = current
		}
	}

	value := strconv.FormatInt(expiresAt.UnixNano(), 10)
	if err := b.store.Set(ctx, b.cacheKey(key), value, expiresAt.Sub(now)); err != nil {
		b.log.Warn("failed to persist breaker state",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	if !wasOpen {
		b.log.Warn("circuit breaker tripped",
			zap.String("key", key),
			zap.Duration("backoff", b.window),
		)
		if b.onTrip != nil {
			b.onTrip(b.name)
		}
	}
}

// Clear 立即关闭熔断（观察到任何成功调用时使用）
func (b *Breaker) Clear(ctx context.Context, key string) {
	if err := b.store.Delete(ctx, b.cacheKey(key)); err != nil {
		b.log.Warn("failed to clear breaker state",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// expiry 读取截止时间；无法解析的记录按"刚好一个窗口"处理，仍视为熔断
func (b *Breaker) expiry(ctx context.Context, key string) (time.Time, bool) {
	value, ok, err := b.store.Get(ctx, b.cacheKey(key))
	if err != nil {
		b.log.Warn("failed to read breaker state, allowing call",
			zap.String("key", key),
			zap.Error(err),
		)
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return b.clock.Now().Add(b.window), true
	}
	return time.Unix(0, nanos), true
}

func (b *Breaker) cacheKey(key string) string {
	return KeyPrefix + b.name + ":" + key
}
