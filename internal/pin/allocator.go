package pin

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/storage"
)

const (
	// MinCode 最小的 9 位拨入码（首位非零）
	MinCode = 100000000
	// MaxCode 最大的 9 位拨入码
	MaxCode = 999999999

	codeSpan = MaxCode - MinCode + 1

	// DefaultRetention 归档拨入码默认保留期
	DefaultRetention = 365 * 24 * time.Hour
	// DefaultMaxAttempts 单次分配默认最多尝试次数
	DefaultMaxAttempts = 32
)

// Source 随机数来源，返回 [0, n) 内的均匀随机数
type Source func(n int64) int64

// Set 拨入码集合
type Set map[string]struct{}

// Add 加入拨入码
func (s Set) Add(codes ...string) {
	for _, code := range codes {
		if code != "" {
			s[code] = struct{}{}
		}
	}
}

// Contains 判断拨入码是否在集合中
func (s Set) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Options 分配器参数
type Options struct {
	Retention   time.Duration
	MaxAttempts int
	Source      Source
}

// Allocator 拨入码分配器
//
// 内存中的禁用集合只是第一道检查，真正的唯一性由存储层的唯一约束保证。
type Allocator struct {
	repo        storage.CodeRepository
	clock       clockwork.Clock
	retention   time.Duration
	maxAttempts int
	source      Source
	log         *zap.Logger
}

// NewAllocator 创建拨入码分配器
func NewAllocator(repo storage.CodeRepository, clock clockwork.Clock, opts Options, log *zap.Logger) *Allocator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Source == nil {
		opts.Source = rand.Int63n
	}
	return &Allocator{
		repo:        repo,
		clock:       clock,
		retention:   opts.Retention,
		maxAttempts: opts.MaxAttempts,
		source:      opts.Source,
		log:         log,
	}
}

// Allocate 从禁用集合之外选取一个拨入码
//
// 随机选取起点，命中禁用集合时加一（999999999 之后回到 100000000）继续尝试，
// 超过最大尝试次数返回 domain.ErrAllocationExhausted。
func (a *Allocator) Allocate(forbidden Set) (string, error) {
	candidate := int64(MinCode) + a.source(codeSpan)
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		code := strconv.FormatInt(candidate, 10)
		if !forbidden.Contains(code) {
			return code, nil
		}
		candidate++
		if candidate > MaxCode {
			candidate = MinCode
		}
	}

	a.log.Error("numeric code allocation exhausted",
		zap.Int("attempts", a.maxAttempts),
		zap.Int("forbidden", len(forbidden)),
	)
	return "", domain.Wrap(domain.ErrAllocationExhausted,
		fmt.Errorf("no free code after %d attempts", a.maxAttempts))
}

// AllocateCodes 为会议分配 count 个互不相同的拨入码
//
// excludeMeetingID 对应会议自身当前占用的号码不计入禁用集合。
func (a *Allocator) AllocateCodes(ctx context.Context, excludeMeetingID string, count int) ([]string, error) {
	if _, err := a.PurgeExpired(ctx); err != nil {
		return nil, err
	}

	forbidden, err := a.ForbiddenSet(ctx, excludeMeetingID)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := a.Allocate(forbidden)
		if err != nil {
			return nil, err
		}
		forbidden.Add(code)
		codes = append(codes, code)
	}
	return codes, nil
}

// ForbiddenSet 返回当前占用的拨入码与保留期内归档拨入码的并集
func (a *Allocator) ForbiddenSet(ctx context.Context, excludeMeetingID string) (Set, error) {
	active, err := a.repo.ActiveCodes(ctx, excludeMeetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active codes: %w", err)
	}
	retired, err := a.repo.RetiredCodes(ctx, a.clock.Now().Add(-a.retention))
	if err != nil {
		return nil, fmt.Errorf("failed to list retired codes: %w", err)
	}

	forbidden := make(Set, len(active)+len(retired))
	forbidden.Add(active...)
	forbidden.Add(retired...)
	return forbidden, nil
}

// Now 返回分配器时钟的当前时间，用作归档时间
func (a *Allocator) Now() time.Time {
	return a.clock.Now()
}

// PurgeExpired 删除超出保留期的归档记录，可重复调用
func (a *Allocator) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := a.repo.PurgeRetired(ctx, a.clock.Now().Add(-a.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge retired codes: %w", err)
	}
	if purged > 0 {
		a.log.Debug("purged retired codes", zap.Int64("count", purged))
	}
	return purged, nil
}

// Retention 返回归档保留期
func (a *Allocator) Retention() time.Duration {
	return a.retention
}
