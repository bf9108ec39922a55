package join

import (
	"context"
	"strconv"
	"time"

	"roomgate/backend/internal/cache"
)

// AttemptCounter 按客户端会话统计连续失败次数
//
// 计数只会加一或被清除，过期时间与客户端会话一致。
type AttemptCounter struct {
	store cache.Store
	ttl   time.Duration
}

// NewAttemptCounter 创建尝试计数器
func NewAttemptCounter(store cache.Store, ttl time.Duration) *AttemptCounter {
	return &AttemptCounter{store: store, ttl: ttl}
}

// Count 返回会话当前的失败次数
func (c *AttemptCounter) Count(ctx context.Context, sessionID string) (int64, error) {
	value, ok, err := c.store.Get(ctx, attemptsKey(sessionID))
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, err
	}
	return n, nil
}

// Increment 失败次数加一
func (c *AttemptCounter) Increment(ctx context.Context, sessionID string) (int64, error) {
	return c.store.Incr(ctx, attemptsKey(sessionID), c.ttl)
}

// Reset 清除失败次数
func (c *AttemptCounter) Reset(ctx context.Context, sessionID string) error {
	return c.store.Delete(ctx, attemptsKey(sessionID))
}

func attemptsKey(sessionID string) string {
	return "join:attempts:" + sessionID
}
