package cache

import (
	"context"
	"time"
)

// Store 带 TTL 的键值存储抽象
//
// 熔断器状态与尝试计数都只依赖单键的 get/set/delete，
// 任何支持 TTL 的 KV 存储（内存、Redis）都可以实现。
type Store interface {
	// Get 返回键值；键不存在或已过期时 ok 为 false
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set 写入键值并设置过期时间，ttl <= 0 表示使用实现的默认值
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete 删除键，键不存在不视为错误
	Delete(ctx context.Context, key string) error
	// Incr 原子自增 1 并刷新过期时间，返回自增后的值
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
