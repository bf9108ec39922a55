package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"roomgate/backend/internal/cache"
)

// keyPrefix 所有键的统一前缀，便于与其他应用共用实例
const keyPrefix = "roomgate:"

// Cache Redis 实现的 TTL 缓存，供熔断器和尝试计数使用
type Cache struct {
	client *Client
	ttl    time.Duration
}

// NewCache 创建 Redis 缓存
//
// ttl 为调用方未指定过期时间时使用的默认值。
func NewCache(client *Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// Get 获取缓存值
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.rdb.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set 设置缓存值
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.rdb.Set(ctx, keyPrefix+key, value, c.expiry(ttl)).Err()
}

// Delete 删除缓存值
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.rdb.Del(ctx, keyPrefix+key).Err()
}

// Incr 自增计数器并刷新过期时间
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.rdb.TxPipeline()

	// 增加计数
	incr := pipe.Incr(ctx, keyPrefix+key)

	// 刷新过期时间
	pipe.Expire(ctx, keyPrefix+key, c.expiry(ttl))

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *Cache) expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.ttl
	}
	return ttl
}

var _ cache.Store = (*Cache)(nil)
