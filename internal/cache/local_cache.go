package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// LocalCache 进程内 TTL 缓存
//
// 特点：
// - 过期判断基于注入的时钟，测试可用假时钟推进
// - 写入时顺带清理过期条目，不启动后台协程
// - 容量满时淘汰最早过期的条目，KeepUntilExpiry 登记的前缀除外
type LocalCache struct {
	mu      sync.Mutex
	data    map[string]cacheEntry
	maxSize int
	ttl     time.Duration
	clock   clockwork.Clock
	kept    []string
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数，<= 0 表示不限制
//   - ttl: 默认过期时间
//   - clock: 时钟，nil 时使用真实时钟
func NewLocalCache(maxSize int, ttl time.Duration, clock clockwork.Clock) *LocalCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalCache{
		data:    make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		clock:   clock,
	}
}

// KeepUntilExpiry 登记不参与容量淘汰的键前缀
//
// 这些条目只在过期后删除；只剩这类条目时缓存允许暂时超出容量。
func (c *LocalCache) KeepUntilExpiry(prefixes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kept = append(c.kept, prefixes...)
}

// Get 获取缓存值
func (c *LocalCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return "", false, nil
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.data, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set 设置缓存值
func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeLocked(key, value, ttl)
	return nil
}

// Delete 删除缓存值
func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Incr 自增计数器
func (c *LocalCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	if entry, ok := c.data[key]; ok && c.clock.Now().Before(entry.expiresAt) {
		n, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = n
	}
	current++
	c.storeLocked(key, strconv.FormatInt(current, 10), ttl)
	return current, nil
}

// Len 返回当前条目数（含尚未清理的过期条目）
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *LocalCache) storeLocked(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.Now()

	if _, exists := c.data[key]; !exists && c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.pruneLocked(now)
		if len(c.data) >= c.maxSize {
			c.evictSoonestLocked()
		}
	}

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: now.Add(ttl),
	}
}

// pruneLocked 清理过期条目
func (c *LocalCache) pruneLocked(now time.Time) {
	for key, entry := range c.data {
		if !now.Before(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// evictSoonestLocked 淘汰最早过期的可淘汰条目
func (c *LocalCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for key, entry := range c.data {
		if c.keptLocked(key) {
			continue
		}
		if victim == "" || entry.expiresAt.Before(soonest) {
			victim = key
			soonest = entry.expiresAt
		}
	}
	if victim != "" {
		delete(c.data, victim)
	}
}

func (c *LocalCache) keptLocked(key string) bool {
	for _, prefix := range c.kept {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
