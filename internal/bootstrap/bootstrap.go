// Package bootstrap 按配置打开存储与缓存，供各命令行入口共用。
package bootstrap

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"roomgate/backend/internal/breaker"
	"roomgate/backend/internal/cache"
	"roomgate/backend/internal/config"
	"roomgate/backend/internal/storage"
	"roomgate/backend/internal/storage/memory"
	"roomgate/backend/internal/storage/postgres"
	"roomgate/backend/internal/storage/redis"
)

// OpenStore 打开会议存储；未配置数据库时使用内存存储
func OpenStore(cfg *config.DatabaseConfig, log *zap.Logger) (storage.Store, error) {
	opts := postgres.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
	if opts.MaxOpenConns <= 0 {
		opts = postgres.DefaultOptions()
	}

	switch cfg.Type {
	case "":
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	case "postgres":
		store, err := postgres.NewStore(cfg.DSN, opts)
		if err != nil {
			return nil, err
		}
		log.Info("using database storage", zap.String("type", cfg.Type))
		return store, nil
	case "mysql":
		store, err := postgres.NewMySQLStore(cfg.DSN, opts)
		if err != nil {
			return nil, err
		}
		log.Info("using database storage", zap.String("type", cfg.Type))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// Cache 打开的缓存及其可选的 Redis 连接
type Cache struct {
	Store cache.Store
	// Redis 仅在使用 Redis 缓存时非空，用于就绪检查和关闭
	Redis *redis.Client
}

// Close 关闭底层连接
func (c *Cache) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}

// OpenCache 打开熔断状态与尝试计数使用的 TTL 缓存
//
// 内存缓存只在单实例部署下正确；多实例必须共用 Redis。
func OpenCache(cfg *config.Config, clock clockwork.Clock, log *zap.Logger) (*Cache, error) {
	defaultTTL := cfg.Join.AttemptTTL
	switch cfg.Cache.Type {
	case "", "memory":
		log.Info("using in-process cache", zap.Int("max_size", cfg.Cache.MaxSize))
		local := cache.NewLocalCache(cfg.Cache.MaxSize, defaultTTL, clock)
		// 会话尝试计数可由匿名请求大量创建，不能把未过期的熔断记录挤出缓存
		local.KeepUntilExpiry(breaker.KeyPrefix)
		return &Cache{Store: local}, nil
	case "redis":
		client, err := redis.New(&cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return &Cache{Store: redis.NewCache(client, defaultTTL), Redis: client}, nil
	default:
		return nil, fmt.Errorf("unsupported cache type %q", cfg.Cache.Type)
	}
}
