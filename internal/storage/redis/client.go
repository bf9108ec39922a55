package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomgate/backend/internal/config"
)

// 熔断状态与尝试计数都在请求路径上读取，超时取短值；读失败按缓存未命中处理
const (
	dialTimeout = 2 * time.Second
	ioTimeout   = 500 * time.Millisecond
	connectWait = 5 * time.Second
	poolSize    = 20
	clientName  = "roomgate"
)

// Client Redis 连接
type Client struct {
	rdb  *goredis.Client
	addr string
	log  *zap.Logger
}

// options 根据配置构造连接参数
func options(cfg *config.RedisConfig) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
		MinIdleConns: 2,
	}
}

// New 连接 Redis，启动时连不上直接返回错误
func New(cfg *config.RedisConfig, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	c := &Client{
		rdb:  goredis.NewClient(options(cfg)),
		addr: cfg.Address,
		log:  log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectWait)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}

	log.Info("redis cache connected", zap.String("address", cfg.Address), zap.Int("db", cfg.DB))
	return c, nil
}

// Ping 就绪检查
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", c.addr, err)
	}
	return nil
}

// Close 关闭连接池
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.log.Warn("failed to close redis connection", zap.Error(err))
		return err
	}
	return nil
}
