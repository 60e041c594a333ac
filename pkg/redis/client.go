package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"hirepipe/pkg/config"
)

// NewRedisClient 创建 Redis 客户端；Addr 为空时返回 nil（限流等功能自动降级）
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

// Ping 检查 Redis 是否可用
func Ping(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	return rdb.Ping(ctx).Err()
}
