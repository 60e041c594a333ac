package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 固定窗口计数：第一次 INCR 时设置过期时间，超过 limit 返回 0
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// Limiter 基于 Redis 的固定窗口限流器
type Limiter struct {
	client  *redis.Client
	script  *redis.Script
	timeout time.Duration
}

// NewLimiter 创建限流器；client 为 nil 时返回 nil（所有请求放行）
func NewLimiter(client *redis.Client) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{
		client:  client,
		script:  redis.NewScript(rateLimitScript),
		timeout: 250 * time.Millisecond,
	}
}

// Allow 判断 key 在当前窗口内是否还有额度；Redis 出错时放行
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{key}, ttl, limit).Int64()
	if err != nil {
		return true
	}
	return allowed == 1
}
