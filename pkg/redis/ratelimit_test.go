package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"hirepipe/pkg/config"
)

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if !l.Allow(context.Background(), "k", 1, time.Minute) {
		t.Fatal("nil limiter must allow")
	}
	if NewLimiter(nil) != nil {
		t.Fatal("expected nil limiter without client")
	}
	if NewRedisClient(config.RedisConfig{}) != nil {
		t.Fatal("expected nil client without addr")
	}
}

func TestLimiterFailsOpenWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewLimiter(client)
	for i := 0; i < 3; i++ {
		if !l.Allow(context.Background(), "writes:1", 1, time.Minute) {
			t.Fatal("limiter should fail open")
		}
	}
}

func TestLimiterIgnoresInvalidArguments(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	l := NewLimiter(client)
	if !l.Allow(context.Background(), "", 1, time.Minute) {
		t.Fatal("empty key must allow")
	}
	if !l.Allow(context.Background(), "k", 0, time.Minute) {
		t.Fatal("zero limit must allow")
	}
}
