package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hirepipe/internal/pipeline"
	"hirepipe/internal/repository"
	"hirepipe/pkg/logger"
	"hirepipe/pkg/metrics"
	pkgredis "hirepipe/pkg/redis"
	"hirepipe/pkg/rbac"
	"hirepipe/pkg/trace"
	"hirepipe/pkg/util"
)

const actorKey = "actor"

// ActorResolver turns the bearer subject into the acting user.
type ActorResolver interface {
	FindActor(ctx context.Context, userID int64) (pipeline.Actor, error)
}

// TraceMiddleware 从 X-Trace-ID 读取（或生成）trace_id，写入 context 和响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(trace.HeaderName))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// MetricsMiddleware 记录每个路由的请求延迟
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func AuthMiddleware(jwtSecret string, actors ActorResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := util.ExtractToken(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		userID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		actor, err := actors.FindActor(c.Request.Context(), userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown_user"})
			return
		}
		if err != nil {
			logger.WithTrace(c.Request.Context(), log).Error("Failed to resolve actor",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}

		// store actor in context so handlers can use it
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RateLimitMiddleware 每个用户每分钟的写请求上限；perMinute <= 0 时不限流
func RateLimitMiddleware(limiter *pkgredis.Limiter, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}
		actor := actorFrom(c)
		key := "ratelimit:writes:" + strconv.FormatInt(actor.UserID, 10)
		if !limiter.Allow(c.Request.Context(), key, perMinute, time.Minute) {
			metrics.IncrementRateLimited(c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":  "rate_limited",
				"detail": "too many write requests, retry later",
			})
			return
		}
		c.Next()
	}
}

// RequireGlobal 只允许 ADMIN / HR_MANAGER / superuser
func RequireGlobal() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if !rbac.IsGlobal(actor.Role, actor.IsSuperuser) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": pipeline.ReasonForbidden})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) pipeline.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(pipeline.Actor)
	return actor
}
