package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hirepipe/internal/pipeline"
	"hirepipe/pkg/otel"
	pkgredis "hirepipe/pkg/redis"
)

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps collects everything the router wires into handlers and middleware.
type Deps struct {
	Service         *pipeline.Service
	Actors          ActorResolver
	JWTSecret       string
	Limiter         *pkgredis.Limiter
	WritesPerMinute int
	Replay          Replayer
	Ready           []ReadyCheck
	Logger          *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), MetricsMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, rc := range d.Ready {
			if err := rc.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": rc.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apps := NewApplicationHandler(d.Service)
	projects := NewProjectHandler(d.Service)
	limit := RateLimitMiddleware(d.Limiter, d.WritesPerMinute)

	auth := r.Group("/")
	auth.Use(AuthMiddleware(d.JWTSecret, d.Actors, d.Logger))
	{
		auth.POST("/applications", limit, apps.Create)
		auth.GET("/applications", apps.List)
		auth.GET("/applications/:id", apps.Get)
		auth.POST("/applications/:id/move", limit, apps.Move)
		auth.DELETE("/applications/:id", limit, apps.Archive)
		auth.GET("/applications/:id/history", apps.History)

		auth.GET("/projects/:id/kanban", projects.Board)
		auth.POST("/projects/:id/kanban/reorder", limit, projects.Reorder)
		auth.GET("/projects/:id/summary", projects.Summary)
		auth.GET("/projects/:id/stages", projects.Stages)

		if d.Replay != nil {
			admin := NewAdminHandler(d.Replay, d.Logger)
			auth.POST("/admin/outbox/replay", RequireGlobal(), admin.ReplayOutboxEvent)
			auth.POST("/admin/outbox/replay-failed", RequireGlobal(), admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Handler() http.Handler {
	return r.Engine
}
