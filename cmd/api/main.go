package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hirepipe/db/migrations"
	"hirepipe/internal/api"
	"hirepipe/internal/config"
	"hirepipe/internal/pipeline"
	"hirepipe/internal/repository"
	"hirepipe/pkg/db"
	"hirepipe/pkg/logger"
	"hirepipe/pkg/otel"
	"hirepipe/pkg/outbox"
	pkgredis "hirepipe/pkg/redis"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logger.NewLogger(cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := otel.Init(cfg.Otel, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// 3. Init DB + migrations
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, dbConn, migrations.FS, logger); err != nil {
		logger.Fatal("Migrations failed", zap.Error(err))
	}

	// 4. Init Redis (optional, rate limiting fails open without it)
	rdb := pkgredis.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	// 5. Repositories and services
	pipelineRepo := repository.NewPipelineRepository(dbConn, logger, cfg.Pipeline.MaxTxRetries)
	userRepo := repository.NewUserRepository(dbConn)
	pipelineService := pipeline.NewService(pipelineRepo, logger, pipeline.WithTxTimeout(cfg.Pipeline.TxTimeout))
	replayService := outbox.NewReplayService(outbox.NewRepository(dbConn))

	// 6. Router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Service:         pipelineService,
		Actors:          userRepo,
		JWTSecret:       cfg.JWT.Secret,
		Limiter:         pkgredis.NewLimiter(rdb),
		WritesPerMinute: cfg.RateLimit.WritesPerMinute,
		Replay:          replayService,
		Ready: []api.ReadyCheck{
			{Name: "db", Check: dbConn.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return pkgredis.Ping(ctx, rdb) }},
		},
		Logger: logger,
	})

	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting API server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("API server exited with error", zap.Error(err))
	}
}
