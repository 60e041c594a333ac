package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hirepipe/internal/config"
	"hirepipe/pkg/db"
	"hirepipe/pkg/logger"
	"hirepipe/pkg/mq"
	"hirepipe/pkg/otel"
	"hirepipe/pkg/outbox"
)

func main() {
	replayFailed := flag.Int("replay-failed", 0, "reset up to N failed outbox events to pending and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logger.NewLogger(cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.Otel, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	outboxRepo := outbox.NewRepository(dbConn)

	if *replayFailed > 0 {
		n, err := outbox.NewReplayService(outboxRepo).ReplayFailedEvents(ctx, *replayFailed)
		if err != nil {
			logger.Fatal("Replay of failed events failed", zap.Error(err))
		}
		logger.Info("Failed events reset to pending", zap.Int("count", n), zap.Int("limit", *replayFailed))
		return
	}

	publisher, err := mq.NewEventPublisher(cfg.MQ)
	if err != nil {
		logger.Fatal("Failed to init MQ publisher", zap.String("driver", cfg.MQ.Driver), zap.Error(err))
	}
	defer publisher.Close()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	metricsServer := &http.Server{Addr: ":" + cfg.Metrics.Port, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", zap.String("port", cfg.Metrics.Port))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("Outbox worker started", zap.String("driver", cfg.MQ.Driver))
	if err := g.Wait(); err != nil {
		logger.Error("Worker exited with error", zap.Error(err))
	}
}
