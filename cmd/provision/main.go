package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"hirepipe/internal/config"
	"hirepipe/internal/pipeline"
	"hirepipe/internal/repository"
	"hirepipe/pkg/db"
	"hirepipe/pkg/logger"
)

// provision creates the default stage set for a project and gives the owner
// an OWNER membership. Safe to run more than once.
func main() {
	projectID := flag.Int64("project", 0, "project id (required)")
	ownerID := flag.Int64("owner", 0, "owner user id")
	ownerEmail := flag.String("owner-email", "", "owner email, used when -owner is not set")
	flag.Parse()

	if *projectID <= 0 {
		log.Fatal("-project is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logger.NewLogger(cfg.Debug)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	owner := *ownerID
	if owner == 0 && *ownerEmail != "" {
		owner, err = repository.NewUserRepository(dbConn).FindIDByEmail(ctx, *ownerEmail)
		if err != nil {
			logger.Fatal("Owner lookup failed", zap.String("email", *ownerEmail), zap.Error(err))
		}
	}

	repo := repository.NewPipelineRepository(dbConn, logger, cfg.Pipeline.MaxTxRetries)
	svc := pipeline.NewService(repo, logger, pipeline.WithTxTimeout(cfg.Pipeline.TxTimeout))

	stages, err := svc.ProvisionStages(ctx, *projectID, owner)
	if err != nil {
		logger.Fatal("Provisioning failed", zap.Int64("project_id", *projectID), zap.Error(err))
	}
	for _, s := range stages {
		logger.Info("Stage ready",
			zap.Int64("project_id", *projectID),
			zap.Int64("stage_id", s.ID),
			zap.String("system_key", s.SystemKey),
			zap.Int("order", s.Order),
			zap.Bool("is_final", s.IsFinal),
		)
	}
}
