package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stitchline-erp/stitchline-erp/internal/app"
	"github.com/stitchline-erp/stitchline-erp/internal/bom"
	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/issue"
	"github.com/stitchline-erp/stitchline-erp/internal/masterdata/materials"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/cache"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/db"
	"github.com/stitchline-erp/stitchline-erp/internal/production"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
	"github.com/stitchline-erp/stitchline-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	audit := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	materialsRepo := materials.NewRepository(pool)
	bomRepo := bom.NewRepository(pool)
	bomCache := bom.NewCache(redisClient, cfg.CacheTTL)
	bomService := bom.NewService(bomRepo, bom.NewMaterialAdapter(materialsRepo), bomCache, audit)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, audit, idempotency)

	issueRepo := issue.NewRepository(pool)
	issueService := issue.NewService(issueRepo, inventoryService, audit, idempotency)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, bomService, issueService, inventoryService, audit)

	shortageJob := jobs.NewShortageScanJob(productionService, logger, nil)
	warmupJob := jobs.NewRequirementsWarmupJob(bomService, logger, nil)

	shortageTask, err := jobs.NewShortageScanTask(jobs.ShortageScanPayload{Notify: true})
	if err != nil {
		logger.Error("build shortage task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewRequirementsWarmupTask(jobs.RequirementsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskShortageScan, Handler: shortageJob.Handle},
			{Type: jobs.TaskRequirementsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 */2 * * *", Task: shortageTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
