package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/stitchline-erp/stitchline-erp/internal/app"
	"github.com/stitchline-erp/stitchline-erp/internal/audit"
	"github.com/stitchline-erp/stitchline-erp/internal/bom"
	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/issue"
	"github.com/stitchline-erp/stitchline-erp/internal/masterdata/materials"
	"github.com/stitchline-erp/stitchline-erp/internal/observability"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/cache"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/db"
	"github.com/stitchline-erp/stitchline-erp/internal/procurement"
	"github.com/stitchline-erp/stitchline-erp/internal/production"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
	"github.com/stitchline-erp/stitchline-erp/jobs"
	"github.com/stitchline-erp/stitchline-erp/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if err := runMigrations(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, cost cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	bom.MaxWastePercent = cfg.WasteCeiling()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	materialsRepo := materials.NewRepository(pool)
	materialsService := materials.NewService(materialsRepo)

	bomRepo := bom.NewRepository(pool)
	bomCache := bom.NewCache(redisClient, cfg.CacheTTL)
	bomService := bom.NewService(bomRepo, bom.NewMaterialAdapter(materialsRepo), bomCache, auditLogger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotency)

	issueRepo := issue.NewRepository(pool)
	issueService := issue.NewService(issueRepo, inventoryService, auditLogger, idempotency)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, inventoryService, auditLogger, idempotency)

	auditService := audit.NewService(audit.NewRepository(pool))

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, bomService, issueService, inventoryService, auditLogger)

	var jobsHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		jobsHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		MaterialsHandler:   materials.NewHandler(logger, materialsService),
		BOMHandler:         bom.NewHandler(logger, bomService, bom.NewRequirementExporter()),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		IssueHandler:       issue.NewHandler(logger, issueService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		ProductionHandler:  production.NewHandler(logger, productionService),
		AuditHandler:       audit.NewHandler(logger, auditService),
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func runMigrations(dsn string) error {
	migrationDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() {
		_ = migrationDB.Close()
	}()
	goose.SetBaseFS(migrations.FS)
	return goose.Up(migrationDB, ".")
}
