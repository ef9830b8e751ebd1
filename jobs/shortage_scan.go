package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stitchline-erp/stitchline-erp/internal/jobs"
	"github.com/stitchline-erp/stitchline-erp/internal/production"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ShortageScanJob walks open production orders and reports materials whose
// ledger availability no longer covers the open requirements.
type ShortageScanJob struct {
	Production *production.Service
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewShortageScanJob wires dependencies for the scan handler.
func NewShortageScanJob(productionSvc *production.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ShortageScanJob {
	return &ShortageScanJob{Production: productionSvc, Logger: logger, Metrics: metrics}
}

// Handle processes shortage scan tasks.
func (j *ShortageScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Production == nil {
		return errors.New("shortage scan: handler not configured")
	}
	var payload ShortageScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskShortageScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	shortages, err := j.Production.ShortageReport(ctx)
	if err != nil {
		resultErr = err
		logger.Error("shortage report", slog.Any("error", err))
		return resultErr
	}

	for _, shortage := range shortages {
		missing, _ := shortage.Missing.Float64()
		j.metrics().SetShortage(shortage.MaterialID, missing)
		if payload.Notify {
			logger.Warn("material shortage",
				slog.Int64("material_id", shortage.MaterialID),
				slog.String("required", shortage.Required.String()),
				slog.String("available", shortage.Available.String()),
				slog.String("missing", shortage.Missing.String()))
		}
	}
	logger.Info("completed shortage scan", slog.Int("shortages", len(shortages)))
	return resultErr
}

func (j *ShortageScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskShortageScan))
	}
	return slog.Default().With(slog.String("job", TaskShortageScan))
}

func (j *ShortageScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
