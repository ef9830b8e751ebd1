package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stitchline-erp/stitchline-erp/internal/bom"
	jobmetrics "github.com/stitchline-erp/stitchline-erp/internal/jobs"
)

// RequirementsWarmupJob pre-builds the expansion cache for active BOMs so the
// first costing request after an invalidation does not pay the build price.
type RequirementsWarmupJob struct {
	BOMs    *bom.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRequirementsWarmupJob wires dependencies for the warmup handler.
func NewRequirementsWarmupJob(bomSvc *bom.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RequirementsWarmupJob {
	return &RequirementsWarmupJob{BOMs: bomSvc, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks.
func (j *RequirementsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.BOMs == nil {
		return errors.New("requirements warmup: handler not configured")
	}
	var payload RequirementsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRequirementsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()

	headers, err := j.BOMs.List(ctx, true, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("list active boms", slog.Any("error", err))
		return resultErr
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, header := range headers {
		group.Go(func() error {
			warmCtx, cancel := context.WithTimeout(groupCtx, 10*time.Second)
			defer cancel()
			_, err := j.BOMs.Expand(warmCtx, header.ID)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		logger.Error("warm expansion cache", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed requirements warmup", slog.Int("boms", len(headers)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RequirementsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRequirementsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRequirementsWarmup))
}

func (j *RequirementsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
