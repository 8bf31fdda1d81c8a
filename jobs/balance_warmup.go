package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/partsledger/partsledger/internal/jobs"
)

// BalanceWarmer refreshes cached running balances.
type BalanceWarmer interface {
	Warmup(ctx context.Context, limit int) (int, error)
}

// BalanceWarmupJob pre-populates the balance cache for customers with dues.
type BalanceWarmupJob struct {
	Balances     BalanceWarmer
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	DefaultLimit int
	Timeout      time.Duration
}

// NewBalanceWarmupJob wires dependencies for the warmup handler.
func NewBalanceWarmupJob(balances BalanceWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceWarmupJob {
	return &BalanceWarmupJob{
		Balances:     balances,
		Logger:       logger,
		Metrics:      metrics,
		DefaultLimit: 500,
		Timeout:      2 * time.Minute,
	}
}

// Handle processes balance warmup tasks.
func (j *BalanceWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Balances == nil {
		return errors.New("balance warmup: handler not configured")
	}
	var payload BalanceWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = j.DefaultLimit
	}

	tracker := j.Metrics.Track(TaskBalanceWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	logger := j.logger().With(slog.Int("limit", payload.Limit))
	warmed, err := j.Balances.Warmup(ctx, payload.Limit)
	j.Metrics.AddProcessed(TaskBalanceWarmup, int64(warmed))
	if err != nil {
		logger.Error("balance warmup", slog.Int("warmed", warmed), slog.Any("error", err))
		return err
	}
	logger.Info("completed balance warmup", slog.Int("warmed", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *BalanceWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
