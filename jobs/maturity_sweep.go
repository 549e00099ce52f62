package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tesoro-bank/tesoro/internal/deposits"
	"github.com/tesoro-bank/tesoro/internal/shared"
)

// sweepLockTTL bounds how long a crashed sweep can hold the lock.
const sweepLockTTL = 15 * time.Minute

// MaturitySweepJob runs the settlement engine's batch sweep on a cron
// schedule. Per-item failures land in the report, not in the task error:
// a failed item must not make asynq retry the whole sweep and re-hit the
// idempotency guard on every already-settled investment.
type MaturitySweepJob struct {
	engine *deposits.SettlementEngine
	cache  *deposits.Cache
	locker *redis.Client
	logger *slog.Logger
}

// NewMaturitySweepJob builds the job. locker may be nil; the sweep then
// relies solely on the per-investment status guard.
func NewMaturitySweepJob(engine *deposits.SettlementEngine, cache *deposits.Cache, locker *redis.Client, logger *slog.Logger) *MaturitySweepJob {
	return &MaturitySweepJob{engine: engine, cache: cache, locker: locker, logger: logger}
}

// Handle processes TaskMaturitySweep tasks.
func (j *MaturitySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload MaturitySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	if j.locker != nil {
		acquired, err := j.locker.SetNX(ctx, shared.SweepLockKey, payload.TriggeredBy, sweepLockTTL).Result()
		if err != nil {
			j.logger.Warn("sweep lock", slog.Any("error", err))
		} else if !acquired {
			j.logger.Info("sweep already running, skipping", slog.String("triggered_by", payload.TriggeredBy))
			return nil
		} else {
			defer func() {
				if err := j.locker.Del(context.WithoutCancel(ctx), shared.SweepLockKey).Err(); err != nil {
					j.logger.Warn("release sweep lock", slog.Any("error", err))
				}
			}()
		}
	}

	report, err := j.engine.RunSweep(ctx)
	if err != nil {
		j.logger.Error("maturity sweep job", slog.Any("error", err))
		return err
	}
	if err := j.cache.Bump(ctx); err != nil {
		j.logger.Warn("bump deposits cache", slog.Any("error", err))
	}

	for _, sweepErr := range report.Errors {
		j.logger.Error("settlement failed",
			slog.Int64("investment_id", sweepErr.InvestmentID),
			slog.String("reason", sweepErr.Reason),
			slog.String("triggered_by", payload.TriggeredBy))
	}
	j.logger.Info("maturity sweep job finished",
		slog.String("triggered_by", payload.TriggeredBy),
		slog.Int("total", report.Total),
		slog.Int("processed", len(report.Processed)),
		slog.Int("errors", len(report.Errors)))
	return nil
}
