package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tesoro-bank/tesoro/internal/shared"
)

// defaultIdempotencyRetention keeps keys for one week when the payload
// carries no retention.
const defaultIdempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleanupJob purges idempotency keys past their retention so
// the table stays small. Keys must outlive any plausible client retry
// window before removal.
type IdempotencyCleanupJob struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleanupJob builds the job.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = defaultIdempotencyRetention
	}

	if err := j.store.Cleanup(ctx, payload.Retention); err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.logger.Info("idempotency keys cleaned", slog.Duration("retention", payload.Retention))
	return nil
}
