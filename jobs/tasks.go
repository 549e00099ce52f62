package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMaturitySweep settles every investment matured as of today.
	TaskMaturitySweep = "deposits:maturity_sweep"
	// TaskMaturityNotify reports investments maturing soon.
	TaskMaturityNotify = "deposits:maturity_notify"
	// TaskSendEmail delivers transactional emails.
	TaskSendEmail = "mail:send"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// MaturitySweepPayload configures a sweep run.
type MaturitySweepPayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// NewMaturitySweepTask constructs the sweep task.
func NewMaturitySweepTask(triggeredBy string) (*asynq.Task, error) {
	data, err := json.Marshal(MaturitySweepPayload{TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaturitySweep, data), nil
}

// MaturityNotifyPayload configures a near-maturity notification run.
type MaturityNotifyPayload struct {
	LookaheadDays int `json:"lookahead_days"`
}

// NewMaturityNotifyTask constructs the notification task.
func NewMaturityNotifyTask(lookaheadDays int) (*asynq.Task, error) {
	data, err := json.Marshal(MaturityNotifyPayload{LookaheadDays: lookaheadDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaturityNotify, data), nil
}

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendEmail, data), nil
}

// HandleSendEmailTask processes TaskSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP once the notification channel lands.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}
