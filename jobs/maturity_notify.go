package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tesoro-bank/tesoro/internal/deposits"
)

// MaturityNotifyJob builds the near-maturity report and enqueues the
// operational notification email.
type MaturityNotifyJob struct {
	engine   *deposits.SettlementEngine
	enqueuer Enqueuer
	logger   *slog.Logger
	to       string
}

// Enqueuer submits follow-up tasks; satisfied by *Client.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error
}

// NewMaturityNotifyJob builds the job.
func NewMaturityNotifyJob(engine *deposits.SettlementEngine, enqueuer Enqueuer, logger *slog.Logger, to string) *MaturityNotifyJob {
	return &MaturityNotifyJob{engine: engine, enqueuer: enqueuer, logger: logger, to: to}
}

// Handle processes TaskMaturityNotify tasks.
func (j *MaturityNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload MaturityNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.LookaheadDays <= 0 {
		payload.LookaheadDays = 7
	}

	projections, err := j.engine.Upcoming(ctx, payload.LookaheadDays)
	if err != nil {
		j.logger.Error("upcoming maturities", slog.Any("error", err))
		return err
	}
	if len(projections) == 0 {
		return nil
	}

	body := FormatMaturityReport(projections, payload.LookaheadDays)
	task, err := NewSendEmailTask(SendEmailPayload{
		To:      j.to,
		Subject: fmt.Sprintf("Plazos Fijos por vencer (%d días)", payload.LookaheadDays),
		Body:    body,
	})
	if err != nil {
		return err
	}
	if j.enqueuer != nil {
		if err := j.enqueuer.Enqueue(ctx, task); err != nil {
			return err
		}
	}
	j.logger.Info("maturity notification enqueued", slog.Int("investments", len(projections)))
	return nil
}

// FormatMaturityReport renders the notification body with es-locale
// number formatting.
func FormatMaturityReport(projections []deposits.MaturityProjection, lookaheadDays int) string {
	printer := message.NewPrinter(language.Spanish)
	var b strings.Builder
	printer.Fprintf(&b, "Plazos Fijos que vencen en los próximos %d días:\n\n", lookaheadDays)
	for _, p := range projections {
		printer.Fprintf(&b, "- Inversión %d (cuenta %d): capital %.2f, interés proyectado %.2f, total %.2f, vence %s\n",
			p.InvestmentID, p.AccountID, p.Principal, p.ProjectedInterest, p.ProjectedPayout,
			p.MaturityDate.Format("2006-01-02"))
	}
	return b.String()
}
