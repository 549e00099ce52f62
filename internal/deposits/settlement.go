package deposits

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tesoro-bank/tesoro/internal/accounts"
	"github.com/tesoro-bank/tesoro/internal/shared"
)

// SettlementDescription is the ledger description credited at maturity.
const SettlementDescription = "Liquidación de Plazo Fijo"

// defaultSweepConcurrency bounds the parallel settlements in one sweep.
const defaultSweepConcurrency = 4

// SettlementResult reports a completed single-item settlement.
type SettlementResult struct {
	InvestmentID    int64     `json:"investment_id"`
	Capital         float64   `json:"capital"`
	Interest        float64   `json:"interest"`
	Total           float64   `json:"total"`
	PreviousBalance float64   `json:"previous_balance"`
	NewBalance      float64   `json:"new_balance"`
	TransactionID   int64     `json:"transaction_id"`
	SettledAt       time.Time `json:"settled_at"`
}

// SweepError captures a per-item failure inside a batch sweep.
type SweepError struct {
	InvestmentID int64  `json:"investment_id"`
	Reason       string `json:"reason"`
}

// SweepReport aggregates a batch sweep. A failure on one item never aborts
// processing of the others.
type SweepReport struct {
	Processed []SettlementResult `json:"processed"`
	Errors    []SweepError       `json:"errors"`
	Total     int                `json:"total"`
}

// MaturityProjection is a read-only near-maturity report row.
type MaturityProjection struct {
	InvestmentID      int64     `json:"investment_id"`
	AccountID         int64     `json:"account_id"`
	Principal         float64   `json:"principal"`
	Rate              float64   `json:"rate"`
	MaturityDate      time.Time `json:"maturity_date"`
	DaysToMaturity    int       `json:"days_to_maturity"`
	ProjectedInterest float64   `json:"projected_interest"`
	ProjectedPayout   float64   `json:"projected_payout"`
	AutoRenew         bool      `json:"auto_renew"`
}

// PartialSettlementError reports a settlement that transitioned the
// investment to MATURED but failed before the payout completed. The
// investment must not be retried automatically; an operator reconciles
// manually.
type PartialSettlementError struct {
	InvestmentID int64
	Stage        string
	Err          error
}

func (e *PartialSettlementError) Error() string {
	return fmt.Sprintf("deposits: settlement of investment %d partially applied at stage %q: %v", e.InvestmentID, e.Stage, e.Err)
}

// Unwrap classifies the partial settlement as a dependency failure.
func (e *PartialSettlementError) Unwrap() error { return shared.ErrDependency }

// SettlementEngine performs end-of-term settlement: it credits principal
// plus accrued interest back to the account exactly once, even under
// retries or concurrent invocation.
type SettlementEngine struct {
	repo     RepositoryPort
	accounts accounts.Store
	logger   *slog.Logger
	audit    *shared.AuditLogger
	metrics  SettlementMetrics
	now      func() time.Time
	limit    int
}

// SettlementMetrics is the observability hook the engine reports into.
type SettlementMetrics interface {
	SettlementProcessed(amount float64)
	SettlementFailed()
	SweepDuration(d time.Duration)
}

// NewSettlementEngine builds the engine.
func NewSettlementEngine(repo RepositoryPort, store accounts.Store, logger *slog.Logger) *SettlementEngine {
	return &SettlementEngine{
		repo:     repo,
		accounts: store,
		logger:   logger,
		now:      time.Now,
		limit:    defaultSweepConcurrency,
	}
}

// WithAudit attaches a best-effort audit trail writer.
func (e *SettlementEngine) WithAudit(audit *shared.AuditLogger) *SettlementEngine {
	e.audit = audit
	return e
}

// WithMetrics attaches settlement metrics.
func (e *SettlementEngine) WithMetrics(m SettlementMetrics) *SettlementEngine {
	e.metrics = m
	return e
}

// WithNow overrides the engine clock for testing.
func (e *SettlementEngine) WithNow(fn func() time.Time) *SettlementEngine {
	if fn != nil {
		e.now = fn
	}
	return e
}

// WithConcurrency bounds the parallelism of RunSweep.
func (e *SettlementEngine) WithConcurrency(n int) *SettlementEngine {
	if n > 0 {
		e.limit = n
	}
	return e
}

// normalizeRate applies the stored-rate format heuristic: values above 1
// are percentages and are divided by 100; values at or below 1 are taken
// as decimal fractions already. Ambiguous for rates between 0 and 1
// percent; behaviour is pinned by tests and must not change silently.
func normalizeRate(rate float64) float64 {
	if rate > 1 {
		return rate / 100
	}
	return rate
}

// SettleOne settles a single matured investment. The ACTIVE→MATURED
// compare-and-set transition happens before any amount is computed and is
// the sole idempotency decision point: of two racing calls only one
// observes the transition, the other fails with a state conflict and must
// be treated as a duplicate, not retried.
func (e *SettlementEngine) SettleOne(ctx context.Context, id int64) (*SettlementResult, error) {
	inv, err := e.repo.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusActive {
		return nil, fmt.Errorf("deposits: investment %d already processed (status %s): %w", id, inv.Status, shared.ErrStateConflict)
	}

	ok, err := e.repo.TransitionStatus(ctx, id, StatusActive, StatusMatured)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("deposits: investment %d already processed: %w", id, shared.ErrStateConflict)
	}

	// From here on the investment is terminal. Any failure below leaves the
	// payout incomplete and is surfaced as a PartialSettlementError for
	// manual reconciliation; retrying from here would risk re-crediting.
	capital := inv.Principal
	interest := capital * normalizeRate(inv.Rate) * float64(inv.TermDays) / 360
	total := capital + interest

	account, err := e.accounts.FindAccount(ctx, inv.AccountID)
	if err != nil {
		e.markFailed()
		return nil, &PartialSettlementError{InvestmentID: id, Stage: "find_account", Err: err}
	}
	previousBalance := account.Balance
	newBalance := previousBalance + total
	if err := e.accounts.UpdateBalance(ctx, account.ID, newBalance); err != nil {
		e.markFailed()
		return nil, &PartialSettlementError{InvestmentID: id, Stage: "update_balance", Err: err}
	}

	tx, err := e.accounts.CreateTransaction(ctx, accounts.TransactionInput{
		AccountID:   account.ID,
		Amount:      total,
		Type:        accounts.TransactionCredit,
		Description: SettlementDescription,
	})
	if err != nil {
		e.markFailed()
		return nil, &PartialSettlementError{InvestmentID: id, Stage: "create_transaction", Err: err}
	}
	if _, err := e.repo.CreateMovement(ctx, Movement{
		InvestmentID:  inv.ID,
		TransactionID: tx.ID,
		Type:          MovementSettlement,
	}); err != nil {
		e.markFailed()
		return nil, &PartialSettlementError{InvestmentID: id, Stage: "create_movement", Err: err}
	}

	result := &SettlementResult{
		InvestmentID:    inv.ID,
		Capital:         capital,
		Interest:        interest,
		Total:           total,
		PreviousBalance: previousBalance,
		NewBalance:      newBalance,
		TransactionID:   tx.ID,
		SettledAt:       e.now(),
	}

	if e.metrics != nil {
		e.metrics.SettlementProcessed(total)
	}
	e.recordAudit(ctx, inv.ID, map[string]any{
		"capital":        capital,
		"interest":       interest,
		"total":          total,
		"transaction_id": tx.ID,
	})
	e.logger.Info("investment settled",
		slog.Int64("investment_id", inv.ID),
		slog.Float64("capital", capital),
		slog.Float64("interest", interest),
		slog.Float64("total", total))
	return result, nil
}

// RunSweep settles every ACTIVE investment matured on or before today.
// Items are processed with bounded concurrency; per-item errors are
// collected into the report, never aborting the batch.
func (e *SettlementEngine) RunSweep(ctx context.Context) (*SweepReport, error) {
	started := e.now()
	due, err := e.repo.ListMaturedActive(ctx, dateOnly(started))
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Total: len(due)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for _, inv := range due {
		inv := inv
		g.Go(func() error {
			result, err := e.SettleOne(gctx, inv.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors = append(report.Errors, SweepError{InvestmentID: inv.ID, Reason: err.Error()})
				return nil
			}
			report.Processed = append(report.Processed, *result)
			return nil
		})
	}
	// Workers never return errors; Wait only propagates context cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Processed, func(i, j int) bool {
		return report.Processed[i].InvestmentID < report.Processed[j].InvestmentID
	})
	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].InvestmentID < report.Errors[j].InvestmentID
	})

	if e.metrics != nil {
		e.metrics.SweepDuration(e.now().Sub(started))
	}
	e.logger.Info("maturity sweep finished",
		slog.Int("total", report.Total),
		slog.Int("processed", len(report.Processed)),
		slog.Int("errors", len(report.Errors)))
	return report, nil
}

// Upcoming lists ACTIVE investments maturing within the lookahead window,
// with projected interest and payout. Read-only, no side effects.
func (e *SettlementEngine) Upcoming(ctx context.Context, lookaheadDays int) ([]MaturityProjection, error) {
	if lookaheadDays <= 0 {
		return nil, shared.Invalid("lookahead_days", "must be positive")
	}
	today := dateOnly(e.now())
	due, err := e.repo.ListMaturingBetween(ctx, today, today.AddDate(0, 0, lookaheadDays))
	if err != nil {
		return nil, err
	}
	out := make([]MaturityProjection, 0, len(due))
	for _, inv := range due {
		interest := inv.Principal * normalizeRate(inv.Rate) * float64(inv.TermDays) / 360
		out = append(out, MaturityProjection{
			InvestmentID:      inv.ID,
			AccountID:         inv.AccountID,
			Principal:         inv.Principal,
			Rate:              inv.Rate,
			MaturityDate:      inv.MaturityDate,
			DaysToMaturity:    int(inv.MaturityDate.Sub(today).Hours() / 24),
			ProjectedInterest: interest,
			ProjectedPayout:   inv.Principal + interest,
			AutoRenew:         inv.AutoRenew,
		})
	}
	return out, nil
}

func (e *SettlementEngine) markFailed() {
	if e.metrics != nil {
		e.metrics.SettlementFailed()
	}
}

func (e *SettlementEngine) recordAudit(ctx context.Context, investmentID int64, meta map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, shared.AuditLog{
		Action:   "investment.settle",
		Entity:   "investment",
		EntityID: strconv.FormatInt(investmentID, 10),
		Meta:     meta,
	}); err != nil {
		e.logger.Warn("audit record", slog.Any("error", err))
	}
}
