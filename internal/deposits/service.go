package deposits

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tesoro-bank/tesoro/internal/accounts"
	"github.com/tesoro-bank/tesoro/internal/shared"
)

// Bounds holds the configured principal and term limits enforced on
// creation.
type Bounds struct {
	MinAmount   float64
	MaxAmount   float64
	MinTermDays int
	MaxTermDays int
}

// Service orchestrates the investment lifecycle: creation, update,
// cancellation and read paths.
type Service struct {
	repo     RepositoryPort
	accounts accounts.Store
	table    RateTable
	bounds   Bounds
	logger   *slog.Logger
	audit    *shared.AuditLogger
	now      func() time.Time
}

// NewService builds Service instance. The rate table and bounds are
// injected read-only configuration so tests can supply alternates.
func NewService(repo RepositoryPort, store accounts.Store, table RateTable, bounds Bounds, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: store,
		table:    table,
		bounds:   bounds,
		logger:   logger,
		now:      time.Now,
	}
}

// WithAudit attaches a best-effort audit trail writer.
func (s *Service) WithAudit(audit *shared.AuditLogger) *Service {
	s.audit = audit
	return s
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// RateTable exposes the injected table for the simulation endpoints.
func (s *Service) RateTable() RateTable { return s.table }

// Simulate previews a deposit without persisting anything.
func (s *Service) Simulate(principal float64, termDays int) (Simulation, error) {
	if err := s.validateBounds(principal, termDays); err != nil {
		return Simulation{}, err
	}
	today := dateOnly(s.now())
	return Simulate(s.table, principal, termDays, today), nil
}

// Recommendations lists longer-term alternatives at the same principal.
func (s *Service) Recommendations(principal float64) ([]Recommendation, error) {
	if principal <= 0 {
		return nil, shared.Invalid("principal", "must be positive")
	}
	return Recommendations(s.table, principal), nil
}

// Create opens a new term deposit. Validation fails fast with no side
// effects; the effect sequence on success is: persist investment, debit
// account, persist schedule batch, record OPENING transaction + movement.
// The steps are best-effort sequential, not atomic across collaborators.
func (s *Service) Create(ctx context.Context, input CreateInvestmentInput) (*Investment, error) {
	if err := s.validateBounds(input.Principal, input.TermDays); err != nil {
		return nil, err
	}
	if !input.Modality.Valid() {
		return nil, shared.Invalid("modality", "unknown modality")
	}

	account, err := s.accounts.FindAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != accounts.AccountStatusActive {
		return nil, fmt.Errorf("deposits: account %d is %s: %w", account.ID, account.Status, shared.ErrStateConflict)
	}
	if account.Balance < input.Principal {
		return nil, shared.Invalid("principal", "insufficient balance")
	}

	resolved := s.table.Resolve(input.Principal, input.TermDays)
	opening := dateOnly(s.now())

	inv, err := s.repo.CreateInvestment(ctx, Investment{
		AccountID:    input.AccountID,
		ProductType:  ProductTermDeposit,
		Principal:    input.Principal,
		TermDays:     input.TermDays,
		Modality:     input.Modality,
		Rate:         resolved.Rate,
		OpeningDate:  opening,
		MaturityDate: MaturityDate(opening, input.TermDays),
		AutoRenew:    input.AutoRenew,
		Status:       StatusActive,
	})
	if err != nil {
		return nil, err
	}

	newBalance := Round2(account.Balance - input.Principal)
	if err := s.accounts.UpdateBalance(ctx, account.ID, newBalance); err != nil {
		return nil, fmt.Errorf("deposits: debit account: %w: %v", shared.ErrDependency, err)
	}

	if err := s.repo.CreateScheduleEntries(ctx, GenerateSchedule(*inv, resolved.Rate)); err != nil {
		return nil, err
	}

	tx, err := s.accounts.CreateTransaction(ctx, accounts.TransactionInput{
		AccountID:   account.ID,
		Amount:      -input.Principal,
		Type:        accounts.TransactionDebit,
		Description: "Apertura de Plazo Fijo",
	})
	if err != nil {
		return nil, fmt.Errorf("deposits: opening transaction: %w: %v", shared.ErrDependency, err)
	}
	if _, err := s.repo.CreateMovement(ctx, Movement{
		InvestmentID:  inv.ID,
		TransactionID: tx.ID,
		Type:          MovementOpening,
	}); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "investment.create", inv.ID, map[string]any{
		"account_id": inv.AccountID,
		"principal":  inv.Principal,
		"term_days":  inv.TermDays,
		"rate":       inv.Rate,
	})
	s.logger.Info("investment created",
		slog.Int64("investment_id", inv.ID),
		slog.Int64("account_id", inv.AccountID),
		slog.Float64("principal", inv.Principal),
		slog.Float64("rate", inv.Rate))
	return inv, nil
}

// Get returns a single investment.
func (s *Service) Get(ctx context.Context, id int64) (*Investment, error) {
	return s.repo.GetInvestment(ctx, id)
}

// List returns investments matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Investment, error) {
	return s.repo.ListInvestments(ctx, filter)
}

// ListByAccount returns the investments of one account.
func (s *Service) ListByAccount(ctx context.Context, accountID int64) ([]Investment, error) {
	return s.repo.ListInvestments(ctx, ListFilter{AccountID: accountID})
}

// GetSchedule returns the payment plan of an investment.
func (s *Service) GetSchedule(ctx context.Context, investmentID int64) ([]ScheduleEntry, error) {
	if _, err := s.repo.GetInvestment(ctx, investmentID); err != nil {
		return nil, err
	}
	return s.repo.ListSchedule(ctx, investmentID)
}

// GetMovements returns the movement trail of an investment.
func (s *Service) GetMovements(ctx context.Context, investmentID int64) ([]Movement, error) {
	if _, err := s.repo.GetInvestment(ctx, investmentID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, investmentID)
}

// Update changes modality and/or auto-renew while ACTIVE. The existing
// schedule is left untouched when the modality changes; this is an
// accepted limitation, not a bug.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInvestmentInput) (*Investment, error) {
	inv, err := s.repo.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusActive {
		return nil, fmt.Errorf("deposits: investment %d is %s: %w", id, inv.Status, shared.ErrStateConflict)
	}

	modality := inv.Modality
	if input.Modality != nil {
		if !input.Modality.Valid() {
			return nil, shared.Invalid("modality", "unknown modality")
		}
		modality = *input.Modality
	}
	autoRenew := inv.AutoRenew
	if input.AutoRenew != nil {
		autoRenew = *input.AutoRenew
	}

	if err := s.repo.UpdateInvestment(ctx, id, modality, autoRenew); err != nil {
		return nil, err
	}
	return s.repo.GetInvestment(ctx, id)
}

// Cancel terminates an ACTIVE investment early, crediting back exactly the
// original principal. Early termination forfeits interest.
func (s *Service) Cancel(ctx context.Context, id int64) (*Investment, error) {
	inv, err := s.repo.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.TransitionStatus(ctx, id, StatusActive, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("deposits: investment %d is not ACTIVE: %w", id, shared.ErrStateConflict)
	}

	account, err := s.accounts.FindAccount(ctx, inv.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateBalance(ctx, account.ID, Round2(account.Balance+inv.Principal)); err != nil {
		return nil, fmt.Errorf("deposits: credit back principal: %w: %v", shared.ErrDependency, err)
	}

	tx, err := s.accounts.CreateTransaction(ctx, accounts.TransactionInput{
		AccountID:   account.ID,
		Amount:      inv.Principal,
		Type:        accounts.TransactionCredit,
		Description: "Cancelación de Plazo Fijo",
	})
	if err != nil {
		return nil, fmt.Errorf("deposits: cancellation transaction: %w: %v", shared.ErrDependency, err)
	}
	if _, err := s.repo.CreateMovement(ctx, Movement{
		InvestmentID:  inv.ID,
		TransactionID: tx.ID,
		Type:          MovementCancellation,
	}); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "investment.cancel", inv.ID, map[string]any{
		"account_id": inv.AccountID,
		"principal":  inv.Principal,
	})
	s.logger.Info("investment cancelled",
		slog.Int64("investment_id", inv.ID),
		slog.Float64("credited", inv.Principal))
	return s.repo.GetInvestment(ctx, id)
}

func (s *Service) validateBounds(principal float64, termDays int) error {
	if principal < s.bounds.MinAmount {
		return shared.Invalid("principal", "amount below minimum")
	}
	if principal > s.bounds.MaxAmount {
		return shared.Invalid("principal", "amount above maximum")
	}
	if termDays < s.bounds.MinTermDays {
		return shared.Invalid("term_days", "term below minimum")
	}
	if termDays > s.bounds.MaxTermDays {
		return shared.Invalid("term_days", "term above maximum")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, investmentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "investment",
		EntityID: strconv.FormatInt(investmentID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

// dateOnly strips the time component; opening and maturity dates are
// calendar dates, not timestamps.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
