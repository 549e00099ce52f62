package deposits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tesoro-bank/tesoro/internal/platform/db"
	"github.com/tesoro-bank/tesoro/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const investmentColumns = `id, account_id, product_type, principal, term_days, modality, rate, opening_date, maturity_date, auto_renew, status, created_at, updated_at`

func scanInvestment(row pgx.Row) (*Investment, error) {
	var inv Investment
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.ProductType, &inv.Principal, &inv.TermDays, &inv.Modality,
		&inv.Rate, &inv.OpeningDate, &inv.MaturityDate, &inv.AutoRenew, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvestment inserts a new investment.
func (r *Repository) CreateInvestment(ctx context.Context, inv Investment) (*Investment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO investments (account_id, product_type, principal, term_days, modality, rate, opening_date, maturity_date, auto_renew, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		inv.AccountID, inv.ProductType, inv.Principal, inv.TermDays, inv.Modality, inv.Rate,
		inv.OpeningDate, inv.MaturityDate, inv.AutoRenew, inv.Status).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("deposits: create investment: %w", err)
	}
	return &inv, nil
}

// GetInvestment returns an investment or ErrNotFound.
func (r *Repository) GetInvestment(ctx context.Context, id int64) (*Investment, error) {
	inv, err := scanInvestment(r.pool.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("deposits: investment %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("deposits: get investment: %w", err)
	}
	return inv, nil
}

// ListInvestments returns investments matching the filter.
func (r *Repository) ListInvestments(ctx context.Context, filter ListFilter) ([]Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE 1=1`
	args := []any{}
	argNum := 1
	if filter.AccountID != 0 {
		query += fmt.Sprintf(" AND account_id = $%d", argNum)
		args = append(args, filter.AccountID)
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deposits: list investments: %w", err)
	}
	defer rows.Close()
	var out []Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// UpdateInvestment changes modality and auto-renew for an ACTIVE investment.
func (r *Repository) UpdateInvestment(ctx context.Context, id int64, modality Modality, autoRenew bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE investments
SET modality = $2, auto_renew = $3, updated_at = NOW()
WHERE id = $1 AND status = 'ACTIVE'`, id, modality, autoRenew)
	if err != nil {
		return fmt.Errorf("deposits: update investment: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("deposits: investment %d not found or not ACTIVE: %w", id, shared.ErrStateConflict)
	}
	return nil
}

// TransitionStatus performs the conditional terminal transition. Only one
// concurrent caller can observe true for a given (id, from) pair.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to InvestmentStatus) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE investments
SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("deposits: transition status: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// CreateScheduleEntries inserts the schedule as one transactional batch;
// a partial schedule is never persisted.
func (r *Repository) CreateScheduleEntries(ctx context.Context, entries []ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`INSERT INTO schedule_entries (investment_id, type, scheduled_date, amount, status)
VALUES ($1, $2, $3, $4, $5)`, e.InvestmentID, e.Type, e.ScheduledDate, e.Amount, e.Status)
		}
		results := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("deposits: create schedule entries: %w", err)
			}
		}
		return results.Close()
	})
}

// ListSchedule returns the schedule entries for an investment.
func (r *Repository) ListSchedule(ctx context.Context, investmentID int64) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, investment_id, type, scheduled_date, amount, status
FROM schedule_entries WHERE investment_id = $1 ORDER BY scheduled_date, id`, investmentID)
	if err != nil {
		return nil, fmt.Errorf("deposits: list schedule: %w", err)
	}
	defer rows.Close()
	var out []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.ID, &e.InvestmentID, &e.Type, &e.ScheduledDate, &e.Amount, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateMovement inserts a movement record.
func (r *Repository) CreateMovement(ctx context.Context, mv Movement) (*Movement, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO movements (investment_id, transaction_id, type, created_at)
VALUES ($1, $2, $3, NOW()) RETURNING id, created_at`,
		mv.InvestmentID, mv.TransactionID, mv.Type).
		Scan(&mv.ID, &mv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("deposits: create movement: %w", err)
	}
	return &mv, nil
}

// ListMovements returns the movements for an investment.
func (r *Repository) ListMovements(ctx context.Context, investmentID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, investment_id, transaction_id, type, created_at
FROM movements WHERE investment_id = $1 ORDER BY id`, investmentID)
	if err != nil {
		return nil, fmt.Errorf("deposits: list movements: %w", err)
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.InvestmentID, &mv.TransactionID, &mv.Type, &mv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// ListMaturedActive returns ACTIVE investments due for settlement.
func (r *Repository) ListMaturedActive(ctx context.Context, asOf time.Time) ([]Investment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+investmentColumns+` FROM investments
WHERE status = 'ACTIVE' AND maturity_date <= $1 ORDER BY maturity_date, id`, asOf)
	if err != nil {
		return nil, fmt.Errorf("deposits: list matured: %w", err)
	}
	defer rows.Close()
	var out []Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// ListMaturingBetween returns ACTIVE investments maturing within the window.
func (r *Repository) ListMaturingBetween(ctx context.Context, from, to time.Time) ([]Investment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+investmentColumns+` FROM investments
WHERE status = 'ACTIVE' AND maturity_date > $1 AND maturity_date <= $2 ORDER BY maturity_date, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("deposits: list maturing: %w", err)
	}
	defer rows.Close()
	var out []Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}
