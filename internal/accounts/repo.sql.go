package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tesoro-bank/tesoro/internal/shared"
)

// Repository provides PostgreSQL backed persistence for accounts and
// ledger transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindAccount returns the account or ErrNotFound.
func (r *Repository) FindAccount(ctx context.Context, id int64) (*Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx, `SELECT id, number, balance, status, created_at, updated_at FROM accounts WHERE id = $1`, id).
		Scan(&acc.ID, &acc.Number, &acc.Balance, &acc.Status, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("accounts: account %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("accounts: find account: %w", err)
	}
	return &acc, nil
}

// UpdateBalance writes the new balance.
func (r *Repository) UpdateBalance(ctx context.Context, id int64, newBalance float64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, id, newBalance)
	if err != nil {
		return fmt.Errorf("accounts: update balance: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("accounts: account %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// CreateTransaction inserts a ledger transaction with a fresh reference.
func (r *Repository) CreateTransaction(ctx context.Context, input TransactionInput) (*Transaction, error) {
	tx := Transaction{
		AccountID:   input.AccountID,
		Reference:   uuid.NewString(),
		Amount:      input.Amount,
		Type:        input.Type,
		Description: input.Description,
		Status:      TransactionCompleted,
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO transactions (account_id, reference, amount, type, description, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id, created_at`,
		tx.AccountID, tx.Reference, tx.Amount, tx.Type, tx.Description, tx.Status).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("accounts: create transaction: %w", err)
	}
	return &tx, nil
}
