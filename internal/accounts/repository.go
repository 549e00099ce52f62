package accounts

import "context"

// Store defines the collaborator boundary the deposit engine depends on.
// The balance update is best-effort; the engine never holds locks across
// these calls.
type Store interface {
	FindAccount(ctx context.Context, id int64) (*Account, error)
	UpdateBalance(ctx context.Context, id int64, newBalance float64) error
	CreateTransaction(ctx context.Context, input TransactionInput) (*Transaction, error)
}
