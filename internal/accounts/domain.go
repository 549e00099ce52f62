package accounts

import (
	"time"
)

// AccountStatus enumerates account statuses.
type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "ACTIVE"
	AccountStatusBlocked AccountStatus = "BLOCKED"
	AccountStatusClosed  AccountStatus = "CLOSED"
)

// Account is the externally owned balance record the deposit engine reads
// and updates through the Store port.
type Account struct {
	ID        int64
	Number    string
	Balance   float64
	Status    AccountStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionType enumerates ledger transaction directions.
type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

// TransactionStatus enumerates ledger transaction statuses.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
)

// Transaction is an externally owned ledger record. Amount is signed:
// negative for debits, positive for credits.
type Transaction struct {
	ID          int64
	AccountID   int64
	Reference   string
	Amount      float64
	Type        TransactionType
	Description string
	Status      TransactionStatus
	CreatedAt   time.Time
}

// TransactionInput carries the fields required to create a Transaction.
type TransactionInput struct {
	AccountID   int64
	Amount      float64
	Type        TransactionType
	Description string
}
