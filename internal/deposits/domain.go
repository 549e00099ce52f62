package deposits

import (
	"time"
)

// ProductType enumerates deposit products.
type ProductType string

const (
	// ProductTermDeposit is currently the only supported product.
	ProductTermDeposit ProductType = "TERM_DEPOSIT"
)

// Modality describes how and when interest is paid out.
type Modality string

const (
	ModalityMonthly    Modality = "MONTHLY"
	ModalityQuarterly  Modality = "QUARTERLY"
	ModalitySemiannual Modality = "SEMIANNUAL"
	ModalityAtMaturity Modality = "AT_MATURITY"
)

// IntervalMonths returns the payment interval for periodic modalities and
// 0 for AT_MATURITY.
func (m Modality) IntervalMonths() int {
	switch m {
	case ModalityMonthly:
		return 1
	case ModalityQuarterly:
		return 3
	case ModalitySemiannual:
		return 6
	default:
		return 0
	}
}

// Valid reports whether the modality is one of the supported values.
func (m Modality) Valid() bool {
	switch m {
	case ModalityMonthly, ModalityQuarterly, ModalitySemiannual, ModalityAtMaturity:
		return true
	}
	return false
}

// InvestmentStatus enumerates investment statuses. CANCELLED and MATURED
// are terminal; no transition ever leaves them.
type InvestmentStatus string

const (
	StatusActive    InvestmentStatus = "ACTIVE"
	StatusCancelled InvestmentStatus = "CANCELLED"
	StatusMatured   InvestmentStatus = "MATURED"
)

// Investment model. Principal, term and rate are immutable after creation;
// the rate is resolved once at opening and never re-resolved, even if the
// rate table changes later.
type Investment struct {
	ID           int64            `json:"id"`
	AccountID    int64            `json:"account_id"`
	ProductType  ProductType      `json:"product_type"`
	Principal    float64          `json:"principal"`
	TermDays     int              `json:"term_days"`
	Modality     Modality         `json:"modality"`
	Rate         float64          `json:"rate"`
	OpeningDate  time.Time        `json:"opening_date"`
	MaturityDate time.Time        `json:"maturity_date"`
	AutoRenew    bool             `json:"auto_renew"`
	Status       InvestmentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ScheduleEntryType enumerates scheduled payment kinds.
type ScheduleEntryType string

const (
	EntryInterestPayment ScheduleEntryType = "INTEREST_PAYMENT"
	EntryCapitalReturn   ScheduleEntryType = "CAPITAL_RETURN"
)

// ScheduleEntryStatus enumerates schedule entry statuses. Nothing in the
// settlement path writes EXECUTED back today; the schedule is advisory and
// settlement recomputes amounts from scratch.
type ScheduleEntryStatus string

const (
	EntryPending  ScheduleEntryStatus = "PENDING"
	EntryExecuted ScheduleEntryStatus = "EXECUTED"
)

// ScheduleEntry is a planned future payment. Amount is stored with integer
// precision; the persisted column is integer-typed.
type ScheduleEntry struct {
	ID            int64               `json:"id"`
	InvestmentID  int64               `json:"investment_id"`
	Type          ScheduleEntryType   `json:"type"`
	ScheduledDate time.Time           `json:"scheduled_date"`
	Amount        int64               `json:"amount"`
	Status        ScheduleEntryStatus `json:"status"`
}

// MovementType enumerates the business reasons linking an investment to a
// ledger transaction.
type MovementType string

const (
	MovementOpening      MovementType = "OPENING"
	MovementCancellation MovementType = "CANCELLATION"
	MovementSettlement   MovementType = "MATURITY_SETTLEMENT"
)

// Movement is an append-only audit-trail record pointing at an externally
// owned ledger transaction.
type Movement struct {
	ID            int64        `json:"id"`
	InvestmentID  int64        `json:"investment_id"`
	TransactionID int64        `json:"transaction_id"`
	Type          MovementType `json:"type"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CreateInvestmentInput carries the fields required to open an investment.
type CreateInvestmentInput struct {
	AccountID int64
	Principal float64
	TermDays  int
	Modality  Modality
	AutoRenew bool
}

// UpdateInvestmentInput carries the mutable fields. Only modality and
// auto-renew may change, and only while the investment is ACTIVE. Changing
// the modality does not regenerate the schedule.
type UpdateInvestmentInput struct {
	Modality  *Modality
	AutoRenew *bool
}

// ListFilter narrows investment listings.
type ListFilter struct {
	AccountID int64
	Status    InvestmentStatus
	Limit     int
	Offset    int
}
