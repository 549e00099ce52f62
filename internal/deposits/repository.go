package deposits

import (
	"context"
	"time"
)

// RepositoryPort defines data access for investments, schedules
// and movements.
type RepositoryPort interface {
	CreateInvestment(ctx context.Context, inv Investment) (*Investment, error)
	GetInvestment(ctx context.Context, id int64) (*Investment, error)
	ListInvestments(ctx context.Context, filter ListFilter) ([]Investment, error)
	UpdateInvestment(ctx context.Context, id int64, modality Modality, autoRenew bool) error

	// TransitionStatus is the compare-and-set decision point for terminal
	// transitions: the row is updated only when its current status equals
	// `from`. Returns false, without error, when the guard did not hold.
	TransitionStatus(ctx context.Context, id int64, from, to InvestmentStatus) (bool, error)

	CreateScheduleEntries(ctx context.Context, entries []ScheduleEntry) error
	ListSchedule(ctx context.Context, investmentID int64) ([]ScheduleEntry, error)

	CreateMovement(ctx context.Context, mv Movement) (*Movement, error)
	ListMovements(ctx context.Context, investmentID int64) ([]Movement, error)

	// ListMaturedActive returns ACTIVE investments whose maturity date is on
	// or before asOf.
	ListMaturedActive(ctx context.Context, asOf time.Time) ([]Investment, error)
	// ListMaturingBetween returns ACTIVE investments maturing inside the
	// (from, to] window, for the near-maturity report.
	ListMaturingBetween(ctx context.Context, from, to time.Time) ([]Investment, error)
}
