package deposits

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tesoro-bank/tesoro/internal/accounts"
	"github.com/tesoro-bank/tesoro/internal/shared"
)

// memoryRepo is a map-backed RepositoryPort. TransitionStatus performs a
// real compare-and-set under the mutex so concurrency tests exercise the
// same guard semantics as the SQL implementation.
type memoryRepo struct {
	mu          sync.Mutex
	nextID      int64
	investments map[int64]Investment
	schedules   map[int64][]ScheduleEntry
	movements   map[int64][]Movement

	failCreateSchedule error
	failCreateMovement error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		investments: make(map[int64]Investment),
		schedules:   make(map[int64][]ScheduleEntry),
		movements:   make(map[int64][]Movement),
	}
}

func (r *memoryRepo) CreateInvestment(_ context.Context, inv Investment) (*Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	r.investments[inv.ID] = inv
	return &inv, nil
}

func (r *memoryRepo) GetInvestment(_ context.Context, id int64) (*Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *memoryRepo) ListInvestments(_ context.Context, filter ListFilter) ([]Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Investment
	for _, inv := range r.investments {
		if filter.AccountID != 0 && inv.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *memoryRepo) UpdateInvestment(_ context.Context, id int64, modality Modality, autoRenew bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investments[id]
	if !ok {
		return shared.ErrNotFound
	}
	if inv.Status != StatusActive {
		return shared.ErrStateConflict
	}
	inv.Modality = modality
	inv.AutoRenew = autoRenew
	inv.UpdatedAt = time.Now()
	r.investments[id] = inv
	return nil
}

func (r *memoryRepo) TransitionStatus(_ context.Context, id int64, from, to InvestmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investments[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	inv.UpdatedAt = time.Now()
	r.investments[id] = inv
	return true, nil
}

func (r *memoryRepo) CreateScheduleEntries(_ context.Context, entries []ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateSchedule != nil {
		return r.failCreateSchedule
	}
	for _, e := range entries {
		r.schedules[e.InvestmentID] = append(r.schedules[e.InvestmentID], e)
	}
	return nil
}

func (r *memoryRepo) ListSchedule(_ context.Context, investmentID int64) ([]ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScheduleEntry(nil), r.schedules[investmentID]...), nil
}

func (r *memoryRepo) CreateMovement(_ context.Context, mv Movement) (*Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateMovement != nil {
		return nil, r.failCreateMovement
	}
	mv.ID = int64(len(r.movements[mv.InvestmentID]) + 1)
	mv.CreatedAt = time.Now()
	r.movements[mv.InvestmentID] = append(r.movements[mv.InvestmentID], mv)
	return &mv, nil
}

func (r *memoryRepo) ListMovements(_ context.Context, investmentID int64) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Movement(nil), r.movements[investmentID]...), nil
}

func (r *memoryRepo) ListMaturedActive(_ context.Context, asOf time.Time) ([]Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Investment
	for _, inv := range r.investments {
		if inv.Status == StatusActive && !inv.MaturityDate.After(asOf) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMaturingBetween(_ context.Context, from, to time.Time) ([]Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Investment
	for _, inv := range r.investments {
		if inv.Status == StatusActive && inv.MaturityDate.After(from) && !inv.MaturityDate.After(to) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// memoryAccounts is a map-backed accounts.Store with injectable failures.
type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*accounts.Account
	txs      []accounts.Transaction
	nextTxID int64

	failFindAccount       error
	failUpdateBalance     error
	failCreateTransaction error
}

func newMemoryAccounts(accs ...accounts.Account) *memoryAccounts {
	s := &memoryAccounts{accounts: make(map[int64]*accounts.Account)}
	for _, a := range accs {
		copied := a
		s.accounts[a.ID] = &copied
	}
	return s
}

func (s *memoryAccounts) FindAccount(_ context.Context, id int64) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindAccount != nil {
		return nil, s.failFindAccount
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *memoryAccounts) UpdateBalance(_ context.Context, id int64, newBalance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateBalance != nil {
		return s.failUpdateBalance
	}
	a, ok := s.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.Balance = newBalance
	return nil
}

func (s *memoryAccounts) CreateTransaction(_ context.Context, input accounts.TransactionInput) (*accounts.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateTransaction != nil {
		return nil, s.failCreateTransaction
	}
	s.nextTxID++
	tx := accounts.Transaction{
		ID:          s.nextTxID,
		AccountID:   input.AccountID,
		Amount:      input.Amount,
		Type:        input.Type,
		Description: input.Description,
		Status:      accounts.TransactionCompleted,
		CreatedAt:   time.Now(),
	}
	s.txs = append(s.txs, tx)
	return &tx, nil
}

func (s *memoryAccounts) balance(id int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Balance
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBounds() Bounds {
	return Bounds{MinAmount: 100, MaxAmount: 1_000_000, MinTermDays: 30, MaxTermDays: 365}
}

func newTestService(repo *memoryRepo, store *memoryAccounts) *Service {
	return NewService(repo, store, testRateTable(), testBounds(), testLogger()).
		WithNow(func() time.Time { return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC) })
}

func TestCreateInvestment(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Number: "001-123", Balance: 1000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	inv, err := svc.Create(context.Background(), CreateInvestmentInput{
		AccountID: 1,
		Principal: 500,
		TermDays:  90,
		Modality:  ModalityAtMaturity,
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, inv.Status)
	require.Equal(t, 2.65, inv.Rate)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), inv.OpeningDate)
	require.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), inv.MaturityDate)

	require.Equal(t, 500.0, store.balance(1))

	schedule, err := svc.GetSchedule(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 2)

	movements, err := svc.GetMovements(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, MovementOpening, movements[0].Type)

	require.Len(t, store.txs, 1)
	require.Equal(t, -500.0, store.txs[0].Amount)
	require.Equal(t, accounts.TransactionDebit, store.txs[0].Type)
	require.Equal(t, "Apertura de Plazo Fijo", store.txs[0].Description)
}

func TestCreateInvestmentBounds(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 2_000_000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	cases := []struct {
		name  string
		input CreateInvestmentInput
	}{
		{"below minimum amount", CreateInvestmentInput{AccountID: 1, Principal: 99, TermDays: 90, Modality: ModalityAtMaturity}},
		{"above maximum amount", CreateInvestmentInput{AccountID: 1, Principal: 1_000_000.01, TermDays: 90, Modality: ModalityAtMaturity}},
		{"below minimum term", CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 29, Modality: ModalityAtMaturity}},
		{"above maximum term", CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 366, Modality: ModalityAtMaturity}},
		{"unknown modality", CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 90, Modality: "WEEKLY"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	// Validation failures leave no trace.
	require.Empty(t, repo.investments)
	require.Empty(t, store.txs)
	require.Equal(t, 2_000_000.0, store.balance(1))
}

func TestCreateInvestmentAcceptsExactBounds(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 2_000_000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	// Bounds are inclusive: the exact limits open fine.
	cases := []struct {
		name  string
		input CreateInvestmentInput
	}{
		{"minimum amount", CreateInvestmentInput{AccountID: 1, Principal: 100, TermDays: 90, Modality: ModalityAtMaturity}},
		{"maximum amount", CreateInvestmentInput{AccountID: 1, Principal: 1_000_000, TermDays: 90, Modality: ModalityAtMaturity}},
		{"minimum term", CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 30, Modality: ModalityAtMaturity}},
		{"maximum term", CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 365, Modality: ModalityAtMaturity}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := svc.Create(context.Background(), tc.input)
			require.NoError(t, err)
			require.Equal(t, StatusActive, inv.Status)
			require.Equal(t, tc.input.Principal, inv.Principal)
			require.Equal(t, tc.input.TermDays, inv.TermDays)
		})
	}
}

func TestCreateInvestmentAccountChecks(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(
		accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive},
		accounts.Account{ID: 2, Balance: 1000, Status: accounts.AccountStatusBlocked},
	)
	svc := newTestService(repo, store)

	_, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 99, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Create(context.Background(), CreateInvestmentInput{AccountID: 2, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 1500, TermDays: 90, Modality: ModalityAtMaturity})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "insufficient balance", verr.Reason)
}

func TestCreateInvestmentDebitFailure(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	store.failUpdateBalance = errors.New("ledger unavailable")
	svc := newTestService(repo, store)

	_, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.ErrorIs(t, err, shared.ErrDependency)
}

func TestCreateInvestmentScheduleFailureAfterDebit(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreateSchedule = errors.New("schedule insert failed")
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	_, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.Error(t, err)

	// The steps are best-effort sequential: the debit already landed and
	// is not rolled back, while the later opening transaction and
	// movement never happen.
	require.Equal(t, 500.0, store.balance(1))
	require.Empty(t, store.txs)
	require.Empty(t, repo.movements)
}

func TestCreateInvestmentOpeningTransactionFailure(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	store.failCreateTransaction = errors.New("ledger unavailable")
	svc := newTestService(repo, store)

	_, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.ErrorIs(t, err, shared.ErrDependency)
}

func TestUpdateInvestment(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	inv, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 180, Modality: ModalityMonthly})
	require.NoError(t, err)

	quarterly := ModalityQuarterly
	renew := true
	updated, err := svc.Update(context.Background(), inv.ID, UpdateInvestmentInput{Modality: &quarterly, AutoRenew: &renew})
	require.NoError(t, err)
	require.Equal(t, ModalityQuarterly, updated.Modality)
	require.True(t, updated.AutoRenew)
	// Immutable fields are untouched.
	require.Equal(t, inv.Principal, updated.Principal)
	require.Equal(t, inv.Rate, updated.Rate)
	require.Equal(t, inv.MaturityDate, updated.MaturityDate)

	bad := Modality("WEEKLY")
	_, err = svc.Update(context.Background(), inv.ID, UpdateInvestmentInput{Modality: &bad})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Cancel(context.Background(), inv.ID)
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), inv.ID, UpdateInvestmentInput{AutoRenew: &renew})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCancelInvestment(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	inv, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.NoError(t, err)
	require.Equal(t, 500.0, store.balance(1))

	cancelled, err := svc.Cancel(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	// Exactly the principal comes back; accrued interest is forfeited.
	require.Equal(t, 1000.0, store.balance(1))

	movements, err := svc.GetMovements(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, MovementCancellation, movements[1].Type)

	require.Len(t, store.txs, 2)
	require.Equal(t, 500.0, store.txs[1].Amount)
	require.Equal(t, "Cancelación de Plazo Fijo", store.txs[1].Description)
}

func TestCancelInvestmentIsNotRepeatable(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	svc := newTestService(repo, store)

	inv, err := svc.Create(context.Background(), CreateInvestmentInput{AccountID: 1, Principal: 500, TermDays: 90, Modality: ModalityAtMaturity})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), inv.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), inv.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	// The second attempt must not credit the account again.
	require.Equal(t, 1000.0, store.balance(1))
	require.Len(t, store.txs, 2)
}

func TestCancelUnknownInvestment(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newMemoryAccounts())
	_, err := svc.Cancel(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSimulateService(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newMemoryAccounts())

	sim, err := svc.Simulate(500, 90)
	require.NoError(t, err)
	require.Equal(t, 2.65, sim.Rate)
	require.Equal(t, 3.3125, sim.Interest)

	_, err = svc.Simulate(50, 90)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecommendationsService(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newMemoryAccounts())

	recs, err := svc.Recommendations(500)
	require.NoError(t, err)
	require.Len(t, recs, len(ReferenceTerms))

	_, err = svc.Recommendations(0)
	require.ErrorIs(t, err, shared.ErrValidation)
}
