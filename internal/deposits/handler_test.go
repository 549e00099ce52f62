package deposits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tesoro-bank/tesoro/internal/accounts"
)

func newTestRouter(repo *memoryRepo, store *memoryAccounts) http.Handler {
	now := func() time.Time { return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC) }
	svc := NewService(repo, store, testRateTable(), testBounds(), testLogger()).WithNow(now)
	engine := NewSettlementEngine(repo, store, testLogger()).WithNow(now)
	h := NewHandler(testLogger(), svc, engine, NewCache(nil, time.Minute), nil)

	r := chi.NewRouter()
	r.Route("/deposits", h.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandlerSimulate(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), newMemoryAccounts())

	rec := doJSON(t, router, http.MethodGet, "/deposits/simulate?principal=500&term_days=90", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sim := decodeBody[Simulation](t, rec)
	require.Equal(t, 2.65, sim.Rate)
	require.Equal(t, 3.3125, sim.Interest)
	require.Equal(t, 503.3125, sim.FinalAmount)
	require.False(t, sim.RateDefaulted)
}

func TestHandlerSimulateRejectsBadInput(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), newMemoryAccounts())

	rec := doJSON(t, router, http.MethodGet, "/deposits/simulate?principal=abc&term_days=90", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/deposits/simulate?principal=500", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Within syntax, outside configured bounds.
	rec = doJSON(t, router, http.MethodGet, "/deposits/simulate?principal=50&term_days=90", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRecommendations(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), newMemoryAccounts())

	rec := doJSON(t, router, http.MethodGet, "/deposits/recommendations?principal=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	recs := decodeBody[[]Recommendation](t, rec)
	require.Len(t, recs, len(ReferenceTerms))
}

func TestHandlerCreateInvestment(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	router := newTestRouter(repo, store)

	rec := doJSON(t, router, http.MethodPost, "/deposits/investments", map[string]any{
		"account_id": 1,
		"principal":  500,
		"term_days":  90,
		"modality":   "AT_MATURITY",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	inv := decodeBody[Investment](t, rec)
	require.Equal(t, StatusActive, inv.Status)
	require.Equal(t, 2.65, inv.Rate)
	require.Equal(t, 500.0, store.balance(1))

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/deposits/investments/%d/schedule", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]ScheduleEntry](t, rec), 2)
}

func TestHandlerCreateInvestmentValidation(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), newMemoryAccounts())

	rec := doJSON(t, router, http.MethodPost, "/deposits/investments", map[string]any{
		"principal": 500,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/deposits/investments", bytes.NewBufferString("{not json"))
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusBadRequest, out.Code)
}

func TestHandlerCancelInvestmentTwice(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 1000, Status: accounts.AccountStatusActive})
	router := newTestRouter(repo, store)

	rec := doJSON(t, router, http.MethodPost, "/deposits/investments", map[string]any{
		"account_id": 1, "principal": 500, "term_days": 90, "modality": "MONTHLY",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	inv := decodeBody[Investment](t, rec)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/deposits/investments/%d/cancel", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1000.0, store.balance(1))

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/deposits/investments/%d/cancel", inv.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 1000.0, store.balance(1))
}

func TestHandlerSettleInvestment(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 500, Status: accounts.AccountStatusActive})
	opening := time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC)
	inv, err := repo.CreateInvestment(context.Background(), Investment{
		AccountID: 1, Principal: 500, TermDays: 90, Rate: 2.65,
		OpeningDate: opening, MaturityDate: MaturityDate(opening, 90),
		Modality: ModalityAtMaturity, Status: StatusActive,
	})
	require.NoError(t, err)
	router := newTestRouter(repo, store)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/deposits/investments/%d/settle", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody[SettlementResult](t, rec)
	require.Equal(t, 3.3125, result.Interest)
	require.Equal(t, 1003.3125, result.NewBalance)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/deposits/investments/%d/settle", inv.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerSweep(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryAccounts(accounts.Account{ID: 1, Balance: 0, Status: accounts.AccountStatusActive})
	opening := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.CreateInvestment(context.Background(), Investment{
		AccountID: 1, Principal: 500, TermDays: 90, Rate: 2.65,
		OpeningDate: opening, MaturityDate: MaturityDate(opening, 90),
		Modality: ModalityAtMaturity, Status: StatusActive,
	})
	require.NoError(t, err)
	router := newTestRouter(repo, store)

	rec := doJSON(t, router, http.MethodPost, "/deposits/maturities/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeBody[SweepReport](t, rec)
	require.Equal(t, 1, report.Total)
	require.Len(t, report.Processed, 1)
	require.Empty(t, report.Errors)
}

func TestHandlerUpcomingMaturities(t *testing.T) {
	repo := newMemoryRepo()
	_, err := repo.CreateInvestment(context.Background(), Investment{
		AccountID: 1, Principal: 500, TermDays: 90, Rate: 2.65,
		OpeningDate:  time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC),
		MaturityDate: time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC),
		Modality:     ModalityAtMaturity, Status: StatusActive,
	})
	require.NoError(t, err)
	router := newTestRouter(repo, newMemoryAccounts())

	rec := doJSON(t, router, http.MethodGet, "/deposits/maturities/upcoming?lookahead_days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]MaturityProjection](t, rec), 1)

	rec = doJSON(t, router, http.MethodGet, "/deposits/maturities/upcoming", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetInvestmentNotFound(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), newMemoryAccounts())

	rec := doJSON(t, router, http.MethodGet, "/deposits/investments/404", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/deposits/investments/not-a-number", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
