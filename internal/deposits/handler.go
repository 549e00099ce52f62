package deposits

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/tesoro-bank/tesoro/internal/platform/httpx"
	"github.com/tesoro-bank/tesoro/internal/shared"
)

// Handler manages the deposit engine endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	engine      *SettlementEngine
	cache       *Cache
	idempotency *shared.IdempotencyStore
	validator   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, engine *SettlementEngine, cache *Cache, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		engine:      engine,
		cache:       cache,
		idempotency: idempotency,
		validator:   validator.New(),
	}
}

// MountRoutes registers deposit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/simulate", h.simulate)
	r.Get("/recommendations", h.recommendations)

	r.Post("/investments", h.createInvestment)
	r.Get("/investments", h.listInvestments)
	r.Get("/investments/{id}", h.getInvestment)
	r.Patch("/investments/{id}", h.updateInvestment)
	r.Post("/investments/{id}/cancel", h.cancelInvestment)
	r.Get("/investments/{id}/schedule", h.getSchedule)
	r.Get("/investments/{id}/movements", h.getMovements)
	r.Get("/accounts/{accountID}/investments", h.listByAccount)

	r.Get("/maturities/upcoming", h.upcomingMaturities)

	// Settlement triggers are for the external scheduler and operators;
	// keep them behind a tighter rate limit.
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		gr.Post("/maturities/sweep", h.runSweep)
		gr.Post("/investments/{id}/settle", h.settleOne)
	})
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	principal, err := strconv.ParseFloat(r.URL.Query().Get("principal"), 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principal must be a number")
		return
	}
	termDays, err := strconv.Atoi(r.URL.Query().Get("term_days"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "term_days must be an integer")
		return
	}
	sim, err := h.service.Simulate(principal, termDays)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sim)
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	principal, err := strconv.ParseFloat(r.URL.Query().Get("principal"), 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principal must be a number")
		return
	}
	recs, err := h.service.Recommendations(principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recs)
}

type createInvestmentRequest struct {
	AccountID int64    `json:"account_id" validate:"required,gt=0"`
	Principal float64  `json:"principal" validate:"required,gt=0"`
	TermDays  int      `json:"term_days" validate:"required,gt=0"`
	Modality  Modality `json:"modality" validate:"required"`
	AutoRenew bool     `json:"auto_renew"`
}

func (h *Handler) createInvestment(w http.ResponseWriter, r *http.Request) {
	var req createInvestmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	key, release, err := h.claimIdempotencyKey(r, "investment.create")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	inv, err := h.service.Create(r.Context(), CreateInvestmentInput{
		AccountID: req.AccountID,
		Principal: req.Principal,
		TermDays:  req.TermDays,
		Modality:  req.Modality,
		AutoRenew: req.AutoRenew,
	})
	if err != nil {
		release()
		h.logger.Error("create investment", slog.Any("error", err), slog.String("idempotency_key", key))
		httpx.RespondError(w, err)
		return
	}
	h.bumpCache(r)
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvestment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.investmentID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listInvestments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID, _ := strconv.ParseInt(q.Get("account_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	pagination := shared.NewPagination(page, perPage, 0)

	list, err := h.service.List(r.Context(), ListFilter{
		AccountID: accountID,
		Status:    InvestmentStatus(q.Get("status")),
		Limit:     pagination.PerPage,
		Offset:    (pagination.Page - 1) * pagination.PerPage,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"investments": list,
		"page":        pagination.Page,
		"per_page":    pagination.PerPage,
	})
}

func (h *Handler) listByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	list, err := h.service.ListByAccount(r.Context(), accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

type updateInvestmentRequest struct {
	Modality  *Modality `json:"modality"`
	AutoRenew *bool     `json:"auto_renew"`
}

func (h *Handler) updateInvestment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.investmentID(w, r)
	if !ok {
		return
	}
	var req updateInvestmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, err := h.service.Update(r.Context(), id, UpdateInvestmentInput{
		Modality:  req.Modality,
		AutoRenew: req.AutoRenew,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancelInvestment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.investmentID(w, r)
	if !ok {
		return
	}
	_, release, err := h.claimIdempotencyKey(r, "investment.cancel")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	h.bumpCache(r)
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.investmentID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.GetSchedule(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.investmentID(w, r)
	if !ok {
		return
	}
	movements, err := h.service.GetMovements(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunSweep(r.Context())
	if err != nil {
		h.logger.Error("maturity sweep", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.bumpCache(r)
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) settleOne(w http.ResponseWriter, r *http.Request) {
	id, ok := h.investmentID(w, r)
	if !ok {
		return
	}
	result, err := h.engine.SettleOne(r.Context(), id)
	if err != nil {
		h.logger.Error("settle investment", slog.Any("error", err), slog.Int64("investment_id", id))
		httpx.RespondError(w, err)
		return
	}
	h.bumpCache(r)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) upcomingMaturities(w http.ResponseWriter, r *http.Request) {
	lookahead, err := strconv.Atoi(r.URL.Query().Get("lookahead_days"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lookahead_days must be an integer")
		return
	}

	key, err := h.cache.BuildKey(r.Context(), "deposits", "upcoming", strconv.Itoa(lookahead))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var projections []MaturityProjection
	err = h.cache.FetchJSON(r.Context(), key, &projections, func(ctx context.Context) (any, error) {
		return h.engine.Upcoming(ctx, lookahead)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, projections)
}

// claimIdempotencyKey honours an optional Idempotency-Key header. The
// returned release func frees the key after a downstream failure so the
// client may retry.
func (h *Handler) claimIdempotencyKey(r *http.Request, operation string) (string, func(), error) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return "", func() {}, nil
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, operation); err != nil {
		return key, func() {}, err
	}
	release := func() {
		if err := h.idempotency.Release(r.Context(), key, operation); err != nil {
			h.logger.Warn("release idempotency key", slog.Any("error", err))
		}
	}
	return key, release, nil
}

func (h *Handler) bumpCache(r *http.Request) {
	if err := h.cache.Bump(r.Context()); err != nil {
		h.logger.Warn("bump deposits cache", slog.Any("error", err))
	}
}

func (h *Handler) investmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid investment id")
		return 0, false
	}
	return id, true
}
