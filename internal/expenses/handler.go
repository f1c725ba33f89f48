package expenses

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/httpx"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// Handler wires HTTP endpoints for the expenses module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs expenses handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/expenses", h.handleCreate)
	r.Get("/expenses", h.handleList)
	r.Get("/expenses/summary", h.handleSummary)
	r.Get("/expenses/{id}", h.handleGet)
	r.Delete("/expenses/{id}", h.handleDelete)
}

type createExpenseRequest struct {
	Category string          `json:"category" validate:"required,max=100"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Note     string          `json:"note" validate:"max=500"`
	SpentAt  time.Time       `json:"spent_at"`
}

type expenseResponse struct {
	ID       int64           `json:"id"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note,omitempty"`
	SpentAt  time.Time       `json:"spent_at"`
}

func toExpenseResponse(e Expense) expenseResponse {
	return expenseResponse{ID: e.ID, Category: e.Category, Amount: e.Amount, Note: e.Note, SpentAt: e.SpentAt}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req createExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	expense, err := h.service.Create(r.Context(), CreateInput{
		ShopID:   tenant.ShopID,
		Category: req.Category,
		Amount:   req.Amount,
		Note:     req.Note,
		SpentAt:  req.SpentAt,
		ActorID:  tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid expense id")
		return
	}
	expense, err := h.service.Get(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{ShopID: tenant.ShopID, Category: q.Get("category")}
	if fromStr := q.Get("from"); fromStr != "" {
		if t, err := time.Parse("2006-01-02", fromStr); err == nil {
			filter.From = t
		}
	}
	if toStr := q.Get("to"); toStr != "" {
		if t, err := time.Parse("2006-01-02", toStr); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}
	expenses, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, "list expenses", err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": out})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	q := r.URL.Query()
	var from, to time.Time
	if fromStr := q.Get("from"); fromStr != "" {
		if t, err := time.Parse("2006-01-02", fromStr); err == nil {
			from = t
		}
	}
	if toStr := q.Get("to"); toStr != "" {
		if t, err := time.Parse("2006-01-02", toStr); err == nil {
			to = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	totals, err := h.service.TotalsByCategory(r.Context(), tenant.ShopID, from, to)
	if err != nil {
		h.respondServiceError(w, "expense summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"totals": totals})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid expense id")
		return
	}
	if err := h.service.Delete(r.Context(), tenant.ShopID, id, tenant.UserID); err != nil {
		h.respondServiceError(w, "delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	if err == ErrInvalidAmount {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
