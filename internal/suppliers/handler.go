package suppliers

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

// Handler wires HTTP endpoints for the suppliers module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs suppliers handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers supplier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.handleCreateSupplier)
	r.Get("/suppliers", h.handleListSuppliers)
	r.Get("/suppliers/{id}", h.handleGetSupplier)
	r.Put("/suppliers/{id}", h.handleUpdateSupplier)
	r.Get("/suppliers/{id}/balance", h.handleGetBalance)
	r.Get("/suppliers/{id}/transactions", h.handleListTransactions)
	r.Post("/suppliers/{id}/transactions", h.handleRecordTransaction)
	r.Post("/supplier-transactions/{id}/reverse", h.handleReverseTransaction)
}

type supplierRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
	Active  *bool  `json:"active"`
}

type transactionRequest struct {
	Type        string          `json:"type" validate:"required,oneof=DEBIT CREDIT"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"max=500"`
	Reference   string          `json:"reference" validate:"max=100"`
}

type supplierResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Active  bool   `json:"active"`
}

type balanceResponse struct {
	SupplierID  int64           `json:"supplier_id"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	SupplierID  int64           `json:"supplier_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	ReversalOf  int64           `json:"reversal_of,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toSupplierResponse(s Supplier) supplierResponse {
	return supplierResponse{ID: s.ID, Name: s.Name, Phone: s.Phone, Email: s.Email, Address: s.Address, Active: s.Active}
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		SupplierID:  t.SupplierID,
		Type:        string(t.Type),
		Amount:      t.Amount,
		Description: t.Description,
		Reference:   t.Reference,
		ReversalOf:  t.ReversalOf,
		CreatedAt:   t.CreatedAt,
	}
}

func (h *Handler) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), CreateSupplierInput{
		ShopID:  tenant.ShopID,
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
		ActorID: tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSupplierResponse(supplier))
}

func (h *Handler) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.UpdateSupplier(r.Context(), UpdateSupplierInput{
		ShopID:     tenant.ShopID,
		SupplierID: id,
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      req.Email,
		Address:    req.Address,
		Active:     req.Active,
		ActorID:    tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "update supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSupplierResponse(supplier))
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSupplierResponse(supplier))
}

func (h *Handler) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	items, err := h.service.ListSuppliers(r.Context(), tenant.ShopID)
	if err != nil {
		h.respondServiceError(w, "list suppliers", err)
		return
	}
	out := make([]supplierResponse, 0, len(items))
	for _, s := range items {
		out = append(out, toSupplierResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": out})
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get supplier balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		SupplierID:  id,
		TotalDebit:  balance.TotalDebit,
		TotalCredit: balance.TotalCredit,
		Outstanding: balance.Outstanding(),
	})
}

func (h *Handler) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	var req transactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.RecordTransaction(r.Context(), RecordInput{
		ShopID:      tenant.ShopID,
		SupplierID:  id,
		Type:        EntryType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   req.Reference,
		ActorID:     tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "record supplier transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(entry))
}

func (h *Handler) handleReverseTransaction(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	entry, err := h.service.ReverseTransaction(r.Context(), tenant.ShopID, id, tenant.UserID)
	if err != nil {
		h.respondServiceError(w, "reverse supplier transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(entry))
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	filter := ListFilter{ShopID: tenant.ShopID, SupplierID: id}
	q := r.URL.Query()
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if n, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = n
		}
	}
	entries, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, "list supplier transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toTransactionResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch err {
	case ErrInvalidAmount, ErrInvalidEntryType, ErrAlreadyReversed, ErrReversalOfReversal:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
