package inventory

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

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleRecordMovement)
	r.Get("/movements", h.handleListMovements)
	r.Get("/movements/{id}", h.handleGetMovement)
	r.Patch("/movements/{id}", h.handleUpdateMovement)
	r.Delete("/movements/{id}", h.handleDeleteMovement)
}

type recordMovementRequest struct {
	Ref           string          `json:"ref" validate:"omitempty,uuid4"`
	OwnerKind     string          `json:"owner_kind" validate:"required,oneof=PRODUCT MATERIAL"`
	OwnerID       int64           `json:"owner_id" validate:"required,gt=0"`
	Type          string          `json:"type" validate:"required,oneof=IN OUT ADJUST"`
	Qty           decimal.Decimal `json:"qty" validate:"required"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ReferenceType string          `json:"reference_type" validate:"omitempty,oneof=purchase production sale return manual"`
	ReferenceID   string          `json:"reference_id"`
	Note          string          `json:"note"`
	MovedAt       time.Time       `json:"moved_at"`
}

type updateMovementRequest struct {
	Qty      decimal.Decimal `json:"qty" validate:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Note     string          `json:"note"`
	MovedAt  time.Time       `json:"moved_at"`
}

type movementResponse struct {
	ID            int64           `json:"id"`
	Ref           string          `json:"ref"`
	OwnerKind     string          `json:"owner_kind"`
	OwnerID       int64           `json:"owner_id"`
	Type          string          `json:"type"`
	Qty           decimal.Decimal `json:"qty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ParentID      int64           `json:"parent_id,omitempty"`
	Note          string          `json:"note,omitempty"`
	MovedAt       time.Time       `json:"moved_at"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:            m.ID,
		Ref:           m.Ref,
		OwnerKind:     string(m.OwnerKind),
		OwnerID:       m.OwnerID,
		Type:          string(m.Type),
		Qty:           m.Qty,
		UnitCost:      m.UnitCost,
		TotalCost:     m.TotalCost,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		ParentID:      m.ParentID,
		Note:          m.Note,
		MovedAt:       m.MovedAt,
	}
}

func (h *Handler) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req recordMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), RecordInput{
		ShopID:        tenant.ShopID,
		Ref:           req.Ref,
		OwnerKind:     OwnerKind(req.OwnerKind),
		OwnerID:       req.OwnerID,
		Type:          MovementType(req.Type),
		Qty:           req.Qty,
		UnitCost:      req.UnitCost,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Note:          req.Note,
		MovedAt:       req.MovedAt,
		ActorID:       tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "record movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleUpdateMovement(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid movement id")
		return
	}
	var req updateMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.UpdateMovement(r.Context(), UpdateInput{
		ShopID:     tenant.ShopID,
		MovementID: id,
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		Note:       req.Note,
		MovedAt:    req.MovedAt,
		ActorID:    tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "update movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid movement id")
		return
	}
	if err := h.service.DeleteMovement(r.Context(), tenant.ShopID, id, tenant.UserID); err != nil {
		h.respondServiceError(w, "delete movement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetMovement(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid movement id")
		return
	}
	movement, err := h.service.GetMovement(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	q := r.URL.Query()
	filter := MovementFilter{ShopID: tenant.ShopID, OwnerKind: OwnerKind(q.Get("owner_kind"))}
	if ownerStr := q.Get("owner_id"); ownerStr != "" {
		if id, err := strconv.ParseInt(ownerStr, 10, 64); err == nil {
			filter.OwnerID = id
		}
	}
	if fromStr := q.Get("from"); fromStr != "" {
		if t, err := time.Parse("2006-01-02", fromStr); err == nil {
			filter.From = t
		}
	}
	if toStr := q.Get("to"); toStr != "" {
		if t, err := time.Parse("2006-01-02", toStr); err == nil {
			// include the whole end day
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch err {
	case ErrInvalidQuantity, ErrInvalidUnitCost, ErrInvalidOwnerKind, ErrOwnerInactive:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
