package billing

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

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs billing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bills", h.handleCreateBill)
	r.Get("/bills", h.handleListBills)
	r.Get("/bills/{id}", h.handleGetBill)
	r.Delete("/bills/{id}", h.handleDeleteBill)
}

type billLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Kind      string          `json:"kind" validate:"required,oneof=SALE RETURN"`
	Qty       decimal.Decimal `json:"qty" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

type createBillRequest struct {
	Ref           string            `json:"ref" validate:"omitempty,uuid4"`
	CustomerName  string            `json:"customer_name" validate:"max=200"`
	Tax           decimal.Decimal   `json:"tax"`
	Paid          decimal.Decimal   `json:"paid"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,oneof=CASH CARD TRANSFER CREDIT"`
	Note          string            `json:"note"`
	IssuedAt      time.Time         `json:"issued_at"`
	Lines         []billLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type billItemResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Kind        string          `json:"kind"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type billResponse struct {
	ID            int64              `json:"id"`
	Number        string             `json:"number"`
	CustomerName  string             `json:"customer_name,omitempty"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Tax           decimal.Decimal    `json:"tax"`
	Total         decimal.Decimal    `json:"total"`
	Paid          decimal.Decimal    `json:"paid"`
	Due           decimal.Decimal    `json:"due"`
	PaymentMethod string             `json:"payment_method"`
	Note          string             `json:"note,omitempty"`
	IssuedAt      time.Time          `json:"issued_at"`
	Items         []billItemResponse `json:"items,omitempty"`
}

func toBillResponse(bill Bill) billResponse {
	resp := billResponse{
		ID:            bill.ID,
		Number:        bill.Number,
		CustomerName:  bill.CustomerName,
		Subtotal:      bill.Subtotal,
		Tax:           bill.Tax,
		Total:         bill.Total,
		Paid:          bill.Paid,
		Due:           bill.Due,
		PaymentMethod: bill.PaymentMethod,
		Note:          bill.Note,
		IssuedAt:      bill.IssuedAt,
	}
	for _, item := range bill.Items {
		resp.Items = append(resp.Items, billItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Kind:        string(item.Kind),
			Qty:         item.Qty,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			LineTotal:   item.LineTotal,
		})
	}
	return resp
}

func (h *Handler) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		ShopID:        tenant.ShopID,
		Ref:           req.Ref,
		CustomerName:  req.CustomerName,
		Tax:           req.Tax,
		Paid:          req.Paid,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
		IssuedAt:      req.IssuedAt,
		ActorID:       tenant.UserID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			ProductID: line.ProductID,
			Kind:      LineKind(line.Kind),
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
		})
	}
	bill, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, "create bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillResponse(bill))
}

func (h *Handler) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	if err := h.service.Delete(r.Context(), tenant.ShopID, id, tenant.UserID); err != nil {
		h.respondServiceError(w, "delete bill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetBill(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	bill, err := h.service.Get(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) handleListBills(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{ShopID: tenant.ShopID}
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
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if n, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = n
		}
	}
	bills, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, "list bills", err)
		return
	}
	out := make([]billResponse, 0, len(bills))
	for _, bill := range bills {
		out = append(out, toBillResponse(bill))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": out})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch err {
	case ErrNoLines, ErrInvalidLineKind, ErrProductInactive:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
