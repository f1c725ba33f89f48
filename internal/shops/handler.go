package shops

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/httpx"
)

// Handler wires the admin endpoints for tenant lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs shops handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// AdminMiddleware guards the lifecycle endpoints with a static admin token.
func AdminMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Admin-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MountRoutes registers admin shop routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/shops", h.handleCreate)
	r.Get("/shops", h.handleList)
	r.Get("/shops/{id}", h.handleGet)
	r.Post("/shops/{id}/suspend", h.handleSuspend)
	r.Post("/shops/{id}/activate", h.handleActivate)
	r.Post("/shops/{id}/renew", h.handleRenew)
	r.Post("/shops/{id}/rotate-key", h.handleRotateKey)
}

type createShopRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type renewRequest struct {
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

type shopResponse struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	Currency              string     `json:"currency"`
	Status                string     `json:"status"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
}

func toShopResponse(s Shop) shopResponse {
	return shopResponse{
		ID:                    s.ID,
		Name:                  s.Name,
		Currency:              s.Currency,
		Status:                string(s.Status),
		SubscriptionExpiresAt: s.SubscriptionExpiresAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createShopRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	creds, err := h.service.Create(r.Context(), CreateInput{Name: req.Name, Currency: req.Currency})
	if err != nil {
		h.respondServiceError(w, "create shop", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"shop":    toShopResponse(creds.Shop),
		"api_key": creds.APIKey,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shop id")
		return
	}
	shop, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get shop", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShopResponse(shop))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	shopsList, err := h.service.List(r.Context())
	if err != nil {
		h.respondServiceError(w, "list shops", err)
		return
	}
	out := make([]shopResponse, 0, len(shopsList))
	for _, shop := range shopsList {
		out = append(out, toShopResponse(shop))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shops": out})
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "suspend shop", h.service.Suspend)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "activate shop", h.service.Activate)
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shop id")
		return
	}
	var req renewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RenewSubscription(r.Context(), id, req.ExpiresAt); err != nil {
		h.respondServiceError(w, "renew subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shop id")
		return
	}
	apiKey, err := h.service.RotateAPIKey(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "rotate api key", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"api_key": apiKey})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shop id")
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.respondServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	if err == ErrInvalidCurrency {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
