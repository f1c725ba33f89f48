package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/httpx"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products", h.handleListProducts)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)
	r.Delete("/products/{id}", h.handleDeleteProduct)
	r.Get("/products/{id}/recipe", h.handleListRecipe)
	r.Post("/products/{id}/recipe", h.handleAddRecipeItem)
	r.Delete("/recipe-items/{id}", h.handleRemoveRecipeItem)
	r.Post("/materials", h.handleCreateMaterial)
	r.Get("/materials", h.handleListMaterials)
	r.Get("/materials/{id}", h.handleGetMaterial)
	r.Put("/materials/{id}", h.handleUpdateMaterial)
	r.Delete("/materials/{id}", h.handleDeleteMaterial)
	r.Get("/stock-alerts", h.handleStockAlerts)
}

type productRequest struct {
	SKU       string           `json:"sku" validate:"required,max=100"`
	Name      string           `json:"name" validate:"required,max=200"`
	Unit      string           `json:"unit" validate:"max=20"`
	SalePrice decimal.Decimal  `json:"sale_price"`
	MinStock  *decimal.Decimal `json:"min_stock"`
	MaxStock  *decimal.Decimal `json:"max_stock"`
}

type materialRequest struct {
	SKU      string           `json:"sku" validate:"required,max=100"`
	Name     string           `json:"name" validate:"required,max=200"`
	Unit     string           `json:"unit" validate:"max=20"`
	MinStock *decimal.Decimal `json:"min_stock"`
	MaxStock *decimal.Decimal `json:"max_stock"`
}

type recipeItemRequest struct {
	MaterialID       int64           `json:"material_id" validate:"required,gt=0"`
	QuantityRequired decimal.Decimal `json:"quantity_required" validate:"required"`
}

type productResponse struct {
	ID           int64            `json:"id"`
	SKU          string           `json:"sku"`
	Name         string           `json:"name"`
	Unit         string           `json:"unit"`
	SalePrice    decimal.Decimal  `json:"sale_price"`
	CurrentStock decimal.Decimal  `json:"current_stock"`
	AvgCost      decimal.Decimal  `json:"avg_cost"`
	MinStock     *decimal.Decimal `json:"min_stock,omitempty"`
	MaxStock     *decimal.Decimal `json:"max_stock,omitempty"`
	Active       bool             `json:"active"`
}

type materialResponse struct {
	ID           int64            `json:"id"`
	SKU          string           `json:"sku"`
	Name         string           `json:"name"`
	Unit         string           `json:"unit"`
	CurrentStock decimal.Decimal  `json:"current_stock"`
	AvgCost      decimal.Decimal  `json:"avg_cost"`
	MinStock     *decimal.Decimal `json:"min_stock,omitempty"`
	MaxStock     *decimal.Decimal `json:"max_stock,omitempty"`
	Active       bool             `json:"active"`
}

type recipeItemResponse struct {
	ID               int64           `json:"id"`
	MaterialID       int64           `json:"material_id"`
	MaterialName     string          `json:"material_name,omitempty"`
	MaterialUnit     string          `json:"material_unit,omitempty"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	Position         int             `json:"position"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		Unit:         p.Unit,
		SalePrice:    p.SalePrice,
		CurrentStock: p.CurrentStock,
		AvgCost:      p.AvgCost,
		MinStock:     p.MinStock,
		MaxStock:     p.MaxStock,
		Active:       p.Active,
	}
}

func toMaterialResponse(m Material) materialResponse {
	return materialResponse{
		ID:           m.ID,
		SKU:          m.SKU,
		Name:         m.Name,
		Unit:         m.Unit,
		CurrentStock: m.CurrentStock,
		AvgCost:      m.AvgCost,
		MinStock:     m.MinStock,
		MaxStock:     m.MaxStock,
		Active:       m.Active,
	}
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ProductInput{
		ShopID:    tenant.ShopID,
		SKU:       req.SKU,
		Name:      req.Name,
		Unit:      req.Unit,
		SalePrice: req.SalePrice,
		MinStock:  req.MinStock,
		MaxStock:  req.MaxStock,
		ActorID:   tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, ProductInput{
		ShopID:    tenant.ShopID,
		SKU:       req.SKU,
		Name:      req.Name,
		Unit:      req.Unit,
		SalePrice: req.SalePrice,
		MinStock:  req.MinStock,
		MaxStock:  req.MaxStock,
		ActorID:   tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	outcome, err := h.service.DeleteProduct(r.Context(), tenant.ShopID, id, tenant.UserID)
	if err != nil {
		h.respondServiceError(w, "delete product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"outcome": outcome})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	activeOnly := r.URL.Query().Get("active") == "true"
	products, err := h.service.ListProducts(r.Context(), tenant.ShopID, activeOnly)
	if err != nil {
		h.respondServiceError(w, "list products", err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": out})
}

func (h *Handler) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req materialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	material, err := h.service.CreateMaterial(r.Context(), MaterialInput{
		ShopID:   tenant.ShopID,
		SKU:      req.SKU,
		Name:     req.Name,
		Unit:     req.Unit,
		MinStock: req.MinStock,
		MaxStock: req.MaxStock,
		ActorID:  tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "create material", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMaterialResponse(material))
}

func (h *Handler) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	var req materialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	material, err := h.service.UpdateMaterial(r.Context(), id, MaterialInput{
		ShopID:   tenant.ShopID,
		SKU:      req.SKU,
		Name:     req.Name,
		Unit:     req.Unit,
		MinStock: req.MinStock,
		MaxStock: req.MaxStock,
		ActorID:  tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "update material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialResponse(material))
}

func (h *Handler) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	outcome, err := h.service.DeleteMaterial(r.Context(), tenant.ShopID, id, tenant.UserID)
	if err != nil {
		h.respondServiceError(w, "delete material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"outcome": outcome})
}

func (h *Handler) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	material, err := h.service.GetMaterial(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialResponse(material))
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	activeOnly := r.URL.Query().Get("active") == "true"
	materials, err := h.service.ListMaterials(r.Context(), tenant.ShopID, activeOnly)
	if err != nil {
		h.respondServiceError(w, "list materials", err)
		return
	}
	out := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		out = append(out, toMaterialResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": out})
}

func (h *Handler) handleAddRecipeItem(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	productID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	var req recipeItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddRecipeItem(r.Context(), RecipeItemInput{
		ShopID:           tenant.ShopID,
		ProductID:        productID,
		MaterialID:       req.MaterialID,
		QuantityRequired: req.QuantityRequired,
		ActorID:          tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "add recipe item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, recipeItemResponse{
		ID:               item.ID,
		MaterialID:       item.MaterialID,
		QuantityRequired: item.QuantityRequired,
		Position:         item.Position,
	})
}

func (h *Handler) handleRemoveRecipeItem(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid recipe item id")
		return
	}
	if err := h.service.RemoveRecipeItem(r.Context(), tenant.ShopID, id, tenant.UserID); err != nil {
		h.respondServiceError(w, "remove recipe item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRecipe(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	productID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	items, err := h.service.ListRecipe(r.Context(), tenant.ShopID, productID)
	if err != nil {
		h.respondServiceError(w, "list recipe", err)
		return
	}
	out := make([]recipeItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, recipeItemResponse{
			ID:               item.ID,
			MaterialID:       item.MaterialID,
			MaterialName:     item.MaterialName,
			MaterialUnit:     item.MaterialUnit,
			QuantityRequired: item.QuantityRequired,
			Position:         item.Position,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recipe": out})
}

func (h *Handler) handleStockAlerts(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	products, materials, err := h.service.ListBelowMinStock(r.Context(), tenant.ShopID)
	if err != nil {
		h.respondServiceError(w, "list stock alerts", err)
		return
	}
	productOut := make([]productResponse, 0, len(products))
	for _, p := range products {
		productOut = append(productOut, toProductResponse(p))
	}
	materialOut := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		materialOut = append(materialOut, toMaterialResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": productOut, "materials": materialOut})
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch err {
	case ErrDuplicateSKU, ErrDuplicateRecipeItem:
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		return
	case ErrInvalidQuantity:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
