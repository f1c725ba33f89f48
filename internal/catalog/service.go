package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, shopID, productID int64) (Product, error)
	ListProducts(ctx context.Context, shopID int64, activeOnly bool) ([]Product, error)
	GetMaterial(ctx context.Context, shopID, materialID int64) (Material, error)
	ListMaterials(ctx context.Context, shopID int64, activeOnly bool) ([]Material, error)
	ListRecipe(ctx context.Context, shopID, productID int64) ([]RecipeItem, error)
	ListBelowMinStock(ctx context.Context, shopID int64) ([]Product, []Material, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the product and material catalog plus product recipes.
// Items with recorded stock movements are deactivated instead of deleted so
// the movement history stays referentially intact.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateProduct registers a product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := validateItemInput(input.ShopID, &input.SKU, &input.Name); err != nil {
		return Product{}, err
	}
	if input.SalePrice.IsNegative() {
		return Product{}, shared.NewValidationError("sale_price", "must be >= 0")
	}
	var created Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertProduct(ctx, input)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "catalog:product:create", created.ID)
	return created, nil
}

// UpdateProduct edits product master data.
func (s *Service) UpdateProduct(ctx context.Context, productID int64, input ProductInput) (Product, error) {
	if err := validateItemInput(input.ShopID, &input.SKU, &input.Name); err != nil {
		return Product{}, err
	}
	var updated Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateProduct(ctx, productID, input)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "catalog:product:update", productID)
	return updated, nil
}

// DeleteProduct removes a product that has no stock movements; otherwise it
// deactivates the product and keeps history intact.
func (s *Service) DeleteProduct(ctx context.Context, shopID, productID, actorID int64) (DeleteOutcome, error) {
	var outcome DeleteOutcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductForUpdate(ctx, shopID, productID); err != nil {
			return err
		}
		hasMovements, err := tx.HasMovements(ctx, shopID, KindProduct, productID)
		if err != nil {
			return err
		}
		if hasMovements {
			outcome = OutcomeDeactivated
			return tx.DeactivateProduct(ctx, shopID, productID)
		}
		outcome = OutcomeDeleted
		if err := tx.DeleteRecipeByProduct(ctx, shopID, productID); err != nil {
			return err
		}
		return tx.DeleteProduct(ctx, shopID, productID)
	})
	if err != nil {
		return "", err
	}
	s.auditRecord(ctx, shopID, actorID, "catalog:product:"+string(outcome), productID)
	return outcome, nil
}

// CreateMaterial registers a raw material.
func (s *Service) CreateMaterial(ctx context.Context, input MaterialInput) (Material, error) {
	if err := validateItemInput(input.ShopID, &input.SKU, &input.Name); err != nil {
		return Material{}, err
	}
	var created Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertMaterial(ctx, input)
		return err
	})
	if err != nil {
		return Material{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "catalog:material:create", created.ID)
	return created, nil
}

// UpdateMaterial edits material master data.
func (s *Service) UpdateMaterial(ctx context.Context, materialID int64, input MaterialInput) (Material, error) {
	if err := validateItemInput(input.ShopID, &input.SKU, &input.Name); err != nil {
		return Material{}, err
	}
	var updated Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateMaterial(ctx, materialID, input)
		return err
	})
	if err != nil {
		return Material{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "catalog:material:update", materialID)
	return updated, nil
}

// DeleteMaterial removes a material with no movements and no recipe usage;
// otherwise it deactivates it.
func (s *Service) DeleteMaterial(ctx context.Context, shopID, materialID, actorID int64) (DeleteOutcome, error) {
	var outcome DeleteOutcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetMaterialForUpdate(ctx, shopID, materialID); err != nil {
			return err
		}
		hasMovements, err := tx.HasMovements(ctx, shopID, KindMaterial, materialID)
		if err != nil {
			return err
		}
		inRecipes, err := tx.MaterialInRecipes(ctx, shopID, materialID)
		if err != nil {
			return err
		}
		if hasMovements || inRecipes {
			outcome = OutcomeDeactivated
			return tx.DeactivateMaterial(ctx, shopID, materialID)
		}
		outcome = OutcomeDeleted
		return tx.DeleteMaterial(ctx, shopID, materialID)
	})
	if err != nil {
		return "", err
	}
	s.auditRecord(ctx, shopID, actorID, "catalog:material:"+string(outcome), materialID)
	return outcome, nil
}

// AddRecipeItem adds one material requirement to a product's recipe.
func (s *Service) AddRecipeItem(ctx context.Context, input RecipeItemInput) (RecipeItem, error) {
	if !input.QuantityRequired.IsPositive() {
		return RecipeItem{}, ErrInvalidQuantity
	}
	var created RecipeItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductForUpdate(ctx, input.ShopID, input.ProductID); err != nil {
			return err
		}
		if _, err := tx.GetMaterialForUpdate(ctx, input.ShopID, input.MaterialID); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertRecipeItem(ctx, input)
		return err
	})
	if err != nil {
		return RecipeItem{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "catalog:recipe:add", created.ID)
	return created, nil
}

// RemoveRecipeItem removes one requirement from a product's recipe.
func (s *Service) RemoveRecipeItem(ctx context.Context, shopID, recipeItemID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteRecipeItem(ctx, shopID, recipeItemID)
	})
	if err != nil {
		return err
	}
	s.auditRecord(ctx, shopID, actorID, "catalog:recipe:remove", recipeItemID)
	return nil
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, shopID, productID int64) (Product, error) {
	return s.repo.GetProduct(ctx, shopID, productID)
}

// ListProducts lists products.
func (s *Service) ListProducts(ctx context.Context, shopID int64, activeOnly bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, shopID, activeOnly)
}

// GetMaterial fetches one material.
func (s *Service) GetMaterial(ctx context.Context, shopID, materialID int64) (Material, error) {
	return s.repo.GetMaterial(ctx, shopID, materialID)
}

// ListMaterials lists materials.
func (s *Service) ListMaterials(ctx context.Context, shopID int64, activeOnly bool) ([]Material, error) {
	return s.repo.ListMaterials(ctx, shopID, activeOnly)
}

// ListRecipe lists a product's recipe in position order.
func (s *Service) ListRecipe(ctx context.Context, shopID, productID int64) ([]RecipeItem, error) {
	return s.repo.ListRecipe(ctx, shopID, productID)
}

// ListBelowMinStock returns active items whose stock fell under min_stock.
func (s *Service) ListBelowMinStock(ctx context.Context, shopID int64) ([]Product, []Material, error) {
	return s.repo.ListBelowMinStock(ctx, shopID)
}

func validateItemInput(shopID int64, sku, name *string) error {
	*sku = strings.TrimSpace(*sku)
	*name = strings.TrimSpace(*name)
	if shopID == 0 {
		return shared.NewValidationError("shop_id", "is required")
	}
	if *sku == "" {
		return shared.NewValidationError("sku", "is required")
	}
	if *name == "" {
		return shared.NewValidationError("name", "is required")
	}
	return nil
}

func (s *Service) auditRecord(ctx context.Context, shopID, actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ShopID:   shopID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "catalog",
		EntityID: strconv.FormatInt(entityID, 10),
	})
}
