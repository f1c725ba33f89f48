package catalog

import (
	"context"
	"maps"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memoryRepo struct {
	products    map[int64]Product
	materials   map[int64]Material
	recipeItems map[int64]RecipeItem
	movements   map[string]bool // "KIND/id" -> has movements
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:    map[int64]Product{},
		materials:   map[int64]Material{},
		recipeItems: map[int64]RecipeItem{},
		movements:   map[string]bool{},
		nextID:      1,
	}
}

func movementKey(kind ItemKind, id int64) string {
	return string(kind) + "/" + decimal.NewFromInt(id).String()
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	productsBackup := maps.Clone(m.products)
	materialsBackup := maps.Clone(m.materials)
	recipeBackup := maps.Clone(m.recipeItems)
	idBackup := m.nextID
	if err := fn(ctx, m); err != nil {
		m.products = productsBackup
		m.materials = materialsBackup
		m.recipeItems = recipeBackup
		m.nextID = idBackup
		return err
	}
	return nil
}

func (m *memoryRepo) GetProduct(ctx context.Context, shopID, productID int64) (Product, error) {
	p, ok := m.products[productID]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) ListProducts(ctx context.Context, shopID int64, activeOnly bool) ([]Product, error) {
	out := []Product{}
	for _, p := range m.products {
		if !activeOnly || p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetMaterial(ctx context.Context, shopID, materialID int64) (Material, error) {
	mat, ok := m.materials[materialID]
	if !ok {
		return Material{}, shared.ErrNotFound
	}
	return mat, nil
}

func (m *memoryRepo) ListMaterials(ctx context.Context, shopID int64, activeOnly bool) ([]Material, error) {
	out := []Material{}
	for _, mat := range m.materials {
		if !activeOnly || mat.Active {
			out = append(out, mat)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListRecipe(ctx context.Context, shopID, productID int64) ([]RecipeItem, error) {
	out := []RecipeItem{}
	for _, item := range m.recipeItems {
		if item.ProductID == productID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListBelowMinStock(ctx context.Context, shopID int64) ([]Product, []Material, error) {
	products := []Product{}
	for _, p := range m.products {
		if p.Active && p.MinStock != nil && p.CurrentStock.LessThan(*p.MinStock) {
			products = append(products, p)
		}
	}
	materials := []Material{}
	for _, mat := range m.materials {
		if mat.Active && mat.MinStock != nil && mat.CurrentStock.LessThan(*mat.MinStock) {
			materials = append(materials, mat)
		}
	}
	return products, materials, nil
}

func (m *memoryRepo) InsertProduct(ctx context.Context, input ProductInput) (Product, error) {
	for _, p := range m.products {
		if p.SKU == input.SKU {
			return Product{}, ErrDuplicateSKU
		}
	}
	p := Product{
		ID:        m.nextID,
		ShopID:    input.ShopID,
		SKU:       input.SKU,
		Name:      input.Name,
		Unit:      input.Unit,
		SalePrice: input.SalePrice,
		MinStock:  input.MinStock,
		MaxStock:  input.MaxStock,
		Active:    true,
		CreatedAt: time.Now(),
	}
	m.nextID++
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) UpdateProduct(ctx context.Context, productID int64, input ProductInput) (Product, error) {
	p, ok := m.products[productID]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	p.SKU = input.SKU
	p.Name = input.Name
	p.Unit = input.Unit
	p.SalePrice = input.SalePrice
	p.MinStock = input.MinStock
	p.MaxStock = input.MaxStock
	m.products[productID] = p
	return p, nil
}

func (m *memoryRepo) GetProductForUpdate(ctx context.Context, shopID, productID int64) (Product, error) {
	return m.GetProduct(ctx, shopID, productID)
}

func (m *memoryRepo) DeactivateProduct(ctx context.Context, shopID, productID int64) error {
	p := m.products[productID]
	p.Active = false
	m.products[productID] = p
	return nil
}

func (m *memoryRepo) DeleteProduct(ctx context.Context, shopID, productID int64) error {
	delete(m.products, productID)
	return nil
}

func (m *memoryRepo) InsertMaterial(ctx context.Context, input MaterialInput) (Material, error) {
	mat := Material{
		ID:        m.nextID,
		ShopID:    input.ShopID,
		SKU:       input.SKU,
		Name:      input.Name,
		Unit:      input.Unit,
		MinStock:  input.MinStock,
		MaxStock:  input.MaxStock,
		Active:    true,
		CreatedAt: time.Now(),
	}
	m.nextID++
	m.materials[mat.ID] = mat
	return mat, nil
}

func (m *memoryRepo) UpdateMaterial(ctx context.Context, materialID int64, input MaterialInput) (Material, error) {
	mat, ok := m.materials[materialID]
	if !ok {
		return Material{}, shared.ErrNotFound
	}
	mat.SKU = input.SKU
	mat.Name = input.Name
	mat.Unit = input.Unit
	mat.MinStock = input.MinStock
	mat.MaxStock = input.MaxStock
	m.materials[materialID] = mat
	return mat, nil
}

func (m *memoryRepo) GetMaterialForUpdate(ctx context.Context, shopID, materialID int64) (Material, error) {
	return m.GetMaterial(ctx, shopID, materialID)
}

func (m *memoryRepo) DeactivateMaterial(ctx context.Context, shopID, materialID int64) error {
	mat := m.materials[materialID]
	mat.Active = false
	m.materials[materialID] = mat
	return nil
}

func (m *memoryRepo) DeleteMaterial(ctx context.Context, shopID, materialID int64) error {
	delete(m.materials, materialID)
	return nil
}

func (m *memoryRepo) HasMovements(ctx context.Context, shopID int64, kind ItemKind, ownerID int64) (bool, error) {
	return m.movements[movementKey(kind, ownerID)], nil
}

func (m *memoryRepo) MaterialInRecipes(ctx context.Context, shopID, materialID int64) (bool, error) {
	for _, item := range m.recipeItems {
		if item.MaterialID == materialID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) InsertRecipeItem(ctx context.Context, input RecipeItemInput) (RecipeItem, error) {
	for _, item := range m.recipeItems {
		if item.ProductID == input.ProductID && item.MaterialID == input.MaterialID {
			return RecipeItem{}, ErrDuplicateRecipeItem
		}
	}
	item := RecipeItem{
		ID:               m.nextID,
		ShopID:           input.ShopID,
		ProductID:        input.ProductID,
		MaterialID:       input.MaterialID,
		QuantityRequired: input.QuantityRequired,
	}
	m.nextID++
	m.recipeItems[item.ID] = item
	return item, nil
}

func (m *memoryRepo) DeleteRecipeItem(ctx context.Context, shopID, recipeItemID int64) error {
	if _, ok := m.recipeItems[recipeItemID]; !ok {
		return shared.ErrNotFound
	}
	delete(m.recipeItems, recipeItemID)
	return nil
}

func (m *memoryRepo) DeleteRecipeByProduct(ctx context.Context, shopID, productID int64) error {
	for id, item := range m.recipeItems {
		if item.ProductID == productID {
			delete(m.recipeItems, id)
		}
	}
	return nil
}

func TestDeleteProductWithoutMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "KS-01", Name: "Kopi Susu", SalePrice: dec("18000")})
	require.NoError(t, err)

	outcome, err := svc.DeleteProduct(ctx, 7, product.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDeleted, outcome)

	_, err = svc.GetProduct(ctx, 7, product.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteProductWithMovementsDeactivates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "KS-02", Name: "Es Teh", SalePrice: dec("5000")})
	require.NoError(t, err)
	repo.movements[movementKey(KindProduct, product.ID)] = true

	outcome, err := svc.DeleteProduct(ctx, 7, product.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDeactivated, outcome)

	stored, err := svc.GetProduct(ctx, 7, product.ID)
	require.NoError(t, err)
	require.False(t, stored.Active)
}

func TestDeleteMaterialInRecipeDeactivates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "RB-01", Name: "Roti Bakar"})
	require.NoError(t, err)
	material, err := svc.CreateMaterial(ctx, MaterialInput{ShopID: 7, SKU: "TP-01", Name: "Tepung"})
	require.NoError(t, err)

	_, err = svc.AddRecipeItem(ctx, RecipeItemInput{ShopID: 7, ProductID: product.ID, MaterialID: material.ID, QuantityRequired: dec("0.2")})
	require.NoError(t, err)

	outcome, err := svc.DeleteMaterial(ctx, 7, material.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeDeactivated, outcome)
}

func TestAddRecipeItemValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "P-1", Name: "Produk"})
	require.NoError(t, err)
	material, err := svc.CreateMaterial(ctx, MaterialInput{ShopID: 7, SKU: "M-1", Name: "Bahan"})
	require.NoError(t, err)

	_, err = svc.AddRecipeItem(ctx, RecipeItemInput{ShopID: 7, ProductID: product.ID, MaterialID: material.ID, QuantityRequired: dec("0")})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AddRecipeItem(ctx, RecipeItemInput{ShopID: 7, ProductID: 999, MaterialID: material.ID, QuantityRequired: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.AddRecipeItem(ctx, RecipeItemInput{ShopID: 7, ProductID: product.ID, MaterialID: material.ID, QuantityRequired: dec("1")})
	require.NoError(t, err)
	_, err = svc.AddRecipeItem(ctx, RecipeItemInput{ShopID: 7, ProductID: product.ID, MaterialID: material.ID, QuantityRequired: dec("2")})
	require.ErrorIs(t, err, ErrDuplicateRecipeItem)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "DUP", Name: "Satu"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "DUP", Name: "Dua"})
	require.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestListBelowMinStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	low := dec("10")
	product, err := svc.CreateProduct(ctx, ProductInput{ShopID: 7, SKU: "LOW", Name: "Hampir Habis", MinStock: &low})
	require.NoError(t, err)
	stored := repo.products[product.ID]
	stored.CurrentStock = dec("3")
	repo.products[product.ID] = stored

	products, materials, err := svc.ListBelowMinStock(ctx, 7)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Empty(t, materials)
	require.Equal(t, product.ID, products[0].ID)
}
