package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/db"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, productID int64, input ProductInput) (Product, error)
	GetProductForUpdate(ctx context.Context, shopID, productID int64) (Product, error)
	DeactivateProduct(ctx context.Context, shopID, productID int64) error
	DeleteProduct(ctx context.Context, shopID, productID int64) error
	InsertMaterial(ctx context.Context, input MaterialInput) (Material, error)
	UpdateMaterial(ctx context.Context, materialID int64, input MaterialInput) (Material, error)
	GetMaterialForUpdate(ctx context.Context, shopID, materialID int64) (Material, error)
	DeactivateMaterial(ctx context.Context, shopID, materialID int64) error
	DeleteMaterial(ctx context.Context, shopID, materialID int64) error
	HasMovements(ctx context.Context, shopID int64, kind ItemKind, ownerID int64) (bool, error)
	MaterialInRecipes(ctx context.Context, shopID, materialID int64) (bool, error)
	InsertRecipeItem(ctx context.Context, input RecipeItemInput) (RecipeItem, error)
	DeleteRecipeItem(ctx context.Context, shopID, recipeItemID int64) error
	DeleteRecipeByProduct(ctx context.Context, shopID, productID int64) error
}

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const productColumns = `id, shop_id, sku, name, unit, sale_price, current_stock, avg_cost, min_stock, max_stock, is_active, created_at, updated_at`

const materialColumns = `id, shop_id, sku, name, unit, current_stock, avg_cost, min_stock, max_stock, is_active, created_at, updated_at`

// GetProduct fetches one product.
func (r *Repository) GetProduct(ctx context.Context, shopID, productID int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE shop_id=$1 AND id=$2`, shopID, productID)
	return scanProductErr(row, productID)
}

// ListProducts lists products by name.
func (r *Repository) ListProducts(ctx context.Context, shopID int64, activeOnly bool) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE shop_id=$1 AND (NOT $2 OR is_active)
ORDER BY name ASC`, shopID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, product)
	}
	return out, rows.Err()
}

// GetMaterial fetches one material.
func (r *Repository) GetMaterial(ctx context.Context, shopID, materialID int64) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE shop_id=$1 AND id=$2`, shopID, materialID)
	return scanMaterialErr(row, materialID)
}

// ListMaterials lists materials by name.
func (r *Repository) ListMaterials(ctx context.Context, shopID int64, activeOnly bool) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials
WHERE shop_id=$1 AND (NOT $2 OR is_active)
ORDER BY name ASC`, shopID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Material{}
	for rows.Next() {
		material, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, material)
	}
	return out, rows.Err()
}

// ListRecipe lists a product's recipe in position order.
func (r *Repository) ListRecipe(ctx context.Context, shopID, productID int64) ([]RecipeItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT ri.id, ri.shop_id, ri.product_id, ri.material_id, m.name, m.unit, ri.quantity_required, ri.position
FROM recipe_items ri
JOIN materials m ON m.id = ri.material_id AND m.shop_id = ri.shop_id
WHERE ri.shop_id=$1 AND ri.product_id=$2
ORDER BY ri.position ASC, ri.id ASC`, shopID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RecipeItem{}
	for rows.Next() {
		var item RecipeItem
		if err := rows.Scan(&item.ID, &item.ShopID, &item.ProductID, &item.MaterialID, &item.MaterialName, &item.MaterialUnit, &item.QuantityRequired, &item.Position); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListBelowMinStock returns active items under their minimum stock level.
func (r *Repository) ListBelowMinStock(ctx context.Context, shopID int64) ([]Product, []Material, error) {
	productRows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE shop_id=$1 AND is_active AND min_stock IS NOT NULL AND current_stock < min_stock
ORDER BY name ASC`, shopID)
	if err != nil {
		return nil, nil, err
	}
	defer productRows.Close()
	products := []Product{}
	for productRows.Next() {
		product, err := scanProduct(productRows)
		if err != nil {
			return nil, nil, err
		}
		products = append(products, product)
	}
	if err := productRows.Err(); err != nil {
		return nil, nil, err
	}

	materialRows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials
WHERE shop_id=$1 AND is_active AND min_stock IS NOT NULL AND current_stock < min_stock
ORDER BY name ASC`, shopID)
	if err != nil {
		return nil, nil, err
	}
	defer materialRows.Close()
	materials := []Material{}
	for materialRows.Next() {
		material, err := scanMaterial(materialRows)
		if err != nil {
			return nil, nil, err
		}
		materials = append(materials, material)
	}
	return products, materials, materialRows.Err()
}

func (r *txRepository) InsertProduct(ctx context.Context, input ProductInput) (Product, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO products (shop_id, sku, name, unit, sale_price, min_stock, max_stock, is_active, created_at, updated_at)
VALUES ($1,$2,$3,COALESCE(NULLIF($4,''),'pcs'),$5,$6,$7,TRUE,NOW(),NOW()) RETURNING `+productColumns,
		input.ShopID, input.SKU, input.Name, input.Unit, input.SalePrice, input.MinStock, input.MaxStock)
	product, err := scanProduct(row)
	if err != nil {
		return Product{}, mapUniqueViolation(err, ErrDuplicateSKU)
	}
	return product, nil
}

func (r *txRepository) UpdateProduct(ctx context.Context, productID int64, input ProductInput) (Product, error) {
	row := r.tx.QueryRow(ctx, `UPDATE products
SET sku=$3, name=$4, unit=COALESCE(NULLIF($5,''),'pcs'), sale_price=$6, min_stock=$7, max_stock=$8, updated_at=NOW()
WHERE shop_id=$1 AND id=$2
RETURNING `+productColumns,
		input.ShopID, productID, input.SKU, input.Name, input.Unit, input.SalePrice, input.MinStock, input.MaxStock)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
		}
		return Product{}, mapUniqueViolation(err, ErrDuplicateSKU)
	}
	return product, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, shopID, productID int64) (Product, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, productID)
	return scanProductErr(row, productID)
}

func (r *txRepository) DeactivateProduct(ctx context.Context, shopID, productID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET is_active=FALSE, updated_at=NOW() WHERE shop_id=$1 AND id=$2`, shopID, productID)
	return err
}

func (r *txRepository) DeleteProduct(ctx context.Context, shopID, productID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM products WHERE shop_id=$1 AND id=$2`, shopID, productID)
	return err
}

func (r *txRepository) InsertMaterial(ctx context.Context, input MaterialInput) (Material, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO materials (shop_id, sku, name, unit, min_stock, max_stock, is_active, created_at, updated_at)
VALUES ($1,$2,$3,COALESCE(NULLIF($4,''),'kg'),$5,$6,TRUE,NOW(),NOW()) RETURNING `+materialColumns,
		input.ShopID, input.SKU, input.Name, input.Unit, input.MinStock, input.MaxStock)
	material, err := scanMaterial(row)
	if err != nil {
		return Material{}, mapUniqueViolation(err, ErrDuplicateSKU)
	}
	return material, nil
}

func (r *txRepository) UpdateMaterial(ctx context.Context, materialID int64, input MaterialInput) (Material, error) {
	row := r.tx.QueryRow(ctx, `UPDATE materials
SET sku=$3, name=$4, unit=COALESCE(NULLIF($5,''),'kg'), min_stock=$6, max_stock=$7, updated_at=NOW()
WHERE shop_id=$1 AND id=$2
RETURNING `+materialColumns,
		input.ShopID, materialID, input.SKU, input.Name, input.Unit, input.MinStock, input.MaxStock)
	material, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("material %d: %w", materialID, shared.ErrNotFound)
		}
		return Material{}, mapUniqueViolation(err, ErrDuplicateSKU)
	}
	return material, nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, shopID, materialID int64) (Material, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, materialID)
	return scanMaterialErr(row, materialID)
}

func (r *txRepository) DeactivateMaterial(ctx context.Context, shopID, materialID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE materials SET is_active=FALSE, updated_at=NOW() WHERE shop_id=$1 AND id=$2`, shopID, materialID)
	return err
}

func (r *txRepository) DeleteMaterial(ctx context.Context, shopID, materialID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM materials WHERE shop_id=$1 AND id=$2`, shopID, materialID)
	return err
}

func (r *txRepository) HasMovements(ctx context.Context, shopID int64, kind ItemKind, ownerID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE shop_id=$1 AND owner_kind=$2 AND owner_id=$3)`,
		shopID, string(kind), ownerID).Scan(&exists)
	return exists, err
}

func (r *txRepository) MaterialInRecipes(ctx context.Context, shopID, materialID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recipe_items WHERE shop_id=$1 AND material_id=$2)`, shopID, materialID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertRecipeItem(ctx context.Context, input RecipeItemInput) (RecipeItem, error) {
	var item RecipeItem
	err := r.tx.QueryRow(ctx, `INSERT INTO recipe_items (shop_id, product_id, material_id, quantity_required, position, created_at)
VALUES ($1,$2,$3,$4,COALESCE((SELECT MAX(position)+1 FROM recipe_items WHERE product_id=$2),0),NOW())
RETURNING id, shop_id, product_id, material_id, quantity_required, position`,
		input.ShopID, input.ProductID, input.MaterialID, input.QuantityRequired).
		Scan(&item.ID, &item.ShopID, &item.ProductID, &item.MaterialID, &item.QuantityRequired, &item.Position)
	if err != nil {
		return RecipeItem{}, mapUniqueViolation(err, ErrDuplicateRecipeItem)
	}
	return item, nil
}

func (r *txRepository) DeleteRecipeItem(ctx context.Context, shopID, recipeItemID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM recipe_items WHERE shop_id=$1 AND id=$2`, shopID, recipeItemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipe item %d: %w", recipeItemID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) DeleteRecipeByProduct(ctx context.Context, shopID, productID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM recipe_items WHERE shop_id=$1 AND product_id=$2`, shopID, productID)
	return err
}

func mapUniqueViolation(err error, sentinel error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel
	}
	return err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.ShopID, &p.SKU, &p.Name, &p.Unit, &p.SalePrice, &p.CurrentStock, &p.AvgCost,
		&p.MinStock, &p.MaxStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanProductErr(row pgx.Row, productID int64) (Product, error) {
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return product, nil
}

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.ShopID, &m.SKU, &m.Name, &m.Unit, &m.CurrentStock, &m.AvgCost,
		&m.MinStock, &m.MaxStock, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func scanMaterialErr(row pgx.Row, materialID int64) (Material, error) {
	material, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("material %d: %w", materialID, shared.ErrNotFound)
		}
		return Material{}, err
	}
	return material, nil
}
