package database

import (
	"context"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"

	"gorm.io/gorm"
)

// ProductRepository reads the catalog and is the inventory ledger: stock
// moves only through single UPDATE statements, never read-modify-write.
type ProductRepository struct {
	db *gorm.DB
}

func (r *ProductRepository) FindByID(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := conn(ctx, r.db).First(&p, id).Error; err != nil {
		return nil, translate(err, apperr.NotFound("product %d not found", id), "load product")
	}
	return &p, nil
}

func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var p models.Product
	if err := conn(ctx, r.db).Where("sku = ?", sku).First(&p).Error; err != nil {
		return nil, translate(err, apperr.NotFound("product with SKU %q not found", sku), "load product")
	}
	return &p, nil
}

// List returns the catalog, optionally restricted to one category.
func (r *ProductRepository) List(ctx context.Context, category string) ([]models.Product, error) {
	var products []models.Product
	q := conn(ctx, r.db).Order("name")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, apperr.Internal("failed to fetch products", err)
	}
	return products, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	return translate(conn(ctx, r.db).Create(p).Error, nil, "create product")
}

// Update applies a partial update. Stock is not updatable here.
func (r *ProductRepository) Update(ctx context.Context, id uint, fields map[string]any) (*models.Product, error) {
	delete(fields, "id")
	delete(fields, "stock_quantity")

	res := conn(ctx, r.db).Model(&models.Product{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translate(res.Error, nil, "update product")
	}
	return r.FindByID(ctx, id)
}

func (r *ProductRepository) Delete(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Delete(&models.Product{}, id)
	if res.Error != nil {
		// Usually a foreign key from past sales.
		return apperr.Conflict("product is linked to past sales", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("product %d not found", id)
	}
	return nil
}

// Increment adds n units to a product's stock atomically.
func (r *ProductRepository) Increment(ctx context.Context, productID uint, n int) error {
	if n <= 0 {
		return apperr.Validation("stock movement must be positive", apperr.Field("quantity", "must be greater than 0"))
	}
	res := conn(ctx, r.db).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", n))
	return stockResult(res, productID)
}

// Decrement removes n units from a product's stock atomically. Stock may go
// negative; callers that must not oversell use DecrementIfAvailable.
func (r *ProductRepository) Decrement(ctx context.Context, productID uint, n int) error {
	if n <= 0 {
		return apperr.Validation("stock movement must be positive", apperr.Field("quantity", "must be greater than 0"))
	}
	res := conn(ctx, r.db).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", n))
	return stockResult(res, productID)
}

// DecrementIfAvailable removes n units only if at least n are in stock.
func (r *ProductRepository) DecrementIfAvailable(ctx context.Context, productID uint, n int) error {
	if n <= 0 {
		return apperr.Validation("stock movement must be positive", apperr.Field("quantity", "must be greater than 0"))
	}
	res := conn(ctx, r.db).Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, n).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", n))
	if res.Error != nil {
		return apperr.Internal("failed to update stock", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	p, err := r.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	return apperr.Validation("insufficient stock for "+p.Name,
		apperr.Field("quantity", "exceeds available stock"))
}

func stockResult(res *gorm.DB, productID uint) error {
	if res.Error != nil {
		return apperr.Internal("failed to update stock", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("product %d not found", productID)
	}
	return nil
}
