package database

import (
	"context"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleRepository reads and writes sales with their line items.
type SaleRepository struct {
	db *gorm.DB
}

// FindByID loads a sale with its lines and their products.
func (r *SaleRepository) FindByID(ctx context.Context, id uint) (*models.Sale, error) {
	var sale models.Sale
	err := conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Product").
		First(&sale, id).Error
	if err != nil {
		return nil, translate(err, apperr.NotFound("sale %d not found", id), "load sale")
	}
	return &sale, nil
}

// LockForUpdate takes a row lock on the sale header for the rest of the
// current transaction.
func (r *SaleRepository) LockForUpdate(ctx context.Context, id uint) error {
	var sale models.Sale
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		Take(&sale).Error
	return translate(err, apperr.NotFound("sale %d not found", id), "lock sale")
}

// Create inserts the header, then its lines.
func (r *SaleRepository) Create(ctx context.Context, sale *models.Sale) error {
	db := conn(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(sale).Error; err != nil {
		return translate(err, nil, "create sale record")
	}
	for i := range sale.Items {
		sale.Items[i].SaleID = sale.ID
		if err := db.Omit(clause.Associations).Create(&sale.Items[i]).Error; err != nil {
			return translate(err, nil, "create sale item")
		}
	}
	return nil
}

func (r *SaleRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	res := conn(ctx, r.db).Model(&models.Sale{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return apperr.Internal("failed to update sale", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("sale %d not found", id)
	}
	return nil
}

// Recent returns the newest sales, headers only.
func (r *SaleRepository) Recent(ctx context.Context, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	if err := conn(ctx, r.db).Order("sale_time desc").Limit(limit).Find(&sales).Error; err != nil {
		return nil, apperr.Internal("failed to fetch recent sales", err)
	}
	return sales, nil
}
