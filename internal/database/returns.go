package database

import (
	"context"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReturnRepository stores return headers and their lines.
type ReturnRepository struct {
	db *gorm.DB
}

func orderedItems(db *gorm.DB) *gorm.DB { return db.Order("id") }

// Create inserts the header first, then one row per line.
func (r *ReturnRepository) Create(ctx context.Context, ret *models.Return) error {
	db := conn(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(ret).Error; err != nil {
		return translate(err, nil, "create return")
	}
	for i := range ret.Items {
		ret.Items[i].ReturnID = ret.ID
		if err := db.Create(&ret.Items[i]).Error; err != nil {
			return translate(err, nil, "create return item")
		}
	}
	return nil
}

func (r *ReturnRepository) FindByID(ctx context.Context, id uint) (*models.Return, error) {
	var ret models.Return
	if err := conn(ctx, r.db).Preload("Items", orderedItems).First(&ret, id).Error; err != nil {
		return nil, translate(err, apperr.NotFound("return %d not found", id), "load return")
	}
	return &ret, nil
}

// Transition updates a return only while it is still in status from. It
// reports false when another request moved it first.
func (r *ReturnRepository) Transition(ctx context.Context, id uint, from string, fields map[string]any) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Return{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, apperr.Internal("failed to update return", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FindActiveBySale lists the non-cancelled returns against a sale, oldest first.
func (r *ReturnRepository) FindActiveBySale(ctx context.Context, saleID uint) ([]models.Return, error) {
	var returns []models.Return
	err := conn(ctx, r.db).
		Preload("Items", orderedItems).
		Where("sale_id = ? AND status <> ?", saleID, models.ReturnStatusCancelled).
		Order("id").
		Find(&returns).Error
	if err != nil {
		return nil, apperr.Internal("failed to load previous returns", err)
	}
	return returns, nil
}

func (r *ReturnRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	if err := conn(ctx, r.db).Model(&models.Return{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, apperr.Internal("failed to count returns", err)
	}
	return n, nil
}

// List returns one page of returns, newest first, plus the total match count.
func (r *ReturnRepository) List(ctx context.Context, f models.ReturnFilter) ([]models.Return, int64, error) {
	q := conn(ctx, r.db).Model(&models.Return{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SaleID != 0 {
		q = q.Where("sale_id = ?", f.SaleID)
	}
	if f.CustomerID != 0 {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("failed to count returns", err)
	}

	var returns []models.Return
	err := q.Preload("Items", orderedItems).
		Order("created_at desc, id desc").
		Scopes(paginate(f.Page.Page, f.Page.PageSize)).
		Find(&returns).Error
	if err != nil {
		return nil, 0, apperr.Internal("failed to list returns", err)
	}
	return returns, total, nil
}
