package database

import (
	"context"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"

	"gorm.io/gorm"
)

// AdjustmentRepository stores manual inventory adjustments.
type AdjustmentRepository struct {
	db *gorm.DB
}

func (r *AdjustmentRepository) Create(ctx context.Context, adj *models.InventoryAdjustment) error {
	return translate(conn(ctx, r.db).Create(adj).Error, nil, "create adjustment")
}

func (r *AdjustmentRepository) FindByID(ctx context.Context, id uint) (*models.InventoryAdjustment, error) {
	var adj models.InventoryAdjustment
	if err := conn(ctx, r.db).First(&adj, id).Error; err != nil {
		return nil, translate(err, apperr.NotFound("adjustment %d not found", id), "load adjustment")
	}
	return &adj, nil
}

// Transition updates an adjustment only while it is still in status from.
func (r *AdjustmentRepository) Transition(ctx context.Context, id uint, from string, fields map[string]any) (bool, error) {
	res := conn(ctx, r.db).Model(&models.InventoryAdjustment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, apperr.Internal("failed to update adjustment", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *AdjustmentRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.InventoryAdjustment{}).Where("status = ?", status).Count(&n).Error
	if err != nil {
		return 0, apperr.Internal("failed to count adjustments", err)
	}
	return n, nil
}

func (r *AdjustmentRepository) List(ctx context.Context, f models.AdjustmentFilter) ([]models.InventoryAdjustment, int64, error) {
	q := conn(ctx, r.db).Model(&models.InventoryAdjustment{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("failed to count adjustments", err)
	}

	var list []models.InventoryAdjustment
	err := q.Order("created_at desc, id desc").
		Scopes(paginate(f.Page.Page, f.Page.PageSize)).
		Find(&list).Error
	if err != nil {
		return nil, 0, apperr.Internal("failed to list adjustments", err)
	}
	return list, total, nil
}
