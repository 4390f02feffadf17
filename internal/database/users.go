package database

import (
	"context"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"

	"gorm.io/gorm"
)

// UserRepository stores register operators.
type UserRepository struct {
	db *gorm.DB
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := conn(ctx, r.db).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err, apperr.NotFound("user %q not found", username), "load user")
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return translate(conn(ctx, r.db).Create(user).Error, nil, "create user")
}

// AuditRepository appends audit log rows.
type AuditRepository struct {
	db *gorm.DB
}

func (r *AuditRepository) Record(ctx context.Context, entry *models.AuditLog) error {
	return translate(conn(ctx, r.db).Create(entry).Error, nil, "write audit log")
}

// ForEntity lists the audit trail of one record, oldest first.
func (r *AuditRepository) ForEntity(ctx context.Context, entity string, id uint) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := conn(ctx, r.db).Where("entity = ? AND entity_id = ?", entity, id).Order("id").Find(&logs).Error
	if err != nil {
		return nil, apperr.Internal("failed to load audit log", err)
	}
	return logs, nil
}
