package database

import (
	"fmt"
	"time"

	"go-autoparts-pos/internal/config"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the database, waiting for it to come up, and syncs the schema.
func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is not configured")
	}

	gormCfg := &gorm.Config{
		Logger:         logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.LogLevel), cfg.SlowThreshold),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	// The database container may still be starting.
	for i := 1; i <= cfg.ConnectAttempts; i++ {
		db, err = gorm.Open(dialector(cfg), gormCfg)
		if err == nil {
			break
		}
		log.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i),
			zap.Int("max_attempts", cfg.ConnectAttempts),
			zap.Error(err),
		)
		time.Sleep(cfg.RetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", cfg.ConnectAttempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("Connected to database", zap.String("driver", cfg.Driver))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Database schema synced")

	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func dialector(cfg config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver == "sqlite" {
		return sqlite.Open(cfg.DSN)
	}
	return mysql.Open(cfg.DSN)
}
