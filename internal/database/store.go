package database

import (
	"context"
	"errors"

	"go-autoparts-pos/internal/apperr"

	"gorm.io/gorm"
)

// Store groups the repositories over one database handle. It is built once
// at startup and passed to whoever needs it.
type Store struct {
	db *gorm.DB

	Users       *UserRepository
	Products    *ProductRepository
	Sales       *SaleRepository
	Returns     *ReturnRepository
	Adjustments *AdjustmentRepository
	Audit       *AuditRepository
	Reports     *ReportRepository
}

// NewStore wires every repository to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		Users:       &UserRepository{db: db},
		Products:    &ProductRepository{db: db},
		Sales:       &SaleRepository{db: db},
		Returns:     &ReturnRepository{db: db},
		Adjustments: &AdjustmentRepository{db: db},
		Audit:       &AuditRepository{db: db},
		Reports:     &ReportRepository{db: db},
	}
}

// DB exposes the underlying handle, mainly for shutdown and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type txKey struct{}

// Transaction runs fn inside a database transaction. Every repository call
// made with the ctx handed to fn joins that transaction. The transaction
// commits only if fn returns nil; an error or panic rolls it back.
// Nested calls join the outer transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or db when there is none.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// translate maps gorm errors onto apperr kinds.
func translate(err error, notFound *apperr.Error, action string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		if notFound == nil {
			return apperr.NotFound("record not found")
		}
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("record already exists", err)
	default:
		return apperr.Internal("failed to "+action, err)
	}
}

func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if pageSize <= 0 {
			return db
		}
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}
