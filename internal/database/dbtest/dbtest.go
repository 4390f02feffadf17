// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a Store over a fresh, migrated in-memory database that is
// closed when the test ends.
func New(t *testing.T) *database.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.NewGormLogger(zap.NewNop(), gormlogger.Silent, time.Second),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return database.NewStore(db)
}

var skuSeq atomic.Int64

// Product inserts a product with the given price and stock. Cost is half
// the price.
func Product(t *testing.T, store *database.Store, name string, price string, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		SKU:           fmt.Sprintf("SKU-%d", skuSeq.Add(1)),
		Name:          name,
		Category:      "General",
		Price:         decimal.RequireFromString(price),
		CostPrice:     decimal.RequireFromString(price).Div(decimal.NewFromInt(2)),
		StockQuantity: stock,
	}
	require.NoError(t, store.Products.Create(t.Context(), p))
	return p
}

// Line describes one sale line for Sale.
type Line struct {
	Product  *models.Product
	Quantity int
	Price    string
}

// Sale inserts a completed sale with the given tax amount. The subtotal is
// the sum of the lines.
func Sale(t *testing.T, store *database.Store, tax string, lines ...Line) *models.Sale {
	t.Helper()

	sale := &models.Sale{
		UserID:   1,
		Status:   models.SaleStatusCompleted,
		SaleTime: time.Now(),
		Tax:      decimal.RequireFromString(tax),
	}
	for _, l := range lines {
		price := decimal.RequireFromString(l.Price)
		sub := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		sale.Subtotal = sale.Subtotal.Add(sub)
		sale.Items = append(sale.Items, models.SaleItem{
			ProductID:   l.Product.ID,
			Quantity:    l.Quantity,
			PriceAtSale: price,
			Subtotal:    sub,
		})
	}
	sale.Total = sale.Subtotal.Add(sale.Tax)
	require.NoError(t, store.Sales.Create(t.Context(), sale))
	return sale
}

// Stock reads the current stock of a product.
func Stock(t *testing.T, store *database.Store, productID uint) int {
	t.Helper()
	p, err := store.Products.FindByID(t.Context(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}
