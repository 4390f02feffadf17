package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/database/dbtest"
	"go-autoparts-pos/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepository_StockMovements(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Brake Pad", "150", 10)

	require.NoError(t, store.Products.Increment(ctx, p.ID, 5))
	assert.Equal(t, 15, dbtest.Stock(t, store, p.ID))

	require.NoError(t, store.Products.Decrement(ctx, p.ID, 3))
	assert.Equal(t, 12, dbtest.Stock(t, store, p.ID))

	t.Run("non-positive amount", func(t *testing.T) {
		err := store.Products.Increment(ctx, p.ID, 0)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("missing product", func(t *testing.T) {
		err := store.Products.Decrement(ctx, 9999, 1)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestProductRepository_DecrementIfAvailable(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Oil Filter", "80", 2)

	err := store.Products.DecrementIfAvailable(ctx, p.ID, 3)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Oil Filter")
	assert.Equal(t, 2, dbtest.Stock(t, store, p.ID))

	require.NoError(t, store.Products.DecrementIfAvailable(ctx, p.ID, 2))
	assert.Equal(t, 0, dbtest.Stock(t, store, p.ID))

	err = store.Products.DecrementIfAvailable(ctx, 4242, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProductRepository_DuplicateSKU(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, store.Products.Create(ctx, &models.Product{SKU: "BP-01", Name: "Brake Pad"}))
	err := store.Products.Create(ctx, &models.Product{SKU: "BP-01", Name: "Other"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestProductRepository_UpdateIgnoresStock(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Spark Plug", "40", 7)

	updated, err := store.Products.Update(ctx, p.ID, map[string]any{
		"name":           "Iridium Spark Plug",
		"stock_quantity": 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Iridium Spark Plug", updated.Name)
	assert.Equal(t, 7, updated.StockQuantity)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Alternator", "2500", 1)

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(ctx context.Context) error {
		if err := store.Products.Increment(ctx, p.ID, 10); err != nil {
			return err
		}
		// Nested scopes join the outer transaction.
		return store.Transaction(ctx, func(ctx context.Context) error {
			if err := store.Products.Create(ctx, &models.Product{SKU: "TMP", Name: "Temp"}); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, dbtest.Stock(t, store, p.ID))
	_, err = store.Products.FindBySKU(ctx, "TMP")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestStore_TransactionCommits(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Radiator", "1800", 3)

	err := store.Transaction(ctx, func(ctx context.Context) error {
		return store.Products.Decrement(ctx, p.ID, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dbtest.Stock(t, store, p.ID))
}

func TestSaleRepository_FindByID(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	a := dbtest.Product(t, store, "Belt", "120", 5)
	b := dbtest.Product(t, store, "Hose", "60", 5)
	sale := dbtest.Sale(t, store, "48", dbtest.Line{Product: a, Quantity: 1, Price: "120"}, dbtest.Line{Product: b, Quantity: 3, Price: "60"})

	got, err := store.Sales.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Belt", got.Items[0].Product.Name)
	assert.Equal(t, 3, got.Items[1].Quantity)
	assert.True(t, got.Subtotal.Equal(decimal.NewFromInt(300)), got.Subtotal.String())

	_, err = store.Sales.FindByID(ctx, 777)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, store.Sales.UpdateStatus(ctx, sale.ID, models.SaleStatusCancelled))
	got, err = store.Sales.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCancelled, got.Status)
}

func newReturn(saleID uint, item models.SaleItem, qty int, status string) *models.Return {
	sub := item.PriceAtSale.Mul(decimal.NewFromInt(int64(qty)))
	return &models.Return{
		SaleID:       saleID,
		RequestedBy:  1,
		Reason:       models.ReturnReasonDefective,
		RefundMethod: models.RefundCash,
		Subtotal:     sub,
		Total:        sub,
		Status:       status,
		Items: []models.ReturnItem{{
			SaleItemID: item.ID,
			ProductID:  item.ProductID,
			Quantity:   qty,
			UnitPrice:  item.PriceAtSale,
			Subtotal:   sub,
		}},
	}
}

func TestReturnRepository(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Shock Absorber", "900", 4)
	sale := dbtest.Sale(t, store, "0", dbtest.Line{Product: p, Quantity: 4, Price: "900"})
	item := sale.Items[0]

	first := newReturn(sale.ID, item, 1, models.ReturnStatusCompleted)
	second := newReturn(sale.ID, item, 1, models.ReturnStatusPending)
	third := newReturn(sale.ID, item, 2, models.ReturnStatusCancelled)
	for _, r := range []*models.Return{first, second, third} {
		require.NoError(t, store.Returns.Create(ctx, r))
		require.NotZero(t, r.Items[0].ReturnID)
	}

	t.Run("find by id loads items", func(t *testing.T) {
		got, err := store.Returns.FindByID(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, item.ID, got.Items[0].SaleItemID)
	})

	t.Run("active returns skip cancelled", func(t *testing.T) {
		active, err := store.Returns.FindActiveBySale(ctx, sale.ID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, first.ID, active[0].ID)
		assert.Equal(t, second.ID, active[1].ID)
	})

	t.Run("count by status", func(t *testing.T) {
		n, err := store.Returns.CountByStatus(ctx, models.ReturnStatusPending)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		list, total, err := store.Returns.List(ctx, models.ReturnFilter{SaleID: sale.ID, Page: models.Page{Page: 1, PageSize: 2}})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, list, 2)

		list, total, err = store.Returns.List(ctx, models.ReturnFilter{Status: models.ReturnStatusCancelled})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, list, 1)
		assert.Equal(t, third.ID, list[0].ID)

		future := time.Now().Add(time.Hour)
		_, total, err = store.Returns.List(ctx, models.ReturnFilter{From: &future})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("transition only from the expected status", func(t *testing.T) {
		ok, err := store.Returns.Transition(ctx, second.ID, models.ReturnStatusPending, map[string]any{"status": models.ReturnStatusCompleted})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Returns.Transition(ctx, second.ID, models.ReturnStatusPending, map[string]any{"status": models.ReturnStatusCancelled})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.Returns.FindByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReturnStatusCompleted, got.Status)
	})

	t.Run("transition missing return", func(t *testing.T) {
		ok, err := store.Returns.Transition(ctx, 999, models.ReturnStatusPending, map[string]any{"status": models.ReturnStatusCompleted})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestAdjustmentRepository(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Wiper", "90", 10)

	adj := &models.InventoryAdjustment{
		ProductID:   p.ID,
		Type:        models.AdjustmentDecrease,
		Quantity:    2,
		Reason:      "damaged in storage",
		Status:      models.AdjustmentStatusPending,
		RequestedBy: 3,
	}
	require.NoError(t, store.Adjustments.Create(ctx, adj))

	ok, err := store.Adjustments.Transition(ctx, adj.ID, models.AdjustmentStatusPending, map[string]any{"status": models.AdjustmentStatusApplied})
	require.NoError(t, err)
	require.True(t, ok)
	got, err := store.Adjustments.FindByID(ctx, adj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdjustmentStatusApplied, got.Status)

	list, total, err := store.Adjustments.List(ctx, models.AdjustmentFilter{ProductID: p.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	n, err := store.Adjustments.CountByStatus(ctx, models.AdjustmentStatusPending)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditRepository(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, store.Audit.Record(ctx, &models.AuditLog{UserID: 1, Action: "authorize", Entity: "return", EntityID: 5}))
	require.NoError(t, store.Audit.Record(ctx, &models.AuditLog{UserID: 1, Action: "cancel", Entity: "return", EntityID: 5}))
	require.NoError(t, store.Audit.Record(ctx, &models.AuditLog{UserID: 1, Action: "cancel", Entity: "return", EntityID: 6}))

	logs, err := store.Audit.ForEntity(ctx, "return", 5)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "authorize", logs[0].Action)
}
