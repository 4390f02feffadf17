package sales

import (
	"context"
	"testing"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/database/dbtest"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var admin = returns.Actor{ID: 1, Role: models.RoleAdmin}

func newService(t *testing.T) (*Service, *database.Store) {
	t.Helper()
	store := dbtest.New(t)
	svc := NewService(Deps{
		Tx:       store,
		Sales:    store.Sales,
		Products: store.Products,
		Ledger:   store.Products,
		Returns:  store.Returns,
		Audit:    store.Audit,
		Logger:   zaptest.NewLogger(t),
	}, decimal.RequireFromString("0.16"))
	return svc, store
}

func TestCheckout(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	pads := dbtest.Product(t, store, "Brake Pads", "150", 4)
	oil := dbtest.Product(t, store, "Motor Oil", "89.90", 10)

	sale, err := svc.Checkout(ctx, 3, nil, []CartItem{{ProductID: pads.ID, Quantity: 2}, {ProductID: oil.ID, Quantity: 1}})
	require.NoError(t, err)

	assert.True(t, sale.Subtotal.Equal(decimal.RequireFromString("389.90")), sale.Subtotal.String())
	assert.True(t, sale.Tax.Equal(decimal.RequireFromString("62.38")), sale.Tax.String())
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("452.28")), sale.Total.String())
	assert.Equal(t, 2, dbtest.Stock(t, store, pads.ID))
	assert.Equal(t, 9, dbtest.Stock(t, store, oil.ID))

	stored, err := store.Sales.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.True(t, stored.Items[0].PriceAtSale.Equal(decimal.NewFromInt(150)))
}

func TestCheckout_InsufficientStockRollsBack(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	a := dbtest.Product(t, store, "Fuse", "5", 10)
	b := dbtest.Product(t, store, "Battery", "1800", 0)

	_, err := svc.Checkout(ctx, 3, nil, []CartItem{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 1}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 10, dbtest.Stock(t, store, a.ID))

	_, err = svc.Checkout(ctx, 3, nil, []CartItem{{ProductID: 999, Quantity: 1}})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Checkout(ctx, 3, nil, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCancelSale(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Mirror", "300", 5)

	sale, err := svc.Checkout(ctx, 3, nil, []CartItem{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 3, dbtest.Stock(t, store, p.ID))

	_, err = svc.Cancel(ctx, sale.ID, returns.Actor{ID: 3, Role: models.RoleCashier})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	cancelled, err := svc.Cancel(ctx, sale.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, dbtest.Stock(t, store, p.ID))

	_, err = svc.Cancel(ctx, sale.ID, admin)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, 5, dbtest.Stock(t, store, p.ID))
}

func TestCancelSale_WithActiveReturn(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Jack", "450", 5)
	sale := dbtest.Sale(t, store, "72", dbtest.Line{Product: p, Quantity: 1, Price: "450"})
	require.NoError(t, store.Returns.Create(ctx, &models.Return{SaleID: sale.ID, Status: models.ReturnStatusPending}))

	_, err := svc.Cancel(ctx, sale.ID, admin)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, 5, dbtest.Stock(t, store, p.ID))
}
