package database_test

import (
	"context"
	"testing"
	"time"

	"go-autoparts-pos/internal/database/dbtest"
	"go-autoparts-pos/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRepository_SalesReportNetOfReturns(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Battery", "1500", 5)
	sale := dbtest.Sale(t, store, "240", dbtest.Line{Product: p, Quantity: 1, Price: "1500"})
	dbtest.Sale(t, store, "0", dbtest.Line{Product: p, Quantity: 2, Price: "1500"})

	refunded := newReturn(sale.ID, sale.Items[0], 1, models.ReturnStatusCompleted)
	refunded.Total = decimal.NewFromInt(1740)
	require.NoError(t, store.Returns.Create(ctx, refunded))
	require.NoError(t, store.Returns.Create(ctx, newReturn(sale.ID, sale.Items[0], 1, models.ReturnStatusPending)))

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	report, err := store.Reports.SalesReport(ctx, start, end)
	require.NoError(t, err)

	assert.EqualValues(t, 2, report.TotalOrders)
	assert.True(t, report.TotalRevenue.Equal(decimal.NewFromInt(4740)), report.TotalRevenue.String())
	assert.EqualValues(t, 1, report.ReturnsCount)
	assert.True(t, report.ReturnsRefunded.Equal(decimal.NewFromInt(1740)), report.ReturnsRefunded.String())
	assert.True(t, report.NetRevenue.Equal(decimal.NewFromInt(3000)), report.NetRevenue.String())
}

func TestReportRepository_EmptyPeriod(t *testing.T) {
	store := dbtest.New(t)

	report, err := store.Reports.SalesReport(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, report.TotalOrders)
	assert.True(t, report.NetRevenue.IsZero())
}

func TestReportRepository_TopSelling(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	a := dbtest.Product(t, store, "Fuse", "5", 100)
	b := dbtest.Product(t, store, "Bulb", "25", 100)
	dbtest.Sale(t, store, "0", dbtest.Line{Product: a, Quantity: 10, Price: "5"}, dbtest.Line{Product: b, Quantity: 2, Price: "25"})
	dbtest.Sale(t, store, "0", dbtest.Line{Product: b, Quantity: 1, Price: "25"})

	top, err := store.Reports.TopSelling(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Fuse", top[0].ProductName)
	assert.Equal(t, 10, top[0].Sold)
	assert.Equal(t, 3, top[1].Sold)
	assert.True(t, top[1].Revenue.Equal(decimal.NewFromInt(75)), top[1].Revenue.String())
}

func TestReportRepository_ReturnsReport(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Mirror", "300", 5)
	sale := dbtest.Sale(t, store, "0", dbtest.Line{Product: p, Quantity: 3, Price: "300"})

	wrong := newReturn(sale.ID, sale.Items[0], 1, models.ReturnStatusCompleted)
	wrong.Reason = models.ReturnReasonWrongItem
	require.NoError(t, store.Returns.Create(ctx, wrong))
	require.NoError(t, store.Returns.Create(ctx, newReturn(sale.ID, sale.Items[0], 2, models.ReturnStatusPending)))

	report, err := store.Reports.ReturnsReport(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, report.ByReason, 2)
	assert.Equal(t, models.ReturnReasonDefective, report.ByReason[0].Label)
	assert.True(t, report.ByReason[0].Total.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, models.ReturnReasonWrongItem, report.ByReason[1].Label)

	require.Len(t, report.ByStatus, 2)
	assert.Equal(t, models.ReturnStatusCompleted, report.ByStatus[0].Label)
	assert.EqualValues(t, 1, report.ByStatus[0].Count)
}

func TestReportRepository_StockValuation(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	require.NoError(t, store.Products.Create(ctx, &models.Product{
		SKU: "BR-1", Name: "Rotor", Category: "BRAKES", CostPrice: decimal.NewFromInt(400), StockQuantity: 2,
	}))
	require.NoError(t, store.Products.Create(ctx, &models.Product{
		SKU: "EN-1", Name: "Gasket", Category: "ENGINE", CostPrice: decimal.RequireFromString("12.50"), StockQuantity: 4,
	}))
	require.NoError(t, store.Products.Create(ctx, &models.Product{
		SKU: "XX-1", Name: "Sticker", CostPrice: decimal.NewFromInt(1), StockQuantity: 3,
	}))

	val, err := store.Reports.StockValuation(ctx)
	require.NoError(t, err)

	require.Len(t, val.Categories, 3)
	assert.Equal(t, "BRAKES", val.Categories[0].CategoryName)
	assert.True(t, val.Categories[0].Subtotal.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, "Uncategorized", val.Categories[2].CategoryName)
	assert.True(t, val.GrandTotal.Equal(decimal.NewFromInt(853)), val.GrandTotal.String())
}
