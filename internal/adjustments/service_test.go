package adjustments

import (
	"context"
	"testing"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/cache"
	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/database/dbtest"
	"go-autoparts-pos/internal/events"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	admin   = returns.Actor{ID: 1, Role: models.RoleAdmin}
	cashier = returns.Actor{ID: 2, Role: models.RoleCashier}
)

func newService(t *testing.T) (*Service, *database.Store, *events.MemoryPublisher) {
	t.Helper()
	store := dbtest.New(t)
	pub := &events.MemoryPublisher{}
	svc := NewService(Deps{
		Tx:          store,
		Products:    store.Products,
		Ledger:      store.Products,
		Adjustments: store.Adjustments,
		Audit:       store.Audit,
		Cache:       cache.NewMemoryCountCache(),
		Events:      pub,
		Logger:      zaptest.NewLogger(t),
	}, Options{
		ApprovalThreshold: decimal.NewFromInt(500),
		PendingCountTTL:   time.Minute,
	})
	return svc, store, pub
}

func TestCreate_SmallAdjustmentAppliesImmediately(t *testing.T) {
	svc, store, pub := newService(t)
	ctx := context.Background()
	// Cost is half the price: 100 per unit.
	p := dbtest.Product(t, store, "Brake Disc", "200", 10)

	adj, err := svc.Create(ctx, CreateInput{ProductID: p.ID, Type: models.AdjustmentDecrease, Quantity: 3, Reason: "damaged"}, cashier)
	require.NoError(t, err)

	assert.Equal(t, models.AdjustmentStatusApplied, adj.Status)
	assert.True(t, adj.UnitCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, adj.TotalValue.Equal(decimal.NewFromInt(300)))
	assert.Nil(t, adj.ApprovedBy)
	assert.Equal(t, 7, dbtest.Stock(t, store, p.ID))
	assert.Equal(t, []string{events.EventAdjustmentCreated}, pub.Types())
}

func TestCreate_AdminBypassesApproval(t *testing.T) {
	svc, store, _ := newService(t)
	p := dbtest.Product(t, store, "Engine", "10000", 1)

	adj, err := svc.Create(context.Background(), CreateInput{ProductID: p.ID, Type: models.AdjustmentIncrease, Quantity: 2, Reason: "found in back room"}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.AdjustmentStatusApplied, adj.Status)
	require.NotNil(t, adj.ApprovedBy)
	assert.Equal(t, 3, dbtest.Stock(t, store, p.ID))
}

func TestPendingAdjustment_Authorize(t *testing.T) {
	svc, store, pub := newService(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Catalytic Converter", "3000", 4)

	adj, err := svc.Create(ctx, CreateInput{ProductID: p.ID, Type: models.AdjustmentDecrease, Quantity: 1, Reason: "stolen"}, cashier)
	require.NoError(t, err)
	require.Equal(t, models.AdjustmentStatusPending, adj.Status)
	assert.Equal(t, 4, dbtest.Stock(t, store, p.ID))

	n, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = svc.Authorize(ctx, adj.ID, cashier)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	applied, err := svc.Authorize(ctx, adj.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.AdjustmentStatusApplied, applied.Status)
	assert.Equal(t, 3, dbtest.Stock(t, store, p.ID))

	_, err = svc.Authorize(ctx, adj.ID, admin)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, 3, dbtest.Stock(t, store, p.ID))

	n, err = svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{events.EventAdjustmentCreated, events.EventAdjustmentApplied}, pub.Types())
}

func TestPendingAdjustment_AuthorizeFailsWithoutStock(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Turbo", "4000", 1)

	adj, err := svc.Create(ctx, CreateInput{ProductID: p.ID, Type: models.AdjustmentDecrease, Quantity: 1, Reason: "damaged"}, cashier)
	require.NoError(t, err)
	require.NoError(t, store.Products.Decrement(ctx, p.ID, 1))

	_, err = svc.Authorize(ctx, adj.ID, admin)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	stored, err := svc.Get(ctx, adj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdjustmentStatusPending, stored.Status, "status change must roll back")
}

func TestPendingAdjustment_Reject(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Radiator", "2000", 5)

	adj, err := svc.Create(ctx, CreateInput{ProductID: p.ID, Type: models.AdjustmentIncrease, Quantity: 3, Reason: "recount", Comments: "aisle 4"}, cashier)
	require.NoError(t, err)
	require.Equal(t, models.AdjustmentStatusPending, adj.Status)

	_, err = svc.Reject(ctx, adj.ID, admin, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	rejected, err := svc.Reject(ctx, adj.ID, admin, "count was right")
	require.NoError(t, err)
	assert.Equal(t, models.AdjustmentStatusRejected, rejected.Status)
	assert.Equal(t, "aisle 4 | REJECTED: count was right", rejected.Comments)
	assert.Equal(t, 5, dbtest.Stock(t, store, p.ID))

	_, err = svc.Authorize(ctx, adj.ID, admin)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	logs, err := store.Audit.ForEntity(ctx, "adjustment", adj.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "reject", logs[1].Action)
}

func TestCreate_Validation(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Nut", "1", 0)

	_, err := svc.Create(ctx, CreateInput{ProductID: p.ID, Type: "teleport", Quantity: 0}, cashier)
	require.Error(t, err)
	ae := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Len(t, ae.Fields, 3)

	_, err = svc.Create(ctx, CreateInput{ProductID: 999, Type: models.AdjustmentIncrease, Quantity: 1, Reason: "x"}, cashier)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Create(ctx, CreateInput{ProductID: p.ID, Type: models.AdjustmentDecrease, Quantity: 1, Reason: "lost"}, cashier)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "cannot decrease below zero")

	list, total, err := svc.List(ctx, models.AdjustmentFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

type hookedCache struct {
	*cache.MemoryCountCache
	beforeSet func()
}

func (c *hookedCache) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	return c.MemoryCountCache.Set(ctx, key, value, ttl)
}

func TestPendingCount_AdjustmentCreatedDuringFill(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	counts := &hookedCache{MemoryCountCache: cache.NewMemoryCountCache()}
	svc := NewService(Deps{
		Tx:          store,
		Products:    store.Products,
		Ledger:      store.Products,
		Adjustments: store.Adjustments,
		Audit:       store.Audit,
		Cache:       counts,
		Logger:      zaptest.NewLogger(t),
	}, Options{ApprovalThreshold: decimal.NewFromInt(500), PendingCountTTL: time.Minute})

	p := dbtest.Product(t, store, "Transmission", "6000", 2)
	counts.beforeSet = func() {
		adj, err := svc.Create(ctx, CreateInput{ProductID: p.ID, Type: models.AdjustmentDecrease, Quantity: 1, Reason: "dropped"}, cashier)
		require.NoError(t, err)
		require.Equal(t, models.AdjustmentStatusPending, adj.Status)
	}

	n, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
