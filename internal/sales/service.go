// Package sales runs checkout and sale cancellation.
package sales

import (
	"context"
	"fmt"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/inventory"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SaleStore interface {
	Create(ctx context.Context, sale *models.Sale) error
	FindByID(ctx context.Context, id uint) (*models.Sale, error)
	LockForUpdate(ctx context.Context, id uint) error
	UpdateStatus(ctx context.Context, id uint, status string) error
}

type ReturnFinder interface {
	FindActiveBySale(ctx context.Context, saleID uint) ([]models.Return, error)
}

type Deps struct {
	Tx       returns.TxRunner
	Sales    SaleStore
	Products returns.ProductReader
	Ledger   inventory.Ledger
	Returns  ReturnFinder
	Audit    returns.AuditWriter
	Logger   *zap.Logger
}

type Service struct {
	Deps
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewService builds the checkout service. taxRate is a fraction, e.g. 0.16.
func NewService(deps Deps, taxRate decimal.Decimal) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{Deps: deps, taxRate: taxRate, now: time.Now}
}

type CartItem struct {
	ProductID uint
	Quantity  int
}

// Checkout sells the cart: stock is taken only if available, prices are
// snapshotted and tax is added at the configured rate. All or nothing.
func (s *Service) Checkout(ctx context.Context, userID uint, customerID *uint, items []CartItem) (*models.Sale, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("cart is empty", apperr.Field("items", "at least one item is required"))
	}
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, apperr.Validation("invalid cart", apperr.Field(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0"))
		}
	}

	var sale *models.Sale
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		sale = &models.Sale{
			UserID:     userID,
			CustomerID: customerID,
			Status:     models.SaleStatusCompleted,
			SaleTime:   s.now(),
		}
		for _, it := range items {
			product, err := s.Products.FindByID(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if err := s.Ledger.DecrementIfAvailable(ctx, product.ID, it.Quantity); err != nil {
				return err
			}

			sub := product.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
			sale.Subtotal = sale.Subtotal.Add(sub)
			sale.Items = append(sale.Items, models.SaleItem{
				ProductID:   product.ID,
				Quantity:    it.Quantity,
				PriceAtSale: product.Price,
				Subtotal:    sub,
			})
		}
		sale.Tax = sale.Subtotal.Mul(s.taxRate).Round(2)
		sale.Total = sale.Subtotal.Add(sale.Tax)

		return s.Sales.Create(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Sale completed",
		zap.Uint("sale_id", sale.ID),
		zap.Uint("user_id", userID),
		zap.String("total", sale.Total.StringFixed(2)),
	)
	return sale, nil
}

// Cancel voids a completed sale and puts its stock back. A sale with
// active returns must have them cancelled first.
func (s *Service) Cancel(ctx context.Context, saleID uint, actor returns.Actor) (*models.Sale, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can cancel sales")
	}

	var sale *models.Sale
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.Sales.LockForUpdate(ctx, saleID); err != nil {
			return err
		}
		var err error
		if sale, err = s.Sales.FindByID(ctx, saleID); err != nil {
			return err
		}
		if sale.Status != models.SaleStatusCompleted {
			return apperr.InvalidState("sale %d is %s; only completed sales can be cancelled", saleID, sale.Status)
		}
		active, err := s.Returns.FindActiveBySale(ctx, saleID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return apperr.InvalidState("sale %d has %d active return(s)", saleID, len(active))
		}

		moves := make([]inventory.Movement, 0, len(sale.Items))
		for _, it := range sale.Items {
			moves = append(moves, inventory.In(it.ProductID, it.Quantity))
		}
		if err := inventory.Apply(ctx, s.Ledger, moves); err != nil {
			return err
		}
		if err := s.Sales.UpdateStatus(ctx, saleID, models.SaleStatusCancelled); err != nil {
			return err
		}
		sale.Status = models.SaleStatusCancelled

		if s.Audit == nil {
			return nil
		}
		return s.Audit.Record(ctx, &models.AuditLog{UserID: actor.ID, Action: "cancel", Entity: "sale", EntityID: saleID})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Sale cancelled", zap.Uint("sale_id", saleID), zap.Uint("cancelled_by", actor.ID))
	return sale, nil
}
