// Package returns implements the returns (devolución) workflow: validating a
// return against its original sale, pricing it, gating it behind approval
// and moving stock when it completes or is cancelled.
package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/cache"
	"go-autoparts-pos/internal/events"
	"go-autoparts-pos/internal/inventory"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TxRunner opens a transaction scope. Repository calls made with the ctx
// passed to fn join the transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type SaleReader interface {
	FindByID(ctx context.Context, id uint) (*models.Sale, error)
	LockForUpdate(ctx context.Context, id uint) error
}

type ProductReader interface {
	FindByID(ctx context.Context, id uint) (*models.Product, error)
}

type ReturnStore interface {
	Create(ctx context.Context, ret *models.Return) error
	FindByID(ctx context.Context, id uint) (*models.Return, error)
	Transition(ctx context.Context, id uint, from string, fields map[string]any) (bool, error)
	FindActiveBySale(ctx context.Context, saleID uint) ([]models.Return, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	List(ctx context.Context, f models.ReturnFilter) ([]models.Return, int64, error)
}

type AuditWriter interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

// Deps are the collaborators of the Service. Cache, Events and Logger are
// optional.
type Deps struct {
	Tx       TxRunner
	Sales    SaleReader
	Products ProductReader
	Ledger   inventory.Ledger
	Returns  ReturnStore
	Audit    AuditWriter
	Cache    cache.CountCache
	Events   events.Publisher
	Logger   *zap.Logger
}

type Options struct {
	Policy Policy
	// EnforceReturnable validates requests against the quantity still
	// returnable (sold minus non-cancelled returns). When false only the
	// sold quantity is checked.
	EnforceReturnable bool
	// LockSaleRows locks the sale row while a request is validated so
	// concurrent requests on the same sale are serialised.
	LockSaleRows    bool
	PendingCountTTL time.Duration
	Producer        string
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// SideEffectTimeout bounds the cache and event work done after a commit.
const SideEffectTimeout = 5 * time.Second

type Service struct {
	Deps
	opts    Options
	pending cache.Counter
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Cache == nil {
		deps.Cache = cache.NoopCountCache{}
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Producer == "" {
		opts.Producer = "pos-api"
	}
	return &Service{
		Deps: deps,
		opts: opts,
		pending: cache.Counter{
			Cache:  deps.Cache,
			Key:    cache.KeyPendingReturns,
			TTL:    opts.PendingCountTTL,
			Logger: deps.Logger,
		},
	}
}

// LineInput is one requested line of a return.
type LineInput struct {
	SaleItemID        uint
	Quantity          int
	ExchangeProductID *uint
	ExchangeQuantity  int
}

// RequestInput describes a return request. Approver, when set, authorizes
// the return up front.
type RequestInput struct {
	SaleID       uint
	CustomerID   *uint
	Lines        []LineInput
	Reason       string
	ReasonDetail string
	RefundMethod string
	Comments     string
	Requester    Actor
	Approver     *Actor
}

var (
	validReasons = map[string]bool{
		models.ReturnReasonDefective: true,
		models.ReturnReasonWrongItem: true,
		models.ReturnReasonOther:     true,
	}
	validRefundMethods = map[string]bool{
		models.RefundCash:            true,
		models.RefundCard:            true,
		models.RefundStoreCredit:     true,
		models.RefundProductExchange: true,
	}
)

func (in RequestInput) validate() error {
	var fields []apperr.FieldError
	if in.SaleID == 0 {
		fields = append(fields, apperr.Field("sale_id", "is required"))
	}
	if !validReasons[in.Reason] {
		fields = append(fields, apperr.Field("reason", "must be one of defective, wrong_item, other"))
	}
	if !validRefundMethods[in.RefundMethod] {
		fields = append(fields, apperr.Field("refund_method", "must be one of cash, card, store_credit, product_exchange"))
	}
	if len(in.Lines) == 0 {
		fields = append(fields, apperr.Field("lines", "at least one line is required"))
	}

	seen := make(map[uint]bool, len(in.Lines))
	for i, l := range in.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		if l.Quantity <= 0 {
			fields = append(fields, apperr.Field(prefix+"quantity", "must be greater than 0"))
		}
		if seen[l.SaleItemID] {
			fields = append(fields, apperr.Field(prefix+"sale_item_id", "line appears more than once"))
		}
		seen[l.SaleItemID] = true

		hasProduct, hasQty := l.ExchangeProductID != nil, l.ExchangeQuantity != 0
		switch {
		case hasProduct != hasQty:
			fields = append(fields, apperr.Field(prefix+"exchange_quantity", "exchange product and quantity go together"))
		case hasQty && l.ExchangeQuantity < 0:
			fields = append(fields, apperr.Field(prefix+"exchange_quantity", "must be greater than 0"))
		case hasProduct && in.RefundMethod != models.RefundProductExchange:
			fields = append(fields, apperr.Field(prefix+"exchange_product_id", "only allowed with refund method product_exchange"))
		}
	}

	if len(fields) > 0 {
		return apperr.Validation("invalid return request", fields...)
	}
	return nil
}

// RequestReturn validates a return against its sale and records it. Returns
// at or below the approval threshold complete immediately and move stock;
// larger ones stay pending until authorized. Everything happens in one
// transaction.
func (s *Service) RequestReturn(ctx context.Context, in RequestInput) (*models.Return, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Approver != nil && !in.Approver.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can approve returns")
	}

	var ret *models.Return
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		if s.opts.LockSaleRows {
			if err := s.Sales.LockForUpdate(ctx, in.SaleID); err != nil {
				return err
			}
		}
		sale, err := s.Sales.FindByID(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if sale.Status == models.SaleStatusCancelled {
			return apperr.InvalidState("sale %d is cancelled", sale.ID)
		}

		var returned map[uint]int
		if s.opts.EnforceReturnable {
			previous, err := s.Returns.FindActiveBySale(ctx, sale.ID)
			if err != nil {
				return err
			}
			returned = returnedBySaleItem(previous)
		}

		items, subtotal, err := s.priceLines(ctx, sale, in.Lines, returned)
		if err != nil {
			return err
		}
		tax := proportionalTax(subtotal, sale)
		total := subtotal.Add(tax)

		ret = &models.Return{
			SaleID:       sale.ID,
			CustomerID:   in.CustomerID,
			RequestedBy:  in.Requester.ID,
			Reason:       in.Reason,
			ReasonDetail: in.ReasonDetail,
			RefundMethod: in.RefundMethod,
			Subtotal:     subtotal,
			Tax:          tax,
			Total:        total,
			Status:       models.ReturnStatusPending,
			Comments:     in.Comments,
			Items:        items,
		}
		if ret.CustomerID == nil {
			ret.CustomerID = sale.CustomerID
		}
		if in.Approver != nil {
			ret.Status = models.ReturnStatusCompleted
			ret.ApprovedBy = &in.Approver.ID
		} else if !s.opts.Policy.RequiresApproval(total) {
			ret.Status = models.ReturnStatusCompleted
		}

		if err := s.Returns.Create(ctx, ret); err != nil {
			return err
		}
		if ret.Status == models.ReturnStatusCompleted {
			if err := inventory.Apply(ctx, s.Ledger, movements(ret.Items)); err != nil {
				return err
			}
		}
		return s.audit(ctx, in.Requester.ID, "request", ret.ID, fmt.Sprintf("status=%s total=%s", ret.Status, ret.Total.StringFixed(2)))
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Return requested",
		zap.Uint("return_id", ret.ID),
		zap.Uint("sale_id", ret.SaleID),
		zap.String("status", ret.Status),
		zap.String("total", ret.Total.StringFixed(2)),
	)
	s.afterCommit(ctx, events.EventReturnRequested, ret, in.Requester.ID, "")
	return ret, nil
}

// priceLines matches each requested line to its sale line and prices it
// from the sale, never from caller input. returned is nil when only the
// sold quantity is enforced.
func (s *Service) priceLines(ctx context.Context, sale *models.Sale, lines []LineInput, returned map[uint]int) ([]models.ReturnItem, decimal.Decimal, error) {
	byID := make(map[uint]models.SaleItem, len(sale.Items))
	for _, it := range sale.Items {
		byID[it.ID] = it
	}

	items := make([]models.ReturnItem, 0, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)

		orig, ok := byID[l.SaleItemID]
		if !ok {
			return nil, decimal.Zero, apperr.Validation("line item not found in this sale",
				apperr.Field(field+".sale_item_id", fmt.Sprintf("sale item %d does not belong to sale %d", l.SaleItemID, sale.ID)))
		}
		if l.Quantity > orig.Quantity {
			return nil, decimal.Zero, apperr.Validation("requested quantity exceeds sold quantity",
				apperr.Field(field+".quantity", fmt.Sprintf("sold %d", orig.Quantity)))
		}
		if returned != nil {
			if left := orig.Quantity - returned[orig.ID]; l.Quantity > left {
				return nil, decimal.Zero, apperr.Validation("requested quantity exceeds returnable quantity",
					apperr.Field(field+".quantity", fmt.Sprintf("returnable %d", max(left, 0))))
			}
		}

		item := models.ReturnItem{
			SaleItemID: orig.ID,
			ProductID:  orig.ProductID,
			Quantity:   l.Quantity,
			UnitPrice:  orig.PriceAtSale,
			Subtotal:   orig.PriceAtSale.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
		if l.ExchangeProductID != nil {
			replacement, err := s.Products.FindByID(ctx, *l.ExchangeProductID)
			if err != nil {
				return nil, decimal.Zero, err
			}
			item.ExchangeProductID = &replacement.ID
			item.ExchangeQuantity = l.ExchangeQuantity
			item.ExchangeUnitPrice = replacement.Price
			item.ExchangeSubtotal = replacement.Price.Mul(decimal.NewFromInt(int64(l.ExchangeQuantity)))
			item.PriceDifference = item.ExchangeSubtotal.Sub(item.Subtotal)
		}

		subtotal = subtotal.Add(item.Subtotal)
		items = append(items, item)
	}
	return items, subtotal, nil
}

// proportionalTax applies the sale's effective tax rate to subtotal.
func proportionalTax(subtotal decimal.Decimal, sale *models.Sale) decimal.Decimal {
	if !sale.Subtotal.IsPositive() {
		return decimal.Zero
	}
	return subtotal.Mul(sale.Tax).Div(sale.Subtotal).Round(2)
}

// movements are the stock effects of a completed return: returned parts
// come back, exchange parts go out.
func movements(items []models.ReturnItem) []inventory.Movement {
	moves := make([]inventory.Movement, 0, len(items))
	for _, it := range items {
		moves = append(moves, inventory.In(it.ProductID, it.Quantity))
		if it.IsExchange() {
			moves = append(moves, inventory.Out(*it.ExchangeProductID, it.ExchangeQuantity))
		}
	}
	return moves
}

func returnedBySaleItem(previous []models.Return) map[uint]int {
	returned := make(map[uint]int)
	for _, r := range previous {
		for _, it := range r.Items {
			returned[it.SaleItemID] += it.Quantity
		}
	}
	return returned
}

// Authorize completes a pending return and applies its stock effects.
// Only administrators may authorize.
func (s *Service) Authorize(ctx context.Context, id uint, approver Actor) (*models.Return, error) {
	if !approver.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can authorize returns")
	}

	var ret *models.Return
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		ret, err = s.Returns.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status != models.ReturnStatusPending {
			return apperr.InvalidState("return %d is %s; only pending returns can be authorized", id, ret.Status)
		}

		ok, err := s.Returns.Transition(ctx, id, models.ReturnStatusPending, map[string]any{
			"status":      models.ReturnStatusCompleted,
			"approved_by": approver.ID,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("return %d was modified concurrently", id)
		}
		if err := inventory.Apply(ctx, s.Ledger, movements(ret.Items)); err != nil {
			return err
		}

		ret.Status = models.ReturnStatusCompleted
		ret.ApprovedBy = &approver.ID
		return s.audit(ctx, approver.ID, "authorize", id, "")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Return authorized", zap.Uint("return_id", id), zap.Uint("approved_by", approver.ID))
	s.afterCommit(ctx, events.EventReturnAuthorized, ret, approver.ID, "")
	return ret, nil
}

// Cancel cancels a pending or completed return. A completed return has its
// stock effects reversed. The reason is appended to the comments.
func (s *Service) Cancel(ctx context.Context, id uint, actor Actor, reason string) (*models.Return, error) {
	reason = strings.TrimSpace(reason)

	var ret *models.Return
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		ret, err = s.Returns.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if reason == "" {
			return apperr.Validation("cancellation reason is required", apperr.Field("reason", "is required"))
		}
		if ret.Status == models.ReturnStatusCancelled {
			return apperr.InvalidState("return %d is already cancelled", id)
		}

		from := ret.Status
		comments := ret.Comments + " | CANCELLATION: " + reason
		ok, err := s.Returns.Transition(ctx, id, from, map[string]any{
			"status":   models.ReturnStatusCancelled,
			"comments": comments,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("return %d was modified concurrently", id)
		}
		if from == models.ReturnStatusCompleted {
			if err := inventory.Apply(ctx, s.Ledger, inventory.Reverse(movements(ret.Items))); err != nil {
				return err
			}
		}

		ret.Status = models.ReturnStatusCancelled
		ret.Comments = comments
		return s.audit(ctx, actor.ID, "cancel", id, "from="+from+" reason="+reason)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Return cancelled", zap.Uint("return_id", id), zap.Uint("cancelled_by", actor.ID))
	s.afterCommit(ctx, events.EventReturnCancelled, ret, actor.ID, reason)
	return ret, nil
}

// PendingCount counts returns awaiting authorization, through the count
// cache.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.pending.Get(ctx, func(ctx context.Context) (int64, error) {
		return s.Returns.CountByStatus(ctx, models.ReturnStatusPending)
	})
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Return, error) {
	return s.Returns.FindByID(ctx, id)
}

// List returns one page of returns, newest first, and the total count.
func (s *Service) List(ctx context.Context, f models.ReturnFilter) ([]models.Return, int64, error) {
	f.Page = f.Page.Normalize()
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apperr.Validation("invalid date range", apperr.Field("to", "must not be before from"))
	}
	return s.Returns.List(ctx, f)
}

func (s *Service) audit(ctx context.Context, userID uint, action string, id uint, detail string) error {
	if s.Audit == nil {
		return nil
	}
	return s.Audit.Record(ctx, &models.AuditLog{
		UserID:   userID,
		Action:   action,
		Entity:   "return",
		EntityID: id,
		Detail:   detail,
	})
}

// afterCommit drops the cached pending count and publishes the event. The
// workflow already committed, so failures are only logged, and a caller
// that went away does not cancel them.
func (s *Service) afterCommit(ctx context.Context, eventType string, ret *models.Return, actorID uint, note string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SideEffectTimeout)
	defer cancel()

	if err := s.pending.Invalidate(ctx); err != nil {
		s.Logger.Warn("Failed to invalidate pending count", zap.Error(err))
	}

	payload := events.ReturnPayload{
		ReturnID:     ret.ID,
		SaleID:       ret.SaleID,
		Status:       ret.Status,
		Reason:       ret.Reason,
		RefundMethod: ret.RefundMethod,
		Total:        ret.Total,
		ActorID:      actorID,
		Note:         note,
	}
	for _, it := range ret.Items {
		payload.Returned = append(payload.Returned, events.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
		if it.IsExchange() {
			payload.Exchanged = append(payload.Exchanged, events.ItemQty{ProductID: *it.ExchangeProductID, Qty: it.ExchangeQuantity})
		}
	}

	ev, err := events.NewEnvelope(s.opts.Producer, eventType, events.ReturnKey(ret.ID), logger.GetRequestID(ctx), payload)
	if err == nil {
		err = s.Events.Publish(ctx, ev)
	}
	if err != nil {
		s.Logger.Warn("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Uint("return_id", ret.ID),
			zap.Error(err),
		)
	}
}
