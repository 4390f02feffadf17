// Package adjustments implements manual inventory corrections (ajustes de
// inventario): shrinkage, damage and count errors, gated behind admin
// approval when a non-admin moves too much value.
package adjustments

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
	"go-autoparts-pos/internal/returns"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	Create(ctx context.Context, adj *models.InventoryAdjustment) error
	FindByID(ctx context.Context, id uint) (*models.InventoryAdjustment, error)
	Transition(ctx context.Context, id uint, from string, fields map[string]any) (bool, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	List(ctx context.Context, f models.AdjustmentFilter) ([]models.InventoryAdjustment, int64, error)
}

type Deps struct {
	Tx          returns.TxRunner
	Products    returns.ProductReader
	Ledger      inventory.Ledger
	Adjustments Store
	Audit       returns.AuditWriter
	Cache       cache.CountCache
	Events      events.Publisher
	Logger      *zap.Logger
}

type Options struct {
	// ApprovalThreshold is the value above which a non-admin adjustment
	// waits for approval.
	ApprovalThreshold decimal.Decimal
	PendingCountTTL   time.Duration
	Producer          string
}

type Service struct {
	Deps
	opts         Options
	pendingCount cache.Counter
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
		pendingCount: cache.Counter{
			Cache:  deps.Cache,
			Key:    cache.KeyPendingAdjustments,
			TTL:    opts.PendingCountTTL,
			Logger: deps.Logger,
		},
	}
}

type CreateInput struct {
	ProductID uint
	Type      string
	Quantity  int
	Reason    string
	Comments  string
}

func (in CreateInput) validate() error {
	var fields []apperr.FieldError
	if in.ProductID == 0 {
		fields = append(fields, apperr.Field("product_id", "is required"))
	}
	if in.Type != models.AdjustmentIncrease && in.Type != models.AdjustmentDecrease {
		fields = append(fields, apperr.Field("type", "must be increase or decrease"))
	}
	if in.Quantity <= 0 {
		fields = append(fields, apperr.Field("quantity", "must be greater than 0"))
	}
	if strings.TrimSpace(in.Reason) == "" {
		fields = append(fields, apperr.Field("reason", "is required"))
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid adjustment", fields...)
	}
	return nil
}

func movement(adj *models.InventoryAdjustment) inventory.Movement {
	if adj.Type == models.AdjustmentIncrease {
		return inventory.In(adj.ProductID, adj.Quantity)
	}
	return inventory.Out(adj.ProductID, adj.Quantity)
}

// Create records an adjustment valued at cost. Admin adjustments and small
// ones apply at once; the rest wait in pending.
func (s *Service) Create(ctx context.Context, in CreateInput, actor returns.Actor) (*models.InventoryAdjustment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var adj *models.InventoryAdjustment
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		product, err := s.Products.FindByID(ctx, in.ProductID)
		if err != nil {
			return err
		}

		adj = &models.InventoryAdjustment{
			ProductID:   product.ID,
			Type:        in.Type,
			Quantity:    in.Quantity,
			Reason:      strings.TrimSpace(in.Reason),
			UnitCost:    product.CostPrice,
			TotalValue:  product.CostPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
			Status:      models.AdjustmentStatusApplied,
			RequestedBy: actor.ID,
			Comments:    in.Comments,
		}
		switch {
		case actor.IsAdmin():
			adj.ApprovedBy = &actor.ID
		case adj.TotalValue.GreaterThan(s.opts.ApprovalThreshold):
			adj.Status = models.AdjustmentStatusPending
		}

		if err := s.Adjustments.Create(ctx, adj); err != nil {
			return err
		}
		if adj.Status == models.AdjustmentStatusApplied {
			if err := inventory.Apply(ctx, s.Ledger, []inventory.Movement{movement(adj)}); err != nil {
				return err
			}
		}
		return s.audit(ctx, actor.ID, "create", adj.ID, fmt.Sprintf("%s %d status=%s", adj.Type, adj.Quantity, adj.Status))
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Inventory adjustment created",
		zap.Uint("adjustment_id", adj.ID),
		zap.Uint("product_id", adj.ProductID),
		zap.String("type", adj.Type),
		zap.Int("quantity", adj.Quantity),
		zap.String("status", adj.Status),
	)
	s.afterCommit(ctx, events.EventAdjustmentCreated, adj, actor.ID)
	return adj, nil
}

// Authorize applies a pending adjustment. Admin only.
func (s *Service) Authorize(ctx context.Context, id uint, actor returns.Actor) (*models.InventoryAdjustment, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can authorize adjustments")
	}

	var adj *models.InventoryAdjustment
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		if adj, err = s.pending(ctx, id); err != nil {
			return err
		}
		if err := s.transition(ctx, id, map[string]any{
			"status":      models.AdjustmentStatusApplied,
			"approved_by": actor.ID,
		}); err != nil {
			return err
		}
		if err := inventory.Apply(ctx, s.Ledger, []inventory.Movement{movement(adj)}); err != nil {
			return err
		}

		adj.Status = models.AdjustmentStatusApplied
		adj.ApprovedBy = &actor.ID
		return s.audit(ctx, actor.ID, "authorize", id, "")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Inventory adjustment applied", zap.Uint("adjustment_id", id), zap.Uint("approved_by", actor.ID))
	s.afterCommit(ctx, events.EventAdjustmentApplied, adj, actor.ID)
	return adj, nil
}

// Reject closes a pending adjustment without touching stock. Admin only.
func (s *Service) Reject(ctx context.Context, id uint, actor returns.Actor, reason string) (*models.InventoryAdjustment, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can reject adjustments")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("rejection reason is required", apperr.Field("reason", "is required"))
	}

	var adj *models.InventoryAdjustment
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		if adj, err = s.pending(ctx, id); err != nil {
			return err
		}
		comments := adj.Comments + " | REJECTED: " + reason
		if err := s.transition(ctx, id, map[string]any{
			"status":   models.AdjustmentStatusRejected,
			"comments": comments,
		}); err != nil {
			return err
		}

		adj.Status = models.AdjustmentStatusRejected
		adj.Comments = comments
		return s.audit(ctx, actor.ID, "reject", id, reason)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Inventory adjustment rejected", zap.Uint("adjustment_id", id), zap.Uint("rejected_by", actor.ID))
	s.afterCommit(ctx, events.EventAdjustmentRejected, adj, actor.ID)
	return adj, nil
}

func (s *Service) pending(ctx context.Context, id uint) (*models.InventoryAdjustment, error) {
	adj, err := s.Adjustments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != models.AdjustmentStatusPending {
		return nil, apperr.InvalidState("adjustment %d is %s; only pending adjustments can be decided", id, adj.Status)
	}
	return adj, nil
}

func (s *Service) transition(ctx context.Context, id uint, fields map[string]any) error {
	ok, err := s.Adjustments.Transition(ctx, id, models.AdjustmentStatusPending, fields)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState("adjustment %d was modified concurrently", id)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.InventoryAdjustment, error) {
	return s.Adjustments.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f models.AdjustmentFilter) ([]models.InventoryAdjustment, int64, error) {
	f.Page = f.Page.Normalize()
	return s.Adjustments.List(ctx, f)
}

// PendingCount counts adjustments awaiting a decision, through the cache.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.pendingCount.Get(ctx, func(ctx context.Context) (int64, error) {
		return s.Adjustments.CountByStatus(ctx, models.AdjustmentStatusPending)
	})
}

func (s *Service) audit(ctx context.Context, userID uint, action string, id uint, detail string) error {
	if s.Audit == nil {
		return nil
	}
	return s.Audit.Record(ctx, &models.AuditLog{
		UserID:   userID,
		Action:   action,
		Entity:   "adjustment",
		EntityID: id,
		Detail:   detail,
	})
}

func (s *Service) afterCommit(ctx context.Context, eventType string, adj *models.InventoryAdjustment, actorID uint) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), returns.SideEffectTimeout)
	defer cancel()

	if err := s.pendingCount.Invalidate(ctx); err != nil {
		s.Logger.Warn("Failed to invalidate pending count", zap.Error(err))
	}

	ev, err := events.NewEnvelope(s.opts.Producer, eventType, events.AdjustmentKey(adj.ID), logger.GetRequestID(ctx), events.AdjustmentPayload{
		AdjustmentID: adj.ID,
		ProductID:    adj.ProductID,
		Type:         adj.Type,
		Quantity:     adj.Quantity,
		TotalValue:   adj.TotalValue,
		Status:       adj.Status,
		ActorID:      actorID,
	})
	if err == nil {
		err = s.Events.Publish(ctx, ev)
	}
	if err != nil {
		s.Logger.Warn("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Uint("adjustment_id", adj.ID),
			zap.Error(err),
		)
	}
}
