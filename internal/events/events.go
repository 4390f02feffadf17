// Package events publishes domain events for returns and inventory
// adjustments once their transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventReturnRequested    = "return.requested"
	EventReturnAuthorized   = "return.authorized"
	EventReturnCancelled    = "return.cancelled"
	EventAdjustmentCreated  = "adjustment.created"
	EventAdjustmentApplied  = "adjustment.applied"
	EventAdjustmentRejected = "adjustment.rejected"
)

// Version of the envelope and payload layout.
const Version = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in a fresh envelope. correlationID is also the
// partition key, so all events of one entity stay ordered.
func NewEnvelope(producer, eventType, correlationID, traceID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  Version,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// ReturnKey and AdjustmentKey build correlation ids.
func ReturnKey(id uint) string     { return "return-" + strconv.FormatUint(uint64(id), 10) }
func AdjustmentKey(id uint) string { return "adjustment-" + strconv.FormatUint(uint64(id), 10) }

// ---- Payloads ----

type ItemQty struct {
	ProductID uint `json:"product_id"`
	Qty       int  `json:"qty"`
}

type ReturnPayload struct {
	ReturnID     uint            `json:"return_id"`
	SaleID       uint            `json:"sale_id"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason"`
	RefundMethod string          `json:"refund_method"`
	Total        decimal.Decimal `json:"total"`
	ActorID      uint            `json:"actor_id"`
	Returned     []ItemQty       `json:"returned"`
	Exchanged    []ItemQty       `json:"exchanged,omitempty"`
	Note         string          `json:"note,omitempty"`
}

type AdjustmentPayload struct {
	AdjustmentID uint            `json:"adjustment_id"`
	ProductID    uint            `json:"product_id"`
	Type         string          `json:"type"`
	Quantity     int             `json:"quantity"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Status       string          `json:"status"`
	ActorID      uint            `json:"actor_id"`
}

// Publisher delivers envelopes to the event bus.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NopPublisher) Close() error                            { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Envelope
}

func (p *MemoryPublisher) Publish(_ context.Context, ev Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.events...)
}

// Types lists the event types published so far, in order.
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, ev := range p.events {
		types[i] = ev.EventType
	}
	return types
}
