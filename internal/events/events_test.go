package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewEnvelope(t *testing.T) {
	ev, err := NewEnvelope("pos-api", EventReturnRequested, ReturnKey(42), "req-1", ReturnPayload{
		ReturnID: 42,
		SaleID:   7,
		Status:   "pending",
		Total:    decimal.RequireFromString("1160"),
		Returned: []ItemQty{{ProductID: 3, Qty: 1}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, EventReturnRequested, ev.EventType)
	assert.Equal(t, Version, ev.EventVersion)
	assert.Equal(t, "return-42", ev.CorrelationID)
	assert.Equal(t, "req-1", ev.TraceID)
	assert.WithinDuration(t, time.Now(), ev.OccurredAt, time.Minute)

	var payload ReturnPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, uint(7), payload.SaleID)
	assert.True(t, payload.Total.Equal(decimal.NewFromInt(1160)))
	assert.Equal(t, []ItemQty{{ProductID: 3, Qty: 1}}, payload.Returned)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, timeout: time.Second}

	ev, err := NewEnvelope("pos-api", EventAdjustmentApplied, AdjustmentKey(5), "", AdjustmentPayload{AdjustmentID: 5})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("adjustment-5"), msg.Key)
	assert.True(t, w.deadline, "publish should carry a deadline")
	assert.Contains(t, msg.Headers, kafka.Header{Key: "x-event-type", Value: []byte(EventAdjustmentApplied)})

	var decoded Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	p := &KafkaPublisher{w: &fakeWriter{err: errors.New("broker down")}}

	err := p.Publish(context.Background(), Envelope{EventType: EventReturnCancelled})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "return.cancelled")
}

func TestMemoryPublisher(t *testing.T) {
	p := &MemoryPublisher{}
	require.NoError(t, p.Publish(context.Background(), Envelope{EventType: EventReturnRequested}))
	require.NoError(t, p.Publish(context.Background(), Envelope{EventType: EventReturnAuthorized}))

	assert.Equal(t, []string{EventReturnRequested, EventReturnAuthorized}, p.Types())
	assert.Len(t, p.Events(), 2)
}
