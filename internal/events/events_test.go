package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-resale/models"
	"ticket-resale/utils"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	closed   bool
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func soldEvent() Event {
	return Event{
		Type:       TypeListingSold,
		ActorID:    "buyer",
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Listing:    &models.Listing{ID: "listing-1", TicketRef: "ticket-1"},
		Transaction: &models.Transaction{
			ID:        "txn-1",
			TicketRef: "ticket-1",
			ListingID: "listing-1",
			SellerID:  "seller",
			BuyerID:   "buyer",
			SalePrice: decimal.RequireFromString("300.10"),
		},
	}
}

func TestNewEnvelope_Sold(t *testing.T) {
	env, err := NewEnvelope("marketplace", soldEvent())
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, TypeListingSold, env.EventType)
	assert.Equal(t, Version, env.EventVersion)
	assert.Equal(t, "marketplace", env.Producer)
	assert.Equal(t, "listing-1", env.CorrelationID)

	payload, err := UnwrapPayload[ListingSoldPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", payload.TransactionID)
	assert.Equal(t, "buyer", payload.BuyerID)
	assert.True(t, payload.SalePrice.Equal(decimal.RequireFromString("300.1")))
}

func TestNewEnvelope_Listing(t *testing.T) {
	env, err := NewEnvelope("marketplace", Event{
		Type:    TypeListingUpdated,
		ActorID: "seller",
		Listing: &models.Listing{ID: "listing-1", TicketRef: "ticket-1", Price: decimal.NewFromInt(50), Status: models.ListingOpen, Revision: 2},
	})
	require.NoError(t, err)

	payload, err := UnwrapPayload[ListingPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, 2, payload.Revision)
	assert.Equal(t, "seller", payload.ActorID)
	assert.Equal(t, models.ListingOpen, payload.Status)
}

func TestNewEnvelope_Invalid(t *testing.T) {
	_, err := NewEnvelope("marketplace", Event{Type: TypeListingSold})
	assert.Error(t, err)

	_, err = NewEnvelope("marketplace", Event{Type: "listing.exploded", Listing: &models.Listing{}})
	assert.Error(t, err)
}

func TestKafkaPublisher_FlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "marketplace", 8)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.NoError(t, p.Publish(context.Background(), soldEvent()))
	cancel()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.messages, 1)
	assert.True(t, w.closed)

	m := w.messages[0]
	assert.Equal(t, "listing-1", string(m.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, TypeListingSold, env.EventType)
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, TypeListingSold, string(m.Headers[0].Value))

	assert.ErrorIs(t, p.Publish(context.Background(), soldEvent()), ErrClosed)
}

func TestKafkaPublisher_BufferFull(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{}, "marketplace", 1)

	require.NoError(t, p.Publish(context.Background(), soldEvent()))
	assert.ErrorIs(t, p.Publish(context.Background(), soldEvent()), ErrBufferFull)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestGuard_StopsCallingAfterTrip(t *testing.T) {
	next := &failingPublisher{}
	cb := utils.NewCircuitBreaker("events", utils.WithMaxRequests(3), utils.WithFailureRatio(0.5))
	p := Guard(next, cb)

	for i := 0; i < 3; i++ {
		assert.Error(t, p.Publish(context.Background(), soldEvent()))
	}
	err := p.Publish(context.Background(), soldEvent())
	assert.ErrorIs(t, err, utils.ErrOpenState)
	assert.Equal(t, 3, next.calls)
}
