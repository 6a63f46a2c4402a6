// Package events carries committed marketplace changes to downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-resale/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeListingCreated = "listing.created"
	TypeListingUpdated = "listing.updated"
	TypeListingDeleted = "listing.deleted"
	TypeListingSold    = "listing.sold"

	Version = 1
)

// Event is a change that has already been committed. Listing is set for
// every type, Transaction only for TypeListingSold.
type Event struct {
	Type        string
	ActorID     string
	OccurredAt  time.Time
	Listing     *models.Listing
	Transaction *models.Transaction
}

// Key returns the partition key. All events of one listing share it.
func (e Event) Key() string {
	if e.Listing != nil {
		return e.Listing.ID
	}
	if e.Transaction != nil {
		return e.Transaction.ListingID
	}
	return ""
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ListingPayload struct {
	ListingID string               `json:"listing_id"`
	TicketID  string               `json:"ticket_id"`
	Price     decimal.Decimal      `json:"price"`
	Status    models.ListingStatus `json:"status"`
	Revision  int                  `json:"revision"`
	ActorID   string               `json:"actor_id"`
}

type ListingSoldPayload struct {
	ListingID     string          `json:"listing_id"`
	TicketID      string          `json:"ticket_id"`
	TransactionID string          `json:"transaction_id"`
	SellerID      string          `json:"seller_id"`
	BuyerID       string          `json:"buyer_id"`
	SalePrice     decimal.Decimal `json:"sale_price"`
}

// NewEnvelope wraps e for the wire. The correlation id is the listing id.
func NewEnvelope(producer string, e Event) (Envelope, error) {
	var payload any
	switch e.Type {
	case TypeListingSold:
		if e.Transaction == nil {
			return Envelope{}, fmt.Errorf("%s event without transaction", e.Type)
		}
		t := e.Transaction
		payload = ListingSoldPayload{
			ListingID:     t.ListingID,
			TicketID:      t.TicketRef,
			TransactionID: t.ID,
			SellerID:      t.SellerID,
			BuyerID:       t.BuyerID,
			SalePrice:     t.SalePrice,
		}
	case TypeListingCreated, TypeListingUpdated, TypeListingDeleted:
		if e.Listing == nil {
			return Envelope{}, fmt.Errorf("%s event without listing", e.Type)
		}
		l := e.Listing
		payload = ListingPayload{
			ListingID: l.ID,
			TicketID:  l.TicketRef,
			Price:     l.Price,
			Status:    l.Status,
			Revision:  l.Revision,
			ActorID:   e.ActorID,
		}
	default:
		return Envelope{}, fmt.Errorf("unknown event type %q", e.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}

	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     e.Type,
		EventVersion:  Version,
		OccurredAt:    occurred.UTC(),
		Producer:      producer,
		CorrelationID: e.Key(),
		Payload:       raw,
	}, nil
}

// UnwrapPayload decodes the payload of an envelope.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
