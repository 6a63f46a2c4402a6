// Package notify pushes sale notifications to the seller's and the buyer's
// PubNub channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"ticket-resale/internal/events"

	pubnub "github.com/pubnub/go/v7"
)

const (
	MessageListingSold       = "listing_sold"
	MessagePurchaseCompleted = "purchase_completed"
)

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

type sender interface {
	send(ctx context.Context, channel string, message map[string]any) error
}

type pubnubSender struct {
	pn *pubnub.PubNub
}

func (s pubnubSender) send(_ context.Context, channel string, message map[string]any) error {
	_, st, err := s.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	if st.StatusCode >= 300 {
		return fmt.Errorf("publish to %s: status %d", channel, st.StatusCode)
	}
	return nil
}

// NewPubNub builds a client that publishes as userID.
func NewPubNub(publishKey, subscribeKey, secretKey, userID string) *pubnub.PubNub {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	return pubnub.NewPubNub(cfg)
}

// Notifier implements events.Publisher. Only sales produce messages.
type Notifier struct {
	s sender
}

func NewNotifier(pn *pubnub.PubNub) *Notifier {
	return &Notifier{s: pubnubSender{pn: pn}}
}

func (n *Notifier) Publish(ctx context.Context, e events.Event) error {
	if e.Type != events.TypeListingSold || e.Transaction == nil {
		return nil
	}
	t := e.Transaction

	seller := map[string]any{
		"type":           MessageListingSold,
		"listing_id":     t.ListingID,
		"ticket_id":      t.TicketRef,
		"transaction_id": t.ID,
		"sale_price":     t.SalePrice.String(),
		"buyer_id":       t.BuyerID,
	}
	buyer := map[string]any{
		"type":           MessagePurchaseCompleted,
		"listing_id":     t.ListingID,
		"ticket_id":      t.TicketRef,
		"transaction_id": t.ID,
		"sale_price":     t.SalePrice.String(),
		"seller_id":      t.SellerID,
	}

	return errors.Join(
		n.s.send(ctx, UserChannel(t.SellerID), seller),
		n.s.send(ctx, UserChannel(t.BuyerID), buyer),
	)
}
