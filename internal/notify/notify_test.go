package notify

import (
	"context"
	"errors"
	"testing"

	"ticket-resale/internal/events"
	"ticket-resale/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) send(_ context.Context, channel string, message map[string]any) error {
	args := m.Called(channel, message["type"])
	return args.Error(0)
}

func sale() events.Event {
	return events.Event{
		Type: events.TypeListingSold,
		Transaction: &models.Transaction{
			ID:        "txn-1",
			TicketRef: "ticket-1",
			ListingID: "listing-1",
			SellerID:  "seller",
			BuyerID:   "buyer",
			SalePrice: decimal.RequireFromString("42.50"),
		},
	}
}

func TestNotifier_Sale(t *testing.T) {
	s := &MockSender{}
	s.On("send", "user-seller", MessageListingSold).Return(nil)
	s.On("send", "user-buyer", MessagePurchaseCompleted).Return(nil)
	n := &Notifier{s: s}

	require.NoError(t, n.Publish(context.Background(), sale()))
	s.AssertExpectations(t)
}

func TestNotifier_IgnoresOtherEvents(t *testing.T) {
	s := &MockSender{}
	n := &Notifier{s: s}

	err := n.Publish(context.Background(), events.Event{Type: events.TypeListingCreated, Listing: &models.Listing{ID: "listing-1"}})
	require.NoError(t, err)
	s.AssertNotCalled(t, "send", mock.Anything, mock.Anything)
}

func TestNotifier_ReportsEachFailure(t *testing.T) {
	s := &MockSender{}
	s.On("send", "user-seller", MessageListingSold).Return(errors.New("seller channel down"))
	s.On("send", "user-buyer", MessagePurchaseCompleted).Return(nil)
	n := &Notifier{s: s}

	err := n.Publish(context.Background(), sale())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seller channel down")
	s.AssertNumberOfCalls(t, "send", 2)
}

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "user-abc", UserChannel("abc"))
}
