package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-resale/internal/clock"
	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s := New(WithClock(fake))
	s.SeedUser(models.User{ID: "seller", Username: "alice", Role: models.RoleUser})
	s.SeedTicket(models.Ticket{ID: "ticket-1", OwnerID: "seller", EventID: "event-1", SeatNumber: "A1"})
	return s, fake
}

func TestListings_InsertAndFind(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	listings := s.Stores().Listings

	l := &models.Listing{TicketRef: "ticket-1", Price: decimal.NewFromInt(300), CreatedBy: "seller", UpdatedBy: "seller"}
	require.NoError(t, listings.Insert(ctx, l))
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, 1, l.Revision)
	assert.Equal(t, models.ListingOpen, l.Status)

	byRef, err := listings.FindByTicketRef(ctx, "ticket-1", []models.Relation{models.RelTicket, models.RelCreatedBy})
	require.NoError(t, err)
	assert.Equal(t, l.ID, byRef.ID)
	require.NotNil(t, byRef.Expand)
	assert.Equal(t, "A1", byRef.Expand.Ticket.SeatNumber)
	assert.Equal(t, "alice", byRef.Expand.CreatedBy.Username)
	assert.Nil(t, byRef.Expand.UpdatedBy)

	byID, err := listings.FindByID(ctx, l.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, byID.Expand)

	_, err = listings.FindByID(ctx, "missing", nil)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestListings_InsertDuplicateTicket(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	listings := s.Stores().Listings

	require.NoError(t, listings.Insert(ctx, &models.Listing{TicketRef: "ticket-1", Price: decimal.NewFromInt(1), CreatedBy: "seller"}))
	err := listings.Insert(ctx, &models.Listing{TicketRef: "ticket-1", Price: decimal.NewFromInt(2), CreatedBy: "seller"})
	assert.ErrorIs(t, err, status.ErrConflict)
}

func TestListings_CloseIfOpenChecksRevision(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	listings := s.Stores().Listings

	l := &models.Listing{TicketRef: "ticket-1", Price: decimal.NewFromInt(10), CreatedBy: "seller"}
	require.NoError(t, listings.Insert(ctx, l))

	updated, ok, err := listings.UpdatePrice(ctx, l.ID, "seller", decimal.NewFromInt(12))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, updated.Revision)

	closed, err := listings.CloseIfOpen(ctx, l.ID, 1, "buyer")
	require.NoError(t, err)
	assert.False(t, closed, "stale revision must not close")

	closed, err = listings.CloseIfOpen(ctx, l.ID, 2, "buyer")
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = listings.CloseIfOpen(ctx, l.ID, 3, "buyer")
	require.NoError(t, err)
	assert.False(t, closed, "CLOSED is terminal")

	_, ok, err = listings.UpdatePrice(ctx, l.ID, "seller", decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListings_DeleteOpen(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	listings := s.Stores().Listings

	l := &models.Listing{TicketRef: "ticket-1", Price: decimal.NewFromInt(10), CreatedBy: "seller"}
	require.NoError(t, listings.Insert(ctx, l))

	deleted, err := listings.DeleteOpen(ctx, l.ID, "someone-else")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = listings.DeleteOpen(ctx, l.ID, "")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = listings.FindByID(ctx, l.ID, nil)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Stores) error {
		require.NoError(t, tx.Listings.Insert(ctx, &models.Listing{TicketRef: "ticket-1", Price: decimal.NewFromInt(5), CreatedBy: "seller"}))
		require.NoError(t, tx.Ownership.SetOwner(ctx, "ticket-1", "buyer"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Stores().Listings.FindByTicketRef(ctx, "ticket-1", nil)
	assert.ErrorIs(t, err, status.ErrNotFound)

	owner, err := s.Stores().Ownership.OwnerOf(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "seller", owner)
}

func TestWithinTx_CanceledContext(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(context.Context, store.Stores) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestOwnership(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	own := s.Stores().Ownership

	require.NoError(t, own.SetOwner(ctx, "ticket-1", "buyer"))
	require.NoError(t, own.SetOwner(ctx, "ticket-1", "buyer"))
	owner, err := own.OwnerOf(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer", owner)

	_, err = own.OwnerOf(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.ErrorIs(t, own.SetOwner(ctx, "missing", "buyer"), status.ErrNotFound)
}

func TestTransactions_ListPagesSortsAndFilters(t *testing.T) {
	s, fake := newStore(t)
	ctx := context.Background()
	txns := s.Stores().Transactions

	for i := 1; i <= 15; i++ {
		buyer := "buyer-a"
		if i%2 == 0 {
			buyer = "buyer-b"
		}
		require.NoError(t, txns.Insert(ctx, &models.Transaction{
			TicketRef: "ticket-1",
			SellerID:  "seller",
			BuyerID:   buyer,
			SalePrice: decimal.NewFromInt(int64(i)),
		}))
		fake.Advance(time.Minute)
	}

	first, err := txns.List(ctx, models.TransactionQuery{Page: models.Page{Limit: 10, Page: 1}, Sort: models.SortCreatedAsc})
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.True(t, first[0].SalePrice.Equal(decimal.NewFromInt(1)))

	second, err := txns.List(ctx, models.TransactionQuery{Page: models.Page{Limit: 10, Page: 2}, Sort: models.SortCreatedAsc})
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.True(t, second[0].SalePrice.Equal(decimal.NewFromInt(11)))

	beyond, err := txns.List(ctx, models.TransactionQuery{Page: models.Page{Limit: 10, Page: 3}, Sort: models.SortCreatedAsc})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	byPrice, err := txns.List(ctx, models.TransactionQuery{Page: models.Page{Limit: 3, Page: 1}, Sort: models.SortSalePriceDesc})
	require.NoError(t, err)
	require.Len(t, byPrice, 3)
	assert.True(t, byPrice[0].SalePrice.Equal(decimal.NewFromInt(15)))

	filtered, err := txns.List(ctx, models.TransactionQuery{
		Page:   models.Page{Limit: 100, Page: 1},
		Sort:   models.SortCreatedDesc,
		Filter: models.TransactionFilter{BuyerID: "buyer-b"},
		Expand: []models.Relation{models.RelSeller},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 7)
	for _, txn := range filtered {
		assert.Equal(t, "buyer-b", txn.BuyerID)
		require.NotNil(t, txn.Expand)
		assert.Equal(t, "alice", txn.Expand.Seller.Username)
	}
	assert.True(t, filtered[0].SalePrice.Equal(decimal.NewFromInt(14)))
}
