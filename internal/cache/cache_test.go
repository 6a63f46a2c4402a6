package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ticket-resale/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleListing() *models.Listing {
	return &models.Listing{
		ID:        "listing-1",
		TicketRef: "ticket-1",
		Price:     decimal.RequireFromString("120.50"),
		Status:    models.ListingOpen,
		CreatedBy: "seller",
		UpdatedBy: "seller",
		Revision:  1,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestListingCache_GetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(db, time.Minute)

	mock.ExpectMGet("listing:ticket:ticket-1", "listing:ticket:ticket-1:gen").SetVal([]interface{}{nil, "4"})

	listing, gen, err := c.Get(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Nil(t, listing)
	assert.Equal(t, int64(4), gen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingCache_SetThenGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(db, time.Minute)
	listing := sampleListing()

	data, err := json.Marshal(listing)
	require.NoError(t, err)

	mock.ExpectEval(setIfGenerationScript, []string{
		"listing:ticket:ticket-1",
		"listing:ticket:ticket-1:gen",
	}, "0", string(data), int64(60000)).SetVal(int64(1))
	mock.ExpectMGet("listing:ticket:ticket-1", "listing:ticket:ticket-1:gen").SetVal([]interface{}{string(data), nil})

	require.NoError(t, c.Set(context.Background(), listing, 0))

	got, gen, err := c.Get(context.Background(), "ticket-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, gen)
	assert.Equal(t, "listing-1", got.ID)
	assert.True(t, listing.Price.Equal(got.Price))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingCache_SetDropsExpansion(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(db, time.Minute)
	listing := sampleListing()

	data, err := json.Marshal(listing)
	require.NoError(t, err)

	listing.Expand = &models.ListingExpand{Ticket: &models.Ticket{ID: "ticket-1"}}
	mock.ExpectEval(setIfGenerationScript, []string{
		"listing:ticket:ticket-1",
		"listing:ticket:ticket-1:gen",
	}, "2", string(data), int64(60000)).SetVal(int64(1))

	require.NoError(t, c.Set(context.Background(), listing, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingCache_StaleFillIsDropped(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(db, time.Minute)
	ctx := context.Background()
	listing := sampleListing()

	data, err := json.Marshal(listing)
	require.NoError(t, err)

	// A reader misses at generation 0, a purchase invalidates, then the
	// reader tries to fill with what it read before the purchase.
	mock.ExpectMGet("listing:ticket:ticket-1", "listing:ticket:ticket-1:gen").SetVal([]interface{}{nil, nil})
	mock.ExpectTxPipeline()
	mock.ExpectDel("listing:ticket:ticket-1").SetVal(0)
	mock.ExpectIncr("listing:ticket:ticket-1:gen").SetVal(1)
	mock.ExpectExpire("listing:ticket:ticket-1:gen", TTLGeneration).SetVal(true)
	mock.ExpectTxPipelineExec()
	mock.ExpectEval(setIfGenerationScript, []string{
		"listing:ticket:ticket-1",
		"listing:ticket:ticket-1:gen",
	}, "0", string(data), int64(60000)).SetVal(int64(0))
	mock.ExpectMGet("listing:ticket:ticket-1", "listing:ticket:ticket-1:gen").SetVal([]interface{}{nil, "1"})

	_, gen, err := c.Get(ctx, "ticket-1")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "ticket-1"))
	require.NoError(t, c.Set(ctx, listing, gen))

	got, gen, err := c.Get(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), gen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(db, time.Minute)

	mock.ExpectMGet("listing:ticket:ticket-1", "listing:ticket:ticket-1:gen").SetErr(errors.New("connection refused"))

	listing, _, err := c.Get(context.Background(), "ticket-1")
	assert.Error(t, err)
	assert.Nil(t, listing)
}

func TestListingCache_Invalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(db, 0)

	mock.ExpectTxPipeline()
	mock.ExpectDel("listing:ticket:ticket-1").SetVal(1)
	mock.ExpectIncr("listing:ticket:ticket-1:gen").SetVal(3)
	mock.ExpectExpire("listing:ticket:ticket-1:gen", TTLGeneration).SetVal(true)
	mock.ExpectTxPipelineExec()

	require.NoError(t, c.Invalidate(context.Background(), "ticket-1"))
	assert.Equal(t, TTLListing, c.ttl)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_Reserve(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)
	ctx := context.Background()
	keys := []string{"idem:listing:buy:buyer:key-1"}
	reserveMillis := TTLReservation.Milliseconds()

	mock.ExpectEval(reserveScript, keys, PendingMarker, reserveMillis).SetVal("")
	mock.ExpectEval(reserveScript, keys, PendingMarker, reserveMillis).SetVal(PendingMarker)
	mock.ExpectSet("idem:listing:buy:buyer:key-1", "txn-1", time.Hour).SetVal("OK")
	mock.ExpectEval(reserveScript, keys, PendingMarker, reserveMillis).SetVal("txn-1")

	first, err := s.Reserve(ctx, "buyer", "key-1")
	require.NoError(t, err)
	assert.True(t, first.Acquired)

	concurrent, err := s.Reserve(ctx, "buyer", "key-1")
	require.NoError(t, err)
	assert.True(t, concurrent.Pending())

	require.NoError(t, s.Complete(ctx, "buyer", "key-1", "txn-1"))

	retry, err := s.Reserve(ctx, "buyer", "key-1")
	require.NoError(t, err)
	assert.False(t, retry.Acquired)
	assert.Equal(t, "txn-1", retry.TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)

	mock.ExpectEval(releaseScript, []string{"idem:listing:buy:buyer:key-1"}, PendingMarker).SetVal(int64(1))

	require.NoError(t, s.Release(context.Background(), "buyer", "key-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_ReserveError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)

	mock.ExpectEval(reserveScript, []string{"idem:listing:buy:buyer:key-1"}, PendingMarker, TTLReservation.Milliseconds()).
		SetErr(errors.New("connection refused"))

	_, err := s.Reserve(context.Background(), "buyer", "key-1")
	assert.Error(t, err)
}
