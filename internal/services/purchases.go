package services

import (
	"context"
	"math"
	"time"

	"ticket-resale/internal/cache"
	"ticket-resale/internal/events"
	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/models"
)

type BuyOptions struct {
	// IdempotencyKey, when set, makes a retried purchase return the
	// transaction of the first successful attempt.
	IdempotencyKey string
}

// BuyListing sells an OPEN listing to the caller. Recording the
// transaction, closing the listing and moving ticket ownership commit
// together or not at all.
func (s *MarketplaceService) BuyListing(ctx context.Context, id string, caller models.Identity, opts BuyOptions) (_ *models.Transaction, err error) {
	defer s.track("buy_listing", s.clock.Now(), &err)

	key := opts.IdempotencyKey
	reserved := false
	if key != "" && s.idempotency != nil {
		prior, acquired, err := s.claim(ctx, id, caller, key)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return prior, nil
		}
		reserved = acquired
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		txn     *models.Transaction
		listing *models.Listing
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		l, err := st.Listings.FindByID(ctx, id, nil)
		if err != nil {
			return err
		}
		if !l.IsOpen() {
			return status.Conflict(status.SubjectListing, "Listing is already sold")
		}

		seller, err := st.Ownership.OwnerOf(ctx, l.TicketRef)
		if err != nil {
			return err
		}
		if seller == caller.ID {
			return status.Conflict(status.SubjectListing, "Cannot buy your own listing")
		}

		t := &models.Transaction{
			TicketRef: l.TicketRef,
			ListingID: l.ID,
			SellerID:  seller,
			BuyerID:   caller.ID,
			SalePrice: l.Price,
		}
		if err := st.Transactions.Insert(ctx, t); err != nil {
			return err
		}

		closed, err := st.Listings.CloseIfOpen(ctx, l.ID, l.Revision, caller.ID)
		if err != nil {
			return err
		}
		if !closed {
			return status.Conflict(status.SubjectListing, "Listing is already sold")
		}

		if err := st.Ownership.SetOwner(ctx, l.TicketRef, caller.ID); err != nil {
			return err
		}

		l.Status = models.ListingClosed
		l.UpdatedBy = caller.ID
		l.Revision++
		txn, listing = t, l
		return nil
	})
	if err != nil {
		if reserved {
			if rerr := s.idempotency.Release(context.WithoutCancel(ctx), caller.ID, key); rerr != nil {
				s.logger.Warn("Failed to release idempotency key", "error", rerr, "buyer_id", caller.ID)
				s.observer.SideEffectFailed("idempotency_release")
			}
		}
		return nil, err
	}

	if reserved {
		if err := s.idempotency.Complete(context.WithoutCancel(ctx), caller.ID, key, txn.ID); err != nil {
			s.logger.Warn("Failed to complete idempotency key", "error", err, "transaction_id", txn.ID)
			s.observer.SideEffectFailed("idempotency_complete")
		}
	}

	s.afterCommit(ctx, txn.TicketRef, events.Event{
		Type:        events.TypeListingSold,
		ActorID:     caller.ID,
		Listing:     listing,
		Transaction: txn,
	})

	s.logger.Info("Listing sold", "listing_id", txn.ListingID, "transaction_id", txn.ID, "seller_id", txn.SellerID, "buyer_id", txn.BuyerID)
	return txn, nil
}

// claim reserves key for this purchase. When an earlier attempt with the
// same key completed for this listing, its transaction is returned instead.
// While a concurrent attempt holds the key, claim waits for its outcome for
// up to the store timeout. Redis failures leave the purchase unprotected; the
// listing still cannot be sold twice.
func (s *MarketplaceService) claim(ctx context.Context, listingID string, caller models.Identity, key string) (*models.Transaction, bool, error) {
	wait := s.storeTimeout
	if wait <= 0 {
		wait = cache.TTLReservation
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(idempotencyPoll)
	defer ticker.Stop()

	for {
		r, err := s.idempotency.Reserve(ctx, caller.ID, key)
		if err != nil {
			s.logger.Warn("Failed to reserve idempotency key", "error", err, "buyer_id", caller.ID)
			s.observer.SideEffectFailed("idempotency_reserve")
			return nil, false, nil
		}
		if r.Acquired {
			return nil, true, nil
		}
		if !r.Pending() {
			return s.replay(ctx, listingID, caller, r.TransactionID), false, nil
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			return nil, false, status.Conflict(status.SubjectListing, "A purchase with this idempotency key is still in progress")
		case <-ticker.C:
		}
	}
}

// replay loads the transaction an earlier attempt produced. A key reused for
// another listing or buyer yields nil and the purchase runs normally.
func (s *MarketplaceService) replay(ctx context.Context, listingID string, caller models.Identity, txnID string) *models.Transaction {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	txn, err := s.tx.Stores().Transactions.FindByID(ctx, txnID, nil)
	if err != nil {
		s.logger.Warn("Remembered transaction is unavailable", "error", err, "transaction_id", txnID)
		return nil
	}
	if txn.ListingID != listingID || txn.BuyerID != caller.ID {
		return nil
	}
	return txn
}

// ListTransactions returns one page of transactions. Zero limit and page
// take their defaults.
func (s *MarketplaceService) ListTransactions(ctx context.Context, q models.TransactionQuery) (_ []models.Transaction, err error) {
	defer s.track("list_transactions", s.clock.Now(), &err)

	q, err = normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.tx.Stores().Transactions.List(ctx, q)
}

func normalizeQuery(q models.TransactionQuery) (models.TransactionQuery, error) {
	if q.Page.Limit == 0 {
		q.Page.Limit = models.DefaultPageLimit
	}
	if q.Page.Page == 0 {
		q.Page.Page = 1
	}
	if q.Page.Limit < 1 || q.Page.Limit > models.MaxPageLimit {
		return q, status.InvalidInput(status.SubjectQuery, "Limit must be between 1 and 100", nil)
	}
	if q.Page.Page < 1 {
		return q, status.InvalidInput(status.SubjectQuery, "Page must be at least 1", nil)
	}
	if q.Page.Page-1 > math.MaxInt/q.Page.Limit {
		return q, status.InvalidInput(status.SubjectQuery, "Page is out of range", nil)
	}

	sort, err := models.ParseSort(string(q.Sort))
	if err != nil {
		return q, status.InvalidInput(status.SubjectQuery, "Unknown sort key", err)
	}
	q.Sort = sort

	if err := models.CheckRelations(q.Expand, models.TransactionRelations); err != nil {
		return q, status.InvalidInput(status.SubjectQuery, "Unknown relation", err)
	}
	return q, nil
}

func (s *MarketplaceService) GetTransaction(ctx context.Context, id string, expand []models.Relation) (_ *models.Transaction, err error) {
	defer s.track("get_transaction", s.clock.Now(), &err)

	if err := models.CheckRelations(expand, models.TransactionRelations); err != nil {
		return nil, status.InvalidInput(status.SubjectQuery, "Unknown relation", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.tx.Stores().Transactions.FindByID(ctx, id, expand)
}
