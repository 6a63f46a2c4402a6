package services

import (
	"context"
	"strings"

	"ticket-resale/internal/events"
	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/models"

	"github.com/shopspring/decimal"
)

type CreateListingInput struct {
	TicketRef string
	Price     decimal.Decimal
}

type UpdateListingInput struct {
	Price *decimal.Decimal
}

// Prices have at most PriceScale decimal places and stay below MaxPrice.
// Within these bounds every backend, including the float-backed PocketBase
// number field, stores a price exactly.
const PriceScale = 2

var MaxPrice = decimal.New(1, 12)

func validPrice(p decimal.Decimal) error {
	switch {
	case !p.IsPositive():
		return status.InvalidInput(status.SubjectListing, "Price must be greater than zero", nil)
	case !p.Equal(p.Round(PriceScale)):
		return status.InvalidInput(status.SubjectListing, "Price must have at most 2 decimal places", nil)
	case p.GreaterThanOrEqual(MaxPrice):
		return status.InvalidInput(status.SubjectListing, "Price is too large", nil)
	}
	return nil
}

// CreateListing opens a listing for a ticket the caller owns.
func (s *MarketplaceService) CreateListing(ctx context.Context, in CreateListingInput, caller models.Identity) (_ *models.Listing, err error) {
	defer s.track("create_listing", s.clock.Now(), &err)

	if strings.TrimSpace(in.TicketRef) == "" {
		return nil, status.InvalidInput(status.SubjectTicket, "Ticket id is required", nil)
	}
	if err := validPrice(in.Price); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	listing := &models.Listing{
		TicketRef: in.TicketRef,
		Price:     in.Price,
		Status:    models.ListingOpen,
		CreatedBy: caller.ID,
		UpdatedBy: caller.ID,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		owner, err := st.Ownership.OwnerOf(ctx, in.TicketRef)
		if err != nil {
			return err
		}
		if owner != caller.ID {
			return status.NotFound(status.SubjectTicket, "Ticket not found")
		}
		return st.Listings.Insert(ctx, listing)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, listing.TicketRef, events.Event{
		Type:    events.TypeListingCreated,
		ActorID: caller.ID,
		Listing: listing,
	})
	return listing, nil
}

// GetListing returns the listing of a ticket. Unexpanded reads go through
// the cache when one is configured.
func (s *MarketplaceService) GetListing(ctx context.Context, ticketRef string, expand []models.Relation) (_ *models.Listing, err error) {
	defer s.track("get_listing", s.clock.Now(), &err)

	if err := models.CheckRelations(expand, models.ListingRelations); err != nil {
		return nil, status.InvalidInput(status.SubjectQuery, "Unknown relation", err)
	}

	useCache := s.cache != nil && len(expand) == 0
	var generation int64
	if useCache {
		cached, gen, err := s.cache.Get(ctx, ticketRef)
		switch {
		case err != nil:
			s.logger.Warn("Failed to read listing cache", "error", err, "ticket_id", ticketRef)
			s.observer.SideEffectFailed("cache_get")
			useCache = false
		case cached != nil:
			return cached, nil
		default:
			generation = gen
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	listing, err := s.tx.Stores().Listings.FindByTicketRef(ctx, ticketRef, expand)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := s.cache.Set(ctx, listing, generation); err != nil {
			s.logger.Warn("Failed to cache listing", "error", err, "ticket_id", ticketRef)
			s.observer.SideEffectFailed("cache_set")
		}
	}
	return listing, nil
}

func (s *MarketplaceService) GetListingByID(ctx context.Context, id string, expand []models.Relation) (_ *models.Listing, err error) {
	defer s.track("get_listing", s.clock.Now(), &err)

	if err := models.CheckRelations(expand, models.ListingRelations); err != nil {
		return nil, status.InvalidInput(status.SubjectQuery, "Unknown relation", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.tx.Stores().Listings.FindByID(ctx, id, expand)
}

// UpdateListing changes the price of an OPEN listing. Only its creator may
// do so; anyone else is told the listing does not exist.
func (s *MarketplaceService) UpdateListing(ctx context.Context, id string, in UpdateListingInput, caller models.Identity) (_ *models.Listing, err error) {
	defer s.track("update_listing", s.clock.Now(), &err)

	if in.Price == nil {
		return nil, status.InvalidInput(status.SubjectListing, "Price is required", nil)
	}
	if err := validPrice(*in.Price); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated *models.Listing
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		l, ok, err := st.Listings.UpdatePrice(ctx, id, caller.ID, *in.Price)
		if err != nil {
			return err
		}
		if ok {
			updated = l
			return nil
		}

		current, err := st.Listings.FindByID(ctx, id, nil)
		if err != nil {
			return err
		}
		if current.CreatedBy != caller.ID {
			return status.NotFound(status.SubjectListing, "Listing not found")
		}
		if !current.IsOpen() {
			return status.Conflict(status.SubjectListing, "Listing is closed")
		}
		return status.Conflict(status.SubjectListing, "Listing was modified concurrently")
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated.TicketRef, events.Event{
		Type:    events.TypeListingUpdated,
		ActorID: caller.ID,
		Listing: updated,
	})
	return updated, nil
}

// DeleteListing removes an OPEN listing. The creator may delete it, and so
// may an admin.
func (s *MarketplaceService) DeleteListing(ctx context.Context, id string, caller models.Identity) (_ *models.Listing, err error) {
	defer s.track("delete_listing", s.clock.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var deleted *models.Listing
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		current, err := st.Listings.FindByID(ctx, id, nil)
		if err != nil {
			return err
		}
		if current.CreatedBy != caller.ID && !caller.IsAdmin() {
			return status.NotFound(status.SubjectListing, "Listing not found")
		}
		if !current.IsOpen() {
			return status.Conflict(status.SubjectListing, "Listing is closed")
		}

		creator := caller.ID
		if caller.IsAdmin() {
			creator = ""
		}
		ok, err := st.Listings.DeleteOpen(ctx, id, creator)
		if err != nil {
			return err
		}
		if !ok {
			return status.Conflict(status.SubjectListing, "Listing was modified concurrently")
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, deleted.TicketRef, events.Event{
		Type:    events.TypeListingDeleted,
		ActorID: caller.ID,
		Listing: deleted,
	})
	return deleted, nil
}
