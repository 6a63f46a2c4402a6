package pgstore

import (
	"context"
	"errors"
	"fmt"

	"ticket-resale/internal/status"
	"ticket-resale/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const listingColumns = `id, ticket_id, price::text, status, created_by, updated_by, revision, created_at, updated_at`

type listings struct{ q querier }

func scanListing(row pgx.Row) (*models.Listing, error) {
	var (
		l     models.Listing
		price string
		state string
	)
	if err := row.Scan(&l.ID, &l.TicketRef, &price, &state, &l.CreatedBy, &l.UpdatedBy, &l.Revision, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	l.Price = p
	l.Status = models.ListingStatus(state)
	return &l, nil
}

func (l listings) Insert(ctx context.Context, listing *models.Listing) error {
	if listing.Status == "" {
		listing.Status = models.ListingOpen
	}

	row := l.q.QueryRow(ctx, `
		INSERT INTO listings(id, ticket_id, price, status, created_by, updated_by, revision)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, 1)
		RETURNING `+listingColumns,
		uuid.NewString(), listing.TicketRef, listing.Price.String(), string(listing.Status), listing.CreatedBy, listing.UpdatedBy)

	inserted, err := scanListing(row)
	if err != nil {
		if isUniqueViolation(err) {
			return status.Conflict(status.SubjectListing, "Listing already exists for this ticket")
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	*listing = *inserted
	return nil
}

func (l listings) findOne(ctx context.Context, where string, arg any, expand []models.Relation) (*models.Listing, error) {
	found, err := scanListing(l.q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE `+where+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, status.NotFound(status.SubjectListing, "Listing not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if err := l.expand(ctx, found, expand); err != nil {
		return nil, err
	}
	return found, nil
}

func (l listings) FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Listing, error) {
	return l.findOne(ctx, "id", id, expand)
}

func (l listings) FindByTicketRef(ctx context.Context, ticketRef string, expand []models.Relation) (*models.Listing, error) {
	return l.findOne(ctx, "ticket_id", ticketRef, expand)
}

func (l listings) expand(ctx context.Context, listing *models.Listing, rels []models.Relation) error {
	if len(rels) == 0 {
		return nil
	}
	e := &models.ListingExpand{}
	var err error
	if models.HasRelation(rels, models.RelTicket) {
		if e.Ticket, err = findTicket(ctx, l.q, listing.TicketRef); err != nil {
			return err
		}
	}
	if models.HasRelation(rels, models.RelCreatedBy) {
		if e.CreatedBy, err = findUser(ctx, l.q, listing.CreatedBy); err != nil {
			return err
		}
	}
	if models.HasRelation(rels, models.RelUpdatedBy) {
		if e.UpdatedBy, err = findUser(ctx, l.q, listing.UpdatedBy); err != nil {
			return err
		}
	}
	listing.Expand = e
	return nil
}

func (l listings) UpdatePrice(ctx context.Context, id, creatorID string, price decimal.Decimal) (*models.Listing, bool, error) {
	updated, err := scanListing(l.q.QueryRow(ctx, `
		UPDATE listings
		SET price = $3::numeric, updated_by = $2, revision = revision + 1, updated_at = now()
		WHERE id = $1 AND created_by = $2 AND status = 'OPEN'
		RETURNING `+listingColumns,
		id, creatorID, price.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("update listing price: %w", err)
	}
	return updated, true, nil
}

func (l listings) CloseIfOpen(ctx context.Context, id string, revision int, modifierID string) (bool, error) {
	ct, err := l.q.Exec(ctx, `
		UPDATE listings
		SET status = 'CLOSED', updated_by = $3, revision = revision + 1, updated_at = now()
		WHERE id = $1 AND status = 'OPEN' AND revision = $2`,
		id, revision, modifierID)
	if err != nil {
		return false, fmt.Errorf("close listing: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (l listings) DeleteOpen(ctx context.Context, id, creatorID string) (bool, error) {
	ct, err := l.q.Exec(ctx, `
		DELETE FROM listings
		WHERE id = $1 AND status = 'OPEN' AND ($2 = '' OR created_by = $2)`,
		id, creatorID)
	if err != nil {
		return false, fmt.Errorf("delete listing: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
