// Package pbstore implements the marketplace stores on the PocketBase
// collections created by the migrations package.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/migrations"
	"ticket-resale/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

var _ store.Transactor = (*Store)(nil)

func (s *Store) Stores() store.Stores {
	return bind(s.app)
}

// WithinTx runs fn inside a PocketBase database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(ctx, bind(txApp))
	})
}

func bind(app core.App) store.Stores {
	return store.Stores{
		Listings:     listings{app},
		Transactions: transactions{app},
		Ownership:    ownership{app},
	}
}

func withContext(ctx context.Context) func(q *dbx.SelectQuery) error {
	return func(q *dbx.SelectQuery) error {
		q.WithContext(ctx)
		return nil
	}
}

func findRecord(ctx context.Context, app core.App, collection, id, subject string) (*core.Record, error) {
	rec, err := app.FindRecordById(collection, id, withContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound(subject, subject+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", collection, id, err)
	}
	return rec, nil
}

// isUniqueViolation reports whether err came from a unique index, either as
// a record validation error or from SQLite itself.
func isUniqueViolation(err error) bool {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			var ve validation.Error
			if errors.As(fieldErr, &ve) && ve.Code() == "validation_not_unique" {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// relation field names.
var expandFields = map[models.Relation]string{
	models.RelTicket:    "ticket",
	models.RelCreatedBy: "created_by",
	models.RelUpdatedBy: "updated_by",
	models.RelSeller:    "seller",
	models.RelBuyer:     "buyer",
}

func expandRecords(app core.App, records []*core.Record, rels []models.Relation) error {
	if len(rels) == 0 || len(records) == 0 {
		return nil
	}
	fields := make([]string, 0, len(rels))
	for _, r := range rels {
		fields = append(fields, expandFields[r])
	}
	for name, err := range app.ExpandRecords(records, fields, nil) {
		return fmt.Errorf("expand %s: %w", name, err)
	}
	return nil
}

type listings struct{ app core.App }

func (l listings) Insert(ctx context.Context, listing *models.Listing) error {
	col, err := l.app.FindCachedCollectionByNameOrId(migrations.CollectionListings)
	if err != nil {
		return fmt.Errorf("find listings collection: %w", err)
	}

	if listing.Status == "" {
		listing.Status = models.ListingOpen
	}

	rec := core.NewRecord(col)
	rec.Set("ticket", listing.TicketRef)
	rec.Set("price", listing.Price.InexactFloat64())
	rec.Set("status", string(listing.Status))
	rec.Set("created_by", listing.CreatedBy)
	rec.Set("updated_by", listing.UpdatedBy)
	rec.Set("revision", 1)

	if err := l.app.SaveWithContext(ctx, rec); err != nil {
		if isUniqueViolation(err) {
			return status.Conflict(status.SubjectListing, "Listing already exists for this ticket")
		}
		return fmt.Errorf("insert listing: %w", err)
	}

	*listing = *listingFromRecord(rec)
	return nil
}

func (l listings) FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Listing, error) {
	rec, err := findRecord(ctx, l.app, migrations.CollectionListings, id, status.SubjectListing)
	if err != nil {
		return nil, err
	}
	if err := expandRecords(l.app, []*core.Record{rec}, expand); err != nil {
		return nil, err
	}
	return listingFromRecord(rec), nil
}

func (l listings) FindByTicketRef(ctx context.Context, ticketRef string, expand []models.Relation) (*models.Listing, error) {
	rec := &core.Record{}
	err := l.app.RecordQuery(migrations.CollectionListings).
		AndWhere(dbx.HashExp{"ticket": ticketRef}).
		Limit(1).
		WithContext(ctx).
		One(rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound(status.SubjectListing, "Listing not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find listing by ticket %s: %w", ticketRef, err)
	}
	if err := expandRecords(l.app, []*core.Record{rec}, expand); err != nil {
		return nil, err
	}
	return listingFromRecord(rec), nil
}

func (l listings) UpdatePrice(ctx context.Context, id, creatorID string, price decimal.Decimal) (*models.Listing, bool, error) {
	ok, err := conditionalUpdate(ctx, l.app, dbx.Params{
		"price":      price.InexactFloat64(),
		"updated_by": creatorID,
	}, dbx.HashExp{
		"id":         id,
		"created_by": creatorID,
		"status":     string(models.ListingOpen),
	})
	if err != nil || !ok {
		return nil, false, err
	}

	updated, err := l.FindByID(ctx, id, nil)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (l listings) CloseIfOpen(ctx context.Context, id string, revision int, modifierID string) (bool, error) {
	return conditionalUpdate(ctx, l.app, dbx.Params{
		"status":     string(models.ListingClosed),
		"updated_by": modifierID,
	}, dbx.HashExp{
		"id":       id,
		"status":   string(models.ListingOpen),
		"revision": revision,
	})
}

// conditionalUpdate changes the listing matching where, bumping its
// revision, and reports whether a row matched.
func conditionalUpdate(ctx context.Context, app core.App, set dbx.Params, where dbx.HashExp) (bool, error) {
	set["revision"] = dbx.NewExp("[[revision]] + 1")
	set["updated"] = nowDateTime()

	res, err := app.DB().
		Update(migrations.CollectionListings, set, where).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("update listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update listing: %w", err)
	}
	return n == 1, nil
}

func (l listings) DeleteOpen(ctx context.Context, id, creatorID string) (bool, error) {
	where := dbx.HashExp{
		"id":     id,
		"status": string(models.ListingOpen),
	}
	if creatorID != "" {
		where["created_by"] = creatorID
	}

	res, err := l.app.DB().
		Delete(migrations.CollectionListings, where).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("delete listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete listing: %w", err)
	}
	return n == 1, nil
}

type ownership struct{ app core.App }

func (o ownership) OwnerOf(ctx context.Context, ticketRef string) (string, error) {
	rec, err := findRecord(ctx, o.app, migrations.CollectionTickets, ticketRef, status.SubjectTicket)
	if err != nil {
		return "", err
	}
	return rec.GetString("owner"), nil
}

func (o ownership) SetOwner(ctx context.Context, ticketRef, ownerID string) error {
	rec, err := findRecord(ctx, o.app, migrations.CollectionTickets, ticketRef, status.SubjectTicket)
	if err != nil {
		return err
	}
	if rec.GetString("owner") == ownerID {
		return nil
	}
	rec.Set("owner", ownerID)
	if err := o.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("set owner of ticket %s: %w", ticketRef, err)
	}
	return nil
}
