// Package store declares the persistence ports the marketplace is built on.
//
// Implementations report absent records with status.NotFound and a
// duplicate ticket listing with status.Conflict. Every other failure is an
// infrastructure error and is returned wrapped but otherwise untouched.
package store

import (
	"context"

	"ticket-resale/models"

	"github.com/shopspring/decimal"
)

type ListingStore interface {
	// Insert stores a new listing and fills its ID, revision and timestamps.
	Insert(ctx context.Context, listing *models.Listing) error

	FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Listing, error)

	FindByTicketRef(ctx context.Context, ticketRef string, expand []models.Relation) (*models.Listing, error)

	// UpdatePrice changes the price of an OPEN listing created by creatorID.
	// ok is false when no such listing exists.
	UpdatePrice(ctx context.Context, id, creatorID string, price decimal.Decimal) (listing *models.Listing, ok bool, err error)

	// CloseIfOpen moves the listing to CLOSED only if it is still OPEN at
	// the given revision.
	CloseIfOpen(ctx context.Context, id string, revision int, modifierID string) (bool, error)

	// DeleteOpen removes an OPEN listing. An empty creatorID matches any
	// creator.
	DeleteOpen(ctx context.Context, id, creatorID string) (bool, error)
}

type TransactionStore interface {
	// Insert stores a new transaction and fills its ID and timestamps.
	Insert(ctx context.Context, txn *models.Transaction) error

	FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Transaction, error)

	List(ctx context.Context, query models.TransactionQuery) ([]models.Transaction, error)
}

// OwnershipRegistry maps tickets to their current owner.
type OwnershipRegistry interface {
	OwnerOf(ctx context.Context, ticketRef string) (string, error)

	// SetOwner is an idempotent last-write-wins assignment.
	SetOwner(ctx context.Context, ticketRef, ownerID string) error
}

// Stores groups the three stores bound to the same connection or
// transaction.
type Stores struct {
	Listings     ListingStore
	Transactions TransactionStore
	Ownership    OwnershipRegistry
}

// Transactor runs units of work against one backend. fn either commits as
// a whole or leaves no trace.
type Transactor interface {
	Stores() Stores
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
