// Package memstore is an in-process implementation of the marketplace
// stores. A unit of work holds the write lock for its whole duration and
// restores a snapshot when it fails.
package memstore

import (
	"context"
	"sort"
	"sync"

	"ticket-resale/internal/clock"
	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	listings     map[string]models.Listing
	transactions []models.Transaction
	tickets      map[string]models.Ticket
	users        map[string]models.User
}

func (st *state) clone() state {
	c := state{
		listings:     make(map[string]models.Listing, len(st.listings)),
		transactions: make([]models.Transaction, len(st.transactions)),
		tickets:      make(map[string]models.Ticket, len(st.tickets)),
		users:        make(map[string]models.User, len(st.users)),
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	copy(c.transactions, st.transactions)
	for k, v := range st.tickets {
		c.tickets[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	return c
}

type Store struct {
	mu    sync.RWMutex
	clock clock.Clock
	st    state
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func New(opts ...Option) *Store {
	s := &Store{
		clock: clock.Real(),
		st: state{
			listings: make(map[string]models.Listing),
			tickets:  make(map[string]models.Ticket),
			users:    make(map[string]models.User),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Transactor = (*Store)(nil)

// SeedTicket registers a ticket and its owner.
func (s *Store) SeedTicket(t models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.tickets[t.ID] = t
}

func (s *Store) SeedUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

func (s *Store) Stores() store.Stores {
	return s.bind(false)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, s.bind(true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) bind(inTx bool) store.Stores {
	v := &view{s: s, inTx: inTx}
	return store.Stores{
		Listings:     listings{v},
		Transactions: transactions{v},
		Ownership:    ownership{v},
	}
}

// view gives the stores access to the state, locking only outside of a
// unit of work.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !v.inTx {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	return fn(&v.s.st)
}

func (v *view) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(&v.s.st)
}

type listings struct{ v *view }

func (l listings) Insert(ctx context.Context, listing *models.Listing) error {
	return l.v.write(ctx, func(st *state) error {
		for _, existing := range st.listings {
			if existing.TicketRef == listing.TicketRef {
				return status.Conflict(status.SubjectListing, "Listing already exists for this ticket")
			}
		}

		now := l.v.s.clock.Now()
		listing.ID = uuid.NewString()
		listing.Revision = 1
		if listing.Status == "" {
			listing.Status = models.ListingOpen
		}
		listing.CreatedAt = now
		listing.UpdatedAt = now
		st.listings[listing.ID] = *listing.Clone()
		return nil
	})
}

func (l listings) FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Listing, error) {
	var out *models.Listing
	err := l.v.read(ctx, func(st *state) error {
		found, ok := st.listings[id]
		if !ok {
			return status.NotFound(status.SubjectListing, "Listing not found")
		}
		out = expandListing(st, found, expand)
		return nil
	})
	return out, err
}

func (l listings) FindByTicketRef(ctx context.Context, ticketRef string, expand []models.Relation) (*models.Listing, error) {
	var out *models.Listing
	err := l.v.read(ctx, func(st *state) error {
		for _, found := range st.listings {
			if found.TicketRef == ticketRef {
				out = expandListing(st, found, expand)
				return nil
			}
		}
		return status.NotFound(status.SubjectListing, "Listing not found")
	})
	return out, err
}

func (l listings) UpdatePrice(ctx context.Context, id, creatorID string, price decimal.Decimal) (*models.Listing, bool, error) {
	var out *models.Listing
	err := l.v.write(ctx, func(st *state) error {
		found, ok := st.listings[id]
		if !ok || found.CreatedBy != creatorID || !found.IsOpen() {
			return nil
		}
		found.Price = price
		found.UpdatedBy = creatorID
		found.Revision++
		found.UpdatedAt = l.v.s.clock.Now()
		st.listings[id] = found
		out = found.Clone()
		return nil
	})
	return out, out != nil, err
}

func (l listings) CloseIfOpen(ctx context.Context, id string, revision int, modifierID string) (bool, error) {
	closed := false
	err := l.v.write(ctx, func(st *state) error {
		found, ok := st.listings[id]
		if !ok || !found.IsOpen() || found.Revision != revision {
			return nil
		}
		found.Status = models.ListingClosed
		found.UpdatedBy = modifierID
		found.Revision++
		found.UpdatedAt = l.v.s.clock.Now()
		st.listings[id] = found
		closed = true
		return nil
	})
	return closed, err
}

func (l listings) DeleteOpen(ctx context.Context, id, creatorID string) (bool, error) {
	deleted := false
	err := l.v.write(ctx, func(st *state) error {
		found, ok := st.listings[id]
		if !ok || !found.IsOpen() {
			return nil
		}
		if creatorID != "" && found.CreatedBy != creatorID {
			return nil
		}
		delete(st.listings, id)
		deleted = true
		return nil
	})
	return deleted, err
}

type transactions struct{ v *view }

func (t transactions) Insert(ctx context.Context, txn *models.Transaction) error {
	return t.v.write(ctx, func(st *state) error {
		now := t.v.s.clock.Now()
		txn.ID = uuid.NewString()
		txn.CreatedAt = now
		txn.UpdatedAt = now
		stored := *txn
		stored.Expand = nil
		st.transactions = append(st.transactions, stored)
		return nil
	})
}

func (t transactions) FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Transaction, error) {
	var out *models.Transaction
	err := t.v.read(ctx, func(st *state) error {
		for _, txn := range st.transactions {
			if txn.ID == id {
				out = expandTransaction(st, txn, expand)
				return nil
			}
		}
		return status.NotFound(status.SubjectTransaction, "Transaction not found")
	})
	return out, err
}

func (t transactions) List(ctx context.Context, q models.TransactionQuery) ([]models.Transaction, error) {
	var out []models.Transaction
	err := t.v.read(ctx, func(st *state) error {
		matched := make([]models.Transaction, 0, len(st.transactions))
		for _, txn := range st.transactions {
			if matches(txn, q.Filter) {
				matched = append(matched, txn)
			}
		}

		// insertion order breaks ties
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i], matched[j], q.Sort)
		})

		offset := q.Page.Offset()
		if offset >= len(matched) {
			out = []models.Transaction{}
			return nil
		}
		end := offset + q.Page.Limit
		if end > len(matched) {
			end = len(matched)
		}

		out = make([]models.Transaction, 0, end-offset)
		for _, txn := range matched[offset:end] {
			out = append(out, *expandTransaction(st, txn, q.Expand))
		}
		return nil
	})
	return out, err
}

func matches(txn models.Transaction, f models.TransactionFilter) bool {
	if f.TicketRef != "" && txn.TicketRef != f.TicketRef {
		return false
	}
	if f.SellerID != "" && txn.SellerID != f.SellerID {
		return false
	}
	if f.BuyerID != "" && txn.BuyerID != f.BuyerID {
		return false
	}
	return true
}

func less(a, b models.Transaction, key models.SortKey) bool {
	var cmp int
	switch key.Field() {
	case "salePrice":
		cmp = a.SalePrice.Cmp(b.SalePrice)
	default:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	}
	if key.Descending() {
		return cmp > 0
	}
	return cmp < 0
}

type ownership struct{ v *view }

func (o ownership) OwnerOf(ctx context.Context, ticketRef string) (string, error) {
	var owner string
	err := o.v.read(ctx, func(st *state) error {
		t, ok := st.tickets[ticketRef]
		if !ok {
			return status.NotFound(status.SubjectTicket, "Ticket not found")
		}
		owner = t.OwnerID
		return nil
	})
	return owner, err
}

func (o ownership) SetOwner(ctx context.Context, ticketRef, ownerID string) error {
	return o.v.write(ctx, func(st *state) error {
		t, ok := st.tickets[ticketRef]
		if !ok {
			return status.NotFound(status.SubjectTicket, "Ticket not found")
		}
		t.OwnerID = ownerID
		st.tickets[ticketRef] = t
		return nil
	})
}

func expandListing(st *state, l models.Listing, rels []models.Relation) *models.Listing {
	out := l.Clone()
	if len(rels) == 0 {
		return out
	}
	out.Expand = &models.ListingExpand{}
	if models.HasRelation(rels, models.RelTicket) {
		out.Expand.Ticket = lookupTicket(st, l.TicketRef)
	}
	if models.HasRelation(rels, models.RelCreatedBy) {
		out.Expand.CreatedBy = lookupUser(st, l.CreatedBy)
	}
	if models.HasRelation(rels, models.RelUpdatedBy) {
		out.Expand.UpdatedBy = lookupUser(st, l.UpdatedBy)
	}
	return out
}

func expandTransaction(st *state, txn models.Transaction, rels []models.Relation) *models.Transaction {
	out := txn
	out.Expand = nil
	if len(rels) == 0 {
		return &out
	}
	out.Expand = &models.TransactionExpand{}
	if models.HasRelation(rels, models.RelTicket) {
		out.Expand.Ticket = lookupTicket(st, txn.TicketRef)
	}
	if models.HasRelation(rels, models.RelSeller) {
		out.Expand.Seller = lookupUser(st, txn.SellerID)
	}
	if models.HasRelation(rels, models.RelBuyer) {
		out.Expand.Buyer = lookupUser(st, txn.BuyerID)
	}
	return &out
}

func lookupTicket(st *state, id string) *models.Ticket {
	t, ok := st.tickets[id]
	if !ok {
		return nil
	}
	return &t
}

func lookupUser(st *state, id string) *models.User {
	if u, ok := st.users[id]; ok {
		return &u
	}
	return &models.User{ID: id}
}
