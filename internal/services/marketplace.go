package services

import (
	"context"
	"log/slog"
	"time"

	"ticket-resale/internal/cache"
	"ticket-resale/internal/clock"
	"ticket-resale/internal/events"
	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/models"
)

const (
	DefaultStoreTimeout = 5 * time.Second

	// idempotencyPoll is how often a retry checks on a concurrent attempt
	// holding the same key.
	idempotencyPoll = 25 * time.Millisecond
)

// ListingCache is a read-through cache of unexpanded listings by ticket.
// Get returns the generation it observed; Set must drop the write when an
// Invalidate happened after that generation was read.
type ListingCache interface {
	Get(ctx context.Context, ticketRef string) (listing *models.Listing, generation int64, err error)
	Set(ctx context.Context, listing *models.Listing, generation int64) error
	Invalidate(ctx context.Context, ticketRef string) error
}

// IdempotencyStore tracks purchase idempotency keys per buyer. A key is
// reserved before the purchase and completed or released after it.
type IdempotencyStore interface {
	Reserve(ctx context.Context, buyerID, key string) (cache.Reservation, error)
	Complete(ctx context.Context, buyerID, key, transactionID string) error
	Release(ctx context.Context, buyerID, key string) error
}

// Observer receives operation outcomes. monitoring.Metrics implements it.
type Observer interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	SideEffectFailed(effect string)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string, time.Duration) {}
func (noopObserver) SideEffectFailed(string)                        {}

type namedPublisher struct {
	name string
	pub  events.Publisher
}

// MarketplaceService owns the listing lifecycle. Every state change runs in
// one store transaction; cache, events and notifications follow the commit
// and never fail the operation.
type MarketplaceService struct {
	tx           store.Transactor
	cache        ListingCache
	idempotency  IdempotencyStore
	publishers   []namedPublisher
	observer     Observer
	clock        clock.Clock
	logger       *slog.Logger
	storeTimeout time.Duration
}

type Option func(*MarketplaceService)

func WithCache(c ListingCache) Option {
	return func(s *MarketplaceService) { s.cache = c }
}

func WithIdempotency(i IdempotencyStore) Option {
	return func(s *MarketplaceService) { s.idempotency = i }
}

// WithPublisher adds a post-commit event sink. name labels its failures.
func WithPublisher(name string, p events.Publisher) Option {
	return func(s *MarketplaceService) {
		s.publishers = append(s.publishers, namedPublisher{name: name, pub: p})
	}
}

func WithObserver(o Observer) Option {
	return func(s *MarketplaceService) { s.observer = o }
}

func WithClock(c clock.Clock) Option {
	return func(s *MarketplaceService) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *MarketplaceService) { s.logger = l }
}

// WithStoreTimeout bounds every store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *MarketplaceService) { s.storeTimeout = d }
}

func NewMarketplaceService(tx store.Transactor, opts ...Option) *MarketplaceService {
	s := &MarketplaceService{
		tx:           tx,
		observer:     noopObserver{},
		clock:        clock.Real(),
		logger:       slog.Default(),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("service", "marketplace")
	return s
}

func (s *MarketplaceService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// track records the outcome of an operation and logs unexpected failures.
func (s *MarketplaceService) track(operation string, start time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		kind := status.KindOf(err)
		outcome = kind.String()
		if kind == status.KindInternal {
			s.logger.Error("Marketplace operation failed", "operation", operation, "error", err)
		}
	}
	s.observer.ObserveOperation(operation, outcome, s.clock.Now().Sub(start))
}

// afterCommit runs the side effects of a committed change. It outlives the
// caller's cancellation.
func (s *MarketplaceService) afterCommit(ctx context.Context, ticketRef string, e events.Event) {
	ctx = context.WithoutCancel(ctx)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, ticketRef); err != nil {
			s.logger.Warn("Failed to invalidate listing cache", "error", err, "ticket_id", ticketRef)
			s.observer.SideEffectFailed("cache_invalidate")
		}
	}

	e.OccurredAt = s.clock.Now()
	for _, p := range s.publishers {
		if err := p.pub.Publish(ctx, e); err != nil {
			s.logger.Warn("Failed to publish event", "error", err, "publisher", p.name, "event_type", e.Type, "listing_id", e.Key())
			s.observer.SideEffectFailed("publish_" + p.name)
		}
	}
}
