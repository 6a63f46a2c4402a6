package cache

import "time"

const (
	// listing:ticket:{ticket_id} -> listing JSON
	KeyListingByTicket = "listing:ticket:%s"

	// listing:ticket:{ticket_id}:gen -> invalidation counter
	KeyListingGeneration = "listing:ticket:%s:gen"

	// idem:listing:buy:{buyer_id}:{idempotency_key} -> transaction_id or pending marker
	KeyIdemBuy = "idem:listing:buy:%s:%s"
)

var (
	TTLListing     = 5 * time.Minute
	TTLGeneration  = 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLReservation = 30 * time.Second
)
