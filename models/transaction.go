package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of a completed resale.
type Transaction struct {
	ID        string          `json:"id"`
	TicketRef string          `json:"ticket_id"`
	ListingID string          `json:"listing_id"`
	SellerID  string          `json:"seller_id"`
	BuyerID   string          `json:"buyer_id"`
	SalePrice decimal.Decimal `json:"sale_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Expand *TransactionExpand `json:"expand,omitempty"`
}

type TransactionExpand struct {
	Ticket *Ticket `json:"ticket,omitempty"`
	Seller *User   `json:"seller,omitempty"`
	Buyer  *User   `json:"buyer,omitempty"`
}
