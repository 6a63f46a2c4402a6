package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingOpen   ListingStatus = "OPEN"
	ListingClosed ListingStatus = "CLOSED"
)

type Listing struct {
	ID        string          `json:"id"`
	TicketRef string          `json:"ticket_id"`
	Price     decimal.Decimal `json:"price"`
	Status    ListingStatus   `json:"status"` // OPEN, CLOSED
	CreatedBy string          `json:"created_by"`
	UpdatedBy string          `json:"updated_by"`
	Revision  int             `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Expand *ListingExpand `json:"expand,omitempty"`
}

// ListingExpand carries the related records loaded on request.
type ListingExpand struct {
	Ticket    *Ticket `json:"ticket,omitempty"`
	CreatedBy *User   `json:"created_by,omitempty"`
	UpdatedBy *User   `json:"updated_by,omitempty"`
}

func (l *Listing) IsOpen() bool {
	return l.Status == ListingOpen
}

// Clone returns a copy that shares no expansion pointers with l.
func (l *Listing) Clone() *Listing {
	c := *l
	c.Expand = nil
	return &c
}
