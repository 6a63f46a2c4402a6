package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRelation = errors.New("unknown relation")
	ErrUnknownSort     = errors.New("unknown sort key")
)

// Relation names a related record that can be loaded together with a
// listing or a transaction.
type Relation string

const (
	RelTicket    Relation = "ticket"
	RelCreatedBy Relation = "createdBy"
	RelUpdatedBy Relation = "updatedBy"
	RelSeller    Relation = "seller"
	RelBuyer     Relation = "buyer"
)

var (
	ListingRelations     = []Relation{RelTicket, RelCreatedBy, RelUpdatedBy}
	TransactionRelations = []Relation{RelTicket, RelSeller, RelBuyer}
)

// ParseRelations splits a comma separated expand value and checks every
// name against allowed. Duplicates are dropped.
func ParseRelations(raw string, allowed []Relation) ([]Relation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []Relation
	for _, part := range strings.Split(raw, ",") {
		name := Relation(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if !HasRelation(allowed, name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRelation, name)
		}
		if !HasRelation(out, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// CheckRelations reports the first relation in rels that is not allowed.
func CheckRelations(rels, allowed []Relation) error {
	for _, r := range rels {
		if !HasRelation(allowed, r) {
			return fmt.Errorf("%w: %q", ErrUnknownRelation, r)
		}
	}
	return nil
}

func HasRelation(rels []Relation, r Relation) bool {
	for _, x := range rels {
		if x == r {
			return true
		}
	}
	return false
}

type SortKey string

const (
	SortCreatedAsc    SortKey = "created"
	SortCreatedDesc   SortKey = "-created"
	SortSalePriceAsc  SortKey = "salePrice"
	SortSalePriceDesc SortKey = "-salePrice"

	DefaultSort = SortCreatedDesc
)

func ParseSort(raw string) (SortKey, error) {
	switch s := SortKey(strings.TrimSpace(raw)); s {
	case "":
		return DefaultSort, nil
	case SortCreatedAsc, SortCreatedDesc, SortSalePriceAsc, SortSalePriceDesc:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSort, raw)
	}
}

// Descending reports whether the key orders from the largest value.
func (s SortKey) Descending() bool {
	return strings.HasPrefix(string(s), "-")
}

// Field returns the sorted attribute without direction.
func (s SortKey) Field() string {
	return strings.TrimPrefix(string(s), "-")
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page is 1-indexed offset pagination.
type Page struct {
	Limit int `json:"limit"`
	Page  int `json:"page"`
}

func (p Page) Offset() int {
	return p.Limit * (p.Page - 1)
}

type TransactionFilter struct {
	TicketRef string `json:"ticket_id,omitempty"`
	SellerID  string `json:"seller_id,omitempty"`
	BuyerID   string `json:"buyer_id,omitempty"`
}

type TransactionQuery struct {
	Page   Page
	Sort   SortKey
	Filter TransactionFilter
	Expand []Relation
}
