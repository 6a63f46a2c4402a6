package pbstore

import (
	"ticket-resale/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

func nowDateTime() string {
	return types.NowDateTime().String()
}

func listingFromRecord(rec *core.Record) *models.Listing {
	l := &models.Listing{
		ID:        rec.Id,
		TicketRef: rec.GetString("ticket"),
		Price:     decimal.NewFromFloat(rec.GetFloat("price")),
		Status:    models.ListingStatus(rec.GetString("status")),
		CreatedBy: rec.GetString("created_by"),
		UpdatedBy: rec.GetString("updated_by"),
		Revision:  rec.GetInt("revision"),
		CreatedAt: rec.GetDateTime("created").Time(),
		UpdatedAt: rec.GetDateTime("updated").Time(),
	}

	if len(rec.Expand()) > 0 {
		l.Expand = &models.ListingExpand{
			Ticket:    ticketFromRecord(rec.ExpandedOne("ticket")),
			CreatedBy: userFromRecord(rec.ExpandedOne("created_by")),
			UpdatedBy: userFromRecord(rec.ExpandedOne("updated_by")),
		}
	}
	return l
}

func transactionFromRecord(rec *core.Record) *models.Transaction {
	t := &models.Transaction{
		ID:        rec.Id,
		TicketRef: rec.GetString("ticket"),
		ListingID: rec.GetString("listing"),
		SellerID:  rec.GetString("seller"),
		BuyerID:   rec.GetString("buyer"),
		SalePrice: decimal.NewFromFloat(rec.GetFloat("sale_price")),
		CreatedAt: rec.GetDateTime("created").Time(),
		UpdatedAt: rec.GetDateTime("updated").Time(),
	}

	if len(rec.Expand()) > 0 {
		t.Expand = &models.TransactionExpand{
			Ticket: ticketFromRecord(rec.ExpandedOne("ticket")),
			Seller: userFromRecord(rec.ExpandedOne("seller")),
			Buyer:  userFromRecord(rec.ExpandedOne("buyer")),
		}
	}
	return t
}

func ticketFromRecord(rec *core.Record) *models.Ticket {
	if rec == nil {
		return nil
	}
	return &models.Ticket{
		ID:         rec.Id,
		OwnerID:    rec.GetString("owner"),
		EventID:    rec.GetString("event"),
		SeatNumber: rec.GetString("seat_number"),
	}
}

func userFromRecord(rec *core.Record) *models.User {
	if rec == nil {
		return nil
	}
	role := models.Role(rec.GetString("role"))
	if role == "" {
		role = models.RoleUser
	}
	return &models.User{
		ID:       rec.Id,
		Username: rec.GetString("name"),
		Role:     role,
	}
}
