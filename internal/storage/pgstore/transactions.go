package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ticket-resale/internal/status"
	"ticket-resale/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, ticket_id, listing_id, seller_id, buyer_id, sale_price::text, created_at, updated_at`

var sortColumns = map[string]string{
	"created":   "created_at",
	"salePrice": "sale_price",
}

type transactions struct{ q querier }

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		t     models.Transaction
		price string
	)
	if err := row.Scan(&t.ID, &t.TicketRef, &t.ListingID, &t.SellerID, &t.BuyerID, &price, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse sale price %q: %w", price, err)
	}
	t.SalePrice = p
	return &t, nil
}

func (t transactions) Insert(ctx context.Context, txn *models.Transaction) error {
	inserted, err := scanTransaction(t.q.QueryRow(ctx, `
		INSERT INTO transactions(id, ticket_id, listing_id, seller_id, buyer_id, sale_price, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $5, $5)
		RETURNING `+transactionColumns,
		uuid.NewString(), txn.TicketRef, txn.ListingID, txn.SellerID, txn.BuyerID, txn.SalePrice.String()))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	*txn = *inserted
	return nil
}

func (t transactions) FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Transaction, error) {
	found, err := scanTransaction(t.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, status.NotFound(status.SubjectTransaction, "Transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if err := t.expand(ctx, found, expand); err != nil {
		return nil, err
	}
	return found, nil
}

func (t transactions) List(ctx context.Context, q models.TransactionQuery) ([]models.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("ticket_id", q.Filter.TicketRef)
	add("seller_id", q.Filter.SellerID)
	add("buyer_id", q.Filter.BuyerID)

	sql := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}

	dir := "ASC"
	if q.Sort.Descending() {
		dir = "DESC"
	}
	args = append(args, q.Page.Limit, q.Page.Offset())
	sql += fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`, sortColumns[q.Sort.Field()], dir, dir, len(args)-1, len(args))

	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	rows.Close()

	for i := range out {
		if err := t.expand(ctx, &out[i], q.Expand); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t transactions) expand(ctx context.Context, txn *models.Transaction, rels []models.Relation) error {
	if len(rels) == 0 {
		return nil
	}
	e := &models.TransactionExpand{}
	var err error
	if models.HasRelation(rels, models.RelTicket) {
		if e.Ticket, err = findTicket(ctx, t.q, txn.TicketRef); err != nil {
			return err
		}
	}
	if models.HasRelation(rels, models.RelSeller) {
		if e.Seller, err = findUser(ctx, t.q, txn.SellerID); err != nil {
			return err
		}
	}
	if models.HasRelation(rels, models.RelBuyer) {
		if e.Buyer, err = findUser(ctx, t.q, txn.BuyerID); err != nil {
			return err
		}
	}
	txn.Expand = e
	return nil
}
