package pbstore

import (
	"context"
	"fmt"

	"ticket-resale/internal/status"
	"ticket-resale/migrations"
	"ticket-resale/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

type transactions struct{ app core.App }

func (t transactions) Insert(ctx context.Context, txn *models.Transaction) error {
	col, err := t.app.FindCachedCollectionByNameOrId(migrations.CollectionTransactions)
	if err != nil {
		return fmt.Errorf("find transactions collection: %w", err)
	}

	rec := core.NewRecord(col)
	rec.Set("ticket", txn.TicketRef)
	rec.Set("listing", txn.ListingID)
	rec.Set("seller", txn.SellerID)
	rec.Set("buyer", txn.BuyerID)
	rec.Set("sale_price", txn.SalePrice.InexactFloat64())
	rec.Set("created_by", txn.BuyerID)
	rec.Set("updated_by", txn.BuyerID)

	if err := t.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	*txn = *transactionFromRecord(rec)
	return nil
}

func (t transactions) FindByID(ctx context.Context, id string, expand []models.Relation) (*models.Transaction, error) {
	rec, err := findRecord(ctx, t.app, migrations.CollectionTransactions, id, status.SubjectTransaction)
	if err != nil {
		return nil, err
	}
	if err := expandRecords(t.app, []*core.Record{rec}, expand); err != nil {
		return nil, err
	}
	return transactionFromRecord(rec), nil
}

var sortColumns = map[string]string{
	"created":   "created",
	"salePrice": "sale_price",
}

func (t transactions) List(ctx context.Context, q models.TransactionQuery) ([]models.Transaction, error) {
	query := t.app.RecordQuery(migrations.CollectionTransactions)

	where := dbx.HashExp{}
	if q.Filter.TicketRef != "" {
		where["ticket"] = q.Filter.TicketRef
	}
	if q.Filter.SellerID != "" {
		where["seller"] = q.Filter.SellerID
	}
	if q.Filter.BuyerID != "" {
		where["buyer"] = q.Filter.BuyerID
	}
	if len(where) > 0 {
		query.AndWhere(where)
	}

	dir := "ASC"
	if q.Sort.Descending() {
		dir = "DESC"
	}
	query.OrderBy(sortColumns[q.Sort.Field()]+" "+dir, "rowid "+dir)

	var records []*core.Record
	err := query.
		Limit(int64(q.Page.Limit)).
		Offset(int64(q.Page.Offset())).
		WithContext(ctx).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	if err := expandRecords(t.app, records, q.Expand); err != nil {
		return nil, err
	}

	out := make([]models.Transaction, 0, len(records))
	for _, rec := range records {
		out = append(out, *transactionFromRecord(rec))
	}
	return out, nil
}
