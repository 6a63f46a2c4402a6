// Package pgstore implements the marketplace stores on PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"ticket-resale/internal/status"
	"ticket-resale/internal/store"
	"ticket-resale/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the tables that do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Transactor = (*Store)(nil)

func (s *Store) Stores() store.Stores {
	return bind(s.pool)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SeedUser and SeedTicket upsert reference rows owned by other services.
func (s *Store) SeedUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users(id, username, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, role = EXCLUDED.role`,
		u.ID, u.Username, string(u.Role))
	return err
}

func (s *Store) SeedTicket(ctx context.Context, t models.Ticket) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tickets(id, owner_id, event_id, seat_number) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, updated_at = now()`,
		t.ID, t.OwnerID, t.EventID, t.SeatNumber)
	return err
}

func bind(q querier) store.Stores {
	return store.Stores{
		Listings:     listings{q},
		Transactions: transactions{q},
		Ownership:    ownership{q},
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type ownership struct{ q querier }

func (o ownership) OwnerOf(ctx context.Context, ticketRef string) (string, error) {
	var owner string
	err := o.q.QueryRow(ctx, `SELECT owner_id FROM tickets WHERE id = $1`, ticketRef).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", status.NotFound(status.SubjectTicket, "Ticket not found")
	}
	if err != nil {
		return "", fmt.Errorf("find ticket owner: %w", err)
	}
	return owner, nil
}

func (o ownership) SetOwner(ctx context.Context, ticketRef, ownerID string) error {
	ct, err := o.q.Exec(ctx, `UPDATE tickets SET owner_id = $2, updated_at = now() WHERE id = $1`, ticketRef, ownerID)
	if err != nil {
		return fmt.Errorf("set ticket owner: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return status.NotFound(status.SubjectTicket, "Ticket not found")
	}
	return nil
}

func findTicket(ctx context.Context, q querier, id string) (*models.Ticket, error) {
	var t models.Ticket
	err := q.QueryRow(ctx, `SELECT id, owner_id, event_id, seat_number FROM tickets WHERE id = $1`, id).
		Scan(&t.ID, &t.OwnerID, &t.EventID, &t.SeatNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return &t, nil
}

func findUser(ctx context.Context, q querier, id string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := q.QueryRow(ctx, `SELECT id, username, role FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Username, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.User{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}
