package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoreProvider exposes the repositories bound to one connection or transaction.
type StoreProvider interface {
	Tickets() TicketRepository
	StatusHistory() StatusHistoryRepository
	Users() UserRepository
}

// Store is a StoreProvider that can also run a function inside a transaction.
// Every repository handed to fn is bound to that transaction; fn returning an
// error rolls back all of its writes.
type Store interface {
	StoreProvider
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
	Ping(ctx context.Context) error
}

type stores struct {
	tickets TicketRepository
	history StatusHistoryRepository
	users   UserRepository
}

func newStores(db DBTX) *stores {
	return &stores{
		tickets: NewTicketRepository(db),
		history: NewStatusHistoryRepository(db),
		users:   NewUserRepository(db),
	}
}

func (s *stores) Tickets() TicketRepository { return s.tickets }

func (s *stores) StatusHistory() StatusHistoryRepository { return s.history }

func (s *stores) Users() UserRepository { return s.users }

type postgresStore struct {
	*stores
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{stores: newStores(pool), pool: pool}
}

func (s *postgresStore) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// no-op once committed
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(newStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const uniqueViolation = "23505"

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
