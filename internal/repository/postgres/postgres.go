// Package postgres implements the repository ports on PostgreSQL.
//
// Concurrency model follows the rest of the system: every multi-record
// mutation runs inside Store.Atomic, and the rows being decided on are read
// with SELECT ... FOR UPDATE so concurrent writers to the same car, driver,
// or booking serialize on the row lock instead of racing.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/megacity/cab/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository code serves pooled reads and in-transaction reads.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed repository.Store.
type Store struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	q     querier
	inTx  bool
}

// NewStore creates a store on the given pool. redisClient may be nil; car
// reads then skip the cache.
func NewStore(pool *pgxpool.Pool, redisClient *redis.Client) *Store {
	return &Store{pool: pool, redis: redisClient, q: pool}
}

// Bookings implements repository.Store.
func (s *Store) Bookings() repository.Bookings { return &bookingRepo{s} }

// Cars implements repository.Store.
func (s *Store) Cars() repository.Cars { return &carRepo{s} }

// Drivers implements repository.Store.
func (s *Store) Drivers() repository.Drivers { return &driverRepo{s} }

// Customers implements repository.Store.
func (s *Store) Customers() repository.Customers { return &customerRepo{s} }

// Atomic runs fn against a Store bound to one transaction. Row locks taken
// via GetForUpdate inside fn are held until commit or rollback.
func (s *Store) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	if s.inTx {
		// Already transactional; join the ambient transaction.
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	// Defer rollback — no-op if tx was already committed.
	defer tx.Rollback(ctx)

	txStore := &Store{pool: s.pool, redis: s.redis, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
