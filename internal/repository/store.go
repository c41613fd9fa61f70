package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrCouponExhausted      = errors.New("coupon usage limit reached")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store hands out repositories bound to either the pool or an open
// transaction. WithTx called on a transactional Store opens a savepoint.
type Store interface {
	Users() UserRepository
	Products() ProductRepository
	Carts() CartRepository
	Coupons() CouponRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	WithTx(ctx context.Context, fn func(Store) error) error
}

type pgStore struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) q() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func (s *pgStore) Users() UserRepository       { return NewUserRepository(s.q()) }
func (s *pgStore) Products() ProductRepository { return NewProductRepository(s.q()) }
func (s *pgStore) Carts() CartRepository       { return NewCartRepository(s.q()) }
func (s *pgStore) Coupons() CouponRepository   { return NewCouponRepository(s.q()) }
func (s *pgStore) Orders() OrderRepository     { return NewOrderRepository(s.q()) }
func (s *pgStore) Payments() PaymentRepository { return NewPaymentRepository(s.q()) }

func (s *pgStore) WithTx(ctx context.Context, fn func(Store) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if s.tx != nil {
		tx, err = s.tx.Begin(ctx)
	} else {
		tx, err = s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	}
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgStore{pool: s.pool, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(dsn))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func toMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}
