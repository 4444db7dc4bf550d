package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dtroode/gophaccount-server/database"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PingContext(ctx context.Context) error
}

// Connection owns the pgx pool and a database/sql handle over the same pool.
type Connection struct {
	*pgxpool.Pool
	db *sql.DB
}

// NewConnection opens the pool, wraps it for database/sql and applies migrations.
func NewConnection(ctx context.Context, dsn string) (*Connection, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)

	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Connection{
		Pool: pool,
		db:   db,
	}, nil
}

// DB returns the database/sql handle backed by the pool.
func (s *Connection) DB() *sql.DB {
	return s.db
}

func (s *Connection) Close() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}

func (s *Connection) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return fmt.Errorf("connection pool is nil")
	}
	return s.Pool.Ping(ctx)
}
