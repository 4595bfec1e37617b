// Package postgres persists cache records in a single Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/krisalay/cachecenter/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Gateway implements types.Gateway, types.Scanner and types.Loader over the
// cache_records table.
type Gateway struct {
	db *sqlx.DB
}

var (
	_ types.Gateway = (*Gateway)(nil)
	_ types.Scanner = (*Gateway)(nil)
	_ types.Loader  = (*Gateway)(nil)
)

type row struct {
	Key      []byte       `db:"key"`
	Value    []byte       `db:"value"`
	ExpireAt sql.NullTime `db:"expire_at"`
}

func (r row) record() types.Record {
	rec := types.Record{Key: r.Key, Value: r.Value}
	if r.ExpireAt.Valid {
		rec.ExpireAt = r.ExpireAt.Time
	}
	return rec
}

// Open connects, applies pool settings, pings and optionally migrates.
func Open(opts Options) (*Gateway, error) {
	opts = opts.withDefaults()

	dbx, err := sqlx.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	dbx.SetMaxOpenConns(opts.MaxOpenConns)
	dbx.SetMaxIdleConns(opts.MaxIdleConns)
	dbx.SetConnMaxLifetime(opts.ConnMaxLifetime)
	dbx.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()
	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	g := New(dbx)
	if opts.Migrate {
		if err := g.Migrate(); err != nil {
			_ = dbx.Close()
			return nil, err
		}
	}
	return g, nil
}

// New wraps an existing connection. The schema must already exist.
func New(db *sqlx.DB) *Gateway {
	return &Gateway{db: db}
}

// Migrate applies the embedded migrations.
func (g *Gateway) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(g.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

const upsertRecord = `
INSERT INTO cache_records (key, value, expire_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, expire_at = EXCLUDED.expire_at, updated_at = now()`

func (g *Gateway) Persist(ctx context.Context, key, value []byte, ttl time.Duration) error {
	var expireAt sql.NullTime
	if ttl > 0 {
		expireAt = sql.NullTime{Time: time.Now().Add(ttl).UTC(), Valid: true}
	}
	if _, err := g.db.ExecContext(ctx, upsertRecord, key, value, expireAt); err != nil {
		return fmt.Errorf("postgres: persist: %w", err)
	}
	return nil
}

func (g *Gateway) RemoveByKey(ctx context.Context, key []byte) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM cache_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: remove: %w", err)
	}
	return nil
}

// Load returns the live record for key.
func (g *Gateway) Load(ctx context.Context, key []byte) (types.Record, bool, error) {
	var r row
	err := g.db.GetContext(ctx, &r, `
SELECT key, value, expire_at FROM cache_records
WHERE key = $1 AND (expire_at IS NULL OR expire_at > now())`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, fmt.Errorf("postgres: load: %w", err)
	}
	return r.record(), true, nil
}

// Scan streams every record, stale ones included.
func (g *Gateway) Scan(ctx context.Context, fn func(types.Record) error) error {
	rows, err := g.db.QueryxContext(ctx, `SELECT key, value, expire_at FROM cache_records`)
	if err != nil {
		return fmt.Errorf("postgres: scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r row
		if err := rows.StructScan(&r); err != nil {
			return fmt.Errorf("postgres: scan row: %w", err)
		}
		if err := fn(r.record()); err != nil {
			return err
		}
	}
	return rows.Err()
}
