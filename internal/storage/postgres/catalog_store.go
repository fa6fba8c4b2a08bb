// Package postgres stores exported catalog entries in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
)

const defaultTable = "catalog_entries"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// CatalogStore upserts one row per catalog entry, keyed by title.
type CatalogStore struct {
	pool  pool
	table string
	now   func() time.Time
}

// NewCatalogStore connects to Postgres using cfg.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: p, table: table, now: time.Now}, nil
}

// NewCatalogStoreWithPool wraps an existing pool.
func NewCatalogStoreWithPool(p pool, table string, now func() time.Time) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogStore{pool: p, table: name, now: now}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the pool.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the entries table when it does not exist.
func (s *CatalogStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	title        TEXT PRIMARY KEY,
	run_id       UUID NOT NULL,
	description  TEXT NOT NULL,
	public       BOOLEAN NOT NULL,
	base_url     TEXT NOT NULL,
	file_count   INTEGER NOT NULL,
	contents     JSONB NOT NULL,
	exported_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveEntries upserts every entry of doc in one transaction, in title order.
func (s *CatalogStore) SaveEntries(ctx context.Context, runID string, doc catalog.Document) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	title,
	run_id,
	description,
	public,
	base_url,
	file_count,
	contents,
	exported_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (title) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	description = EXCLUDED.description,
	public = EXCLUDED.public,
	base_url = EXCLUDED.base_url,
	file_count = EXCLUDED.file_count,
	contents = EXCLUDED.contents,
	exported_at = EXCLUDED.exported_at`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin catalog upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	exportedAt := s.now().UTC()
	for _, title := range doc.Titles() {
		entry := doc[title]
		contents, mErr := json.Marshal(entry.Contents)
		if mErr != nil {
			return fmt.Errorf("marshal contents of %q: %w", title, mErr)
		}
		if _, err = tx.Exec(ctx, query,
			title,
			runID,
			entry.Description,
			entry.Public,
			entry.BaseURL,
			entry.Contents.FileCount(),
			contents,
			exportedAt,
		); err != nil {
			return fmt.Errorf("upsert %q: %w", title, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit catalog upsert: %w", err)
	}
	return nil
}
