// Package postgres records sitemap runs in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/edge-sitemaps/internal/generator"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "sitemap_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore writes one row per worker per run.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("runstore.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT        NOT NULL,
	worker      TEXT        NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	dry_run     BOOLEAN     NOT NULL DEFAULT FALSE,
	modules     INTEGER     NOT NULL DEFAULT 0,
	pages       INTEGER     NOT NULL DEFAULT 0,
	sitemaps    INTEGER     NOT NULL DEFAULT 0,
	dropped     INTEGER     NOT NULL DEFAULT 0,
	units       INTEGER     NOT NULL DEFAULT 0,
	status      TEXT        NOT NULL,
	error       TEXT,
	artifacts   JSONB       NOT NULL DEFAULT '[]'::jsonb,
	PRIMARY KEY (run_id, worker)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordWorker upserts the row for rec.RunID and rec.Worker.
func (s *RunStore) RecordWorker(ctx context.Context, rec generator.RunRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if rec.RunID == "" || rec.Worker == "" {
		return fmt.Errorf("run id and worker are required")
	}
	artifacts := rec.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	artifactsJSON, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	var errText *string
	if rec.Error != "" {
		errText = &rec.Error
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	worker,
	started_at,
	finished_at,
	dry_run,
	modules,
	pages,
	sitemaps,
	dropped,
	units,
	status,
	error,
	artifacts
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (run_id, worker) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	dry_run = EXCLUDED.dry_run,
	modules = EXCLUDED.modules,
	pages = EXCLUDED.pages,
	sitemaps = EXCLUDED.sitemaps,
	dropped = EXCLUDED.dropped,
	units = EXCLUDED.units,
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	artifacts = EXCLUDED.artifacts`, s.table)

	_, err = s.pool.Exec(ctx, query,
		rec.RunID,
		rec.Worker,
		rec.StartedAt,
		rec.FinishedAt,
		rec.DryRun,
		rec.Modules,
		rec.Pages,
		rec.Sitemaps,
		rec.Dropped,
		rec.Units,
		rec.Status,
		errText,
		artifactsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run row: %w", err)
	}
	return nil
}
