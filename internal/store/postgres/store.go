// Package postgres provides a Postgres-backed record store.
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

	"github.com/hubharvest/hubharvest/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// RecordStore writes record rows into Postgres. Expected schema:
//
//	CREATE TABLE records (
//		id TEXT PRIMARY KEY,
//		metadata JSONB NOT NULL,
//		history JSONB NOT NULL,
//		fetched_at TIMESTAMPTZ NOT NULL
//	);
//
// The upsert makes each write a full supersession of the prior row, which is
// what keeps crash-interrupted runs from surfacing half-written records.
type RecordStore struct {
	pool  dbPool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &RecordStore{pool: pool, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool dbPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// LoadAll reads every persisted record. Identifiers are unique by primary
// key, so no merge step is needed for this backend.
func (s *RecordStore) LoadAll(ctx context.Context) (map[harvest.Identifier]harvest.Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("record store is not configured")
	}
	query := fmt.Sprintf(`SELECT id, metadata, history, fetched_at FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	out := make(map[harvest.Identifier]harvest.Record)
	for rows.Next() {
		var (
			id           string
			metadataJSON []byte
			historyJSON  []byte
			fetchedAt    time.Time
		)
		if err := rows.Scan(&id, &metadataJSON, &historyJSON, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec := harvest.Record{
			ID:        harvest.Identifier(id),
			FetchedAt: fetchedAt,
		}
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
		if err := json.Unmarshal(historyJSON, &rec.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", id, err)
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return out, nil
}

// Write upserts the record row, fully superseding any prior attempt.
func (s *RecordStore) Write(ctx context.Context, record harvest.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record identifier is required")
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	historyJSON, err := json.Marshal(record.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, metadata, history, fetched_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	metadata = EXCLUDED.metadata,
	history = EXCLUDED.history,
	fetched_at = EXCLUDED.fetched_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, string(record.ID), metadataJSON, historyJSON, record.FetchedAt); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}
