package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/aulesearch/internal/core/ports"
)

// Repository stores completed traces in a DuckDB file.
type Repository struct {
	db *sql.DB
}

// Ensure Repository implements the trace store port
var _ ports.TraceRepository = (*Repository)(nil)

// NewRepository opens (or creates) the database at path and applies the schema.
// An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb %q: %w", path, err)
	}

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS traces (
		id           VARCHAR PRIMARY KEY,
		name         VARCHAR NOT NULL,
		status       VARCHAR NOT NULL,
		model_id     VARCHAR NOT NULL DEFAULT '',
		strategy     VARCHAR NOT NULL DEFAULT '',
		root_span_id VARCHAR NOT NULL,
		start_time   TIMESTAMP NOT NULL,
		end_time     TIMESTAMP,
		duration_ms  BIGINT NOT NULL DEFAULT 0,
		span_count   INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS spans (
		id          VARCHAR PRIMARY KEY,
		trace_id    VARCHAR NOT NULL,
		parent_id   VARCHAR NOT NULL DEFAULT '',
		name        VARCHAR NOT NULL,
		kind        VARCHAR NOT NULL,
		status      VARCHAR NOT NULL,
		input       VARCHAR NOT NULL DEFAULT '',
		output      VARCHAR NOT NULL DEFAULT '',
		error       VARCHAR NOT NULL DEFAULT '',
		model       VARCHAR NOT NULL DEFAULT '',
		attributes  VARCHAR NOT NULL DEFAULT '',
		start_time  TIMESTAMP NOT NULL,
		end_time    TIMESTAMP,
		duration_ms BIGINT NOT NULL DEFAULT 0
	)`,
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
