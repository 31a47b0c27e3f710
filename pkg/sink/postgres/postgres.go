// Package postgres upserts entities into a PostgreSQL table with pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

func init() {
	sink.Register("postgres", New)
}

// Sink writes each batch in one transaction using ON CONFLICT upserts.
type Sink struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

// New creates a postgres sink. Settings: dsn (required), table (default
// "entities"), max_conns, create_table (default true).
func New(ctx context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	dsn, err := settings.Require("dsn")
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if n := settings.Int("max_conns", 0); n > 0 {
		poolConfig.MaxConns = int32(n)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	s := &Sink{
		pool:   pool,
		table:  pgx.Identifier{settings.String("table", "entities")}.Sanitize(),
		logger: logger,
	}
	if settings.Bool("create_table", true) {
		if _, err := pool.Exec(ctx, CreateTableSQL(s.table)); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	return s, nil
}

// CreateTableSQL returns the DDL of the entities table.
func CreateTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
	model TEXT NOT NULL,
	key TEXT NOT NULL,
	origin TEXT,
	record JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (model, key)
)`
}

// UpsertSQL returns the statement writing one entity.
func UpsertSQL(table string) string {
	return `INSERT INTO ` + table + ` (model, key, origin, record, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (model, key) DO UPDATE
SET origin = EXCLUDED.origin, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`
}

func (s *Sink) Write(ctx context.Context, b *sink.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	upsert := UpsertSQL(s.table)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, mb := range b.Models {
			for _, rec := range mb.Records {
				data, err := json.MarshalNoEscape(rec.Record)
				if err != nil {
					return fmt.Errorf("failed to encode %s record: %w", mb.Model, err)
				}
				batch.Queue(upsert, mb.Model, rec.Key, b.Origin, string(data))
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert batch %s: %w", b.ID, err)
		}
		return nil
	})
}

func (s *Sink) Close(context.Context) error {
	s.pool.Close()
	return nil
}
