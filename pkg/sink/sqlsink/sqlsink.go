// Package sqlsink upserts entities into a table through database/sql. It
// registers the mysql, sqlite and snowflake sink types.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

func init() {
	sink.Register(MySQL.Name, factory(MySQL))
	sink.Register(SQLite.Name, factory(SQLite))
	sink.Register(Snowflake.Name, factory(Snowflake))
}

// Sink writes each batch in one transaction with a prepared upsert.
type Sink struct {
	db      *sql.DB
	dialect Dialect
	table   string
	logger  *zap.Logger
	now     func() time.Time
}

func factory(d Dialect) sink.Factory {
	return func(ctx context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
		dsn, err := settings.Require("dsn")
		if err != nil {
			return nil, err
		}
		if d.Name == MySQL.Name {
			if dsn, err = normalizeMySQLDSN(dsn); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open(d.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", d.Name, err)
		}
		s, err := Open(ctx, db, d, settings.String("table", "entities"), settings.Bool("create_table", true), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// normalizeMySQLDSN enables time parsing which the updated_at column needs.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Open wraps an opened database. The table is created when createTable is set.
func Open(ctx context.Context, db *sql.DB, d Dialect, table string, createTable bool, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Name, err)
	}
	if createTable {
		if _, err := db.ExecContext(ctx, d.CreateTableSQL(table)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	return &Sink{db: db, dialect: d, table: table, logger: logger, now: time.Now}, nil
}

func (s *Sink) Write(ctx context.Context, b *sink.Batch) (err error) {
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.dialect.UpsertSQL(s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	ts := s.dialect.timestamp(s.now())
	for _, mb := range b.Models {
		for _, rec := range mb.Records {
			data, err := json.MarshalNoEscape(rec.Record)
			if err != nil {
				return fmt.Errorf("failed to encode %s record: %w", mb.Model, err)
			}
			if _, err := stmt.ExecContext(ctx, mb.Model, rec.Key, b.Origin, string(data), ts); err != nil {
				return fmt.Errorf("failed to upsert %s %s: %w", mb.Model, rec.Key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *Sink) Close(context.Context) error {
	return s.db.Close()
}
