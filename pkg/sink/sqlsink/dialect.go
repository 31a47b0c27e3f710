package sqlsink

import (
	"strings"
	"time"
)

// Dialect holds the statements that differ between SQL databases.
type Dialect struct {
	Name   string
	Driver string
	// MaxOpenConns caps the pool, zero means unlimited
	MaxOpenConns int

	createTable func(table string) string
	upsert      func(table string) string
	quote       func(ident string) string
	timestamp   func(t time.Time) interface{}
}

// CreateTableSQL returns the DDL for the entities table.
func (d Dialect) CreateTableSQL(table string) string { return d.createTable(d.quote(table)) }

// UpsertSQL returns the statement writing one entity with five positional
// parameters: model, key, origin, record, updated_at.
func (d Dialect) UpsertSQL(table string) string { return d.upsert(d.quote(table)) }

func quoteWith(q string) func(string) string {
	return func(ident string) string {
		parts := strings.Split(ident, ".")
		for i, p := range parts {
			parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
		}
		return strings.Join(parts, ".")
	}
}

// SQLite is the modernc.org/sqlite dialect.
var SQLite = Dialect{
	Name:         "sqlite",
	Driver:       "sqlite",
	MaxOpenConns: 1,
	quote:        quoteWith(`"`),
	createTable: func(t string) string {
		return `CREATE TABLE IF NOT EXISTS ` + t + ` (
	model TEXT NOT NULL,
	key TEXT NOT NULL,
	origin TEXT,
	record TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (model, key)
)`
	},
	upsert: func(t string) string {
		return `INSERT INTO ` + t + ` (model, key, origin, record, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (model, key) DO UPDATE
SET origin = excluded.origin, record = excluded.record, updated_at = excluded.updated_at`
	},
	timestamp: func(t time.Time) interface{} { return t.UTC().Format(time.RFC3339Nano) },
}

// MySQL is the go-sql-driver/mysql dialect.
var MySQL = Dialect{
	Name:   "mysql",
	Driver: "mysql",
	quote:  quoteWith("`"),
	createTable: func(t string) string {
		return "CREATE TABLE IF NOT EXISTS " + t + " (\n" +
			"\t`model` VARCHAR(255) NOT NULL,\n" +
			"\t`key` VARCHAR(512) NOT NULL,\n" +
			"\t`origin` VARCHAR(255),\n" +
			"\t`record` JSON NOT NULL,\n" +
			"\t`updated_at` DATETIME(6) NOT NULL,\n" +
			"\tPRIMARY KEY (`model`, `key`)\n)"
	},
	upsert: func(t string) string {
		return "INSERT INTO " + t + " (`model`, `key`, `origin`, `record`, `updated_at`)\n" +
			"VALUES (?, ?, ?, ?, ?)\n" +
			"ON DUPLICATE KEY UPDATE `origin` = VALUES(`origin`), `record` = VALUES(`record`), `updated_at` = VALUES(`updated_at`)"
	},
	timestamp: func(t time.Time) interface{} { return t.UTC() },
}

// Snowflake is the gosnowflake dialect. Records are stored as VARIANT.
var Snowflake = Dialect{
	Name:   "snowflake",
	Driver: "snowflake",
	quote:  func(ident string) string { return ident },
	createTable: func(t string) string {
		return `CREATE TABLE IF NOT EXISTS ` + t + ` (
	model VARCHAR NOT NULL,
	key VARCHAR NOT NULL,
	origin VARCHAR,
	record VARIANT,
	updated_at TIMESTAMP_TZ,
	PRIMARY KEY (model, key)
)`
	},
	upsert: func(t string) string {
		return `MERGE INTO ` + t + ` AS t
USING (SELECT ? AS model, ? AS key, ? AS origin, ? AS record, ? AS updated_at) AS s
ON t.model = s.model AND t.key = s.key
WHEN MATCHED THEN UPDATE SET origin = s.origin, record = PARSE_JSON(s.record), updated_at = s.updated_at
WHEN NOT MATCHED THEN INSERT (model, key, origin, record, updated_at)
VALUES (s.model, s.key, s.origin, PARSE_JSON(s.record), s.updated_at)`
	},
	timestamp: func(t time.Time) interface{} { return t.UTC() },
}
