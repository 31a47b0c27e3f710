package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ajitpratap0/graphsink/pkg/json"
)

const schema = `CREATE TABLE IF NOT EXISTS checkpoints (
	name TEXT PRIMARY KEY,
	sequence INTEGER NOT NULL,
	state TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLite stores checkpoints in a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens or creates the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating checkpoints table: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Save(ctx context.Context, cp Checkpoint) error {
	state := string(cp.State)
	if state == "" {
		state = "null"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints (name, sequence, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			sequence = excluded.sequence,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		cp.Name, int64(cp.Sequence), state, cp.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, name string) (*Checkpoint, error) {
	var (
		seq       int64
		state     string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence, state, updated_at FROM checkpoints WHERE name = ?`, name).
		Scan(&seq, &state, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", name, err)
	}

	at, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint time: %w", err)
	}
	return &Checkpoint{
		Name:      name,
		Sequence:  uint64(seq),
		State:     json.RawMessage(state),
		UpdatedAt: at,
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
