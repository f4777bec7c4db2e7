// Package checkpoint stores follower checkpoints in a local SQLite file.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

const schema = `CREATE TABLE IF NOT EXISTS checkpoints (
    key            TEXT PRIMARY KEY,
    schema_version INTEGER NOT NULL,
    height         INTEGER NOT NULL,
    hash           TEXT NOT NULL,
    bundle         BLOB NOT NULL,
    timestamp      INTEGER NOT NULL
)`

const upsert = `INSERT INTO checkpoints (key, schema_version, height, hash, bundle, timestamp)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    schema_version = excluded.schema_version,
    height         = excluded.height,
    hash           = excluded.hash,
    bundle         = excluded.bundle,
    timestamp      = excluded.timestamp`

// Store implements checkpointer.Checkpointer on SQLite. Each write is one
// upsert statement and therefore atomic.
type Store struct {
	db *sql.DB
}

var _ checkpointer.Checkpointer = (*Store)(nil)

// Open opens or creates the database at path and ensures the table exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("invalid path: must not be empty")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &Store{db: db}
	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

func (s *Store) Write(ctx context.Context, e checkpointer.Entry) error {
	if e.Key == "" {
		return errors.New("invalid checkpoint key: must not be empty")
	}
	bundle := e.Bundle
	if bundle == nil {
		bundle = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, upsert,
		e.Key, e.SchemaVersion, int64(e.Height), e.Hash, bundle, e.Timestamp); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) (checkpointer.Entry, bool, error) {
	var (
		e      checkpointer.Entry
		height int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, schema_version, height, hash, bundle, timestamp FROM checkpoints WHERE key = ?`, key).
		Scan(&e.Key, &e.SchemaVersion, &height, &e.Hash, &e.Bundle, &e.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpointer.Entry{}, false, nil
		}
		return checkpointer.Entry{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	e.Height = uint64(height)
	return e, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
