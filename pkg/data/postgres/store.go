// Package postgres stores follower checkpoints and participant filters in
// PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

//go:embed queries/schema.sql
var schemaQuery string

//go:embed queries/write-checkpoint.sql
var writeCheckpointQuery string

//go:embed queries/read-checkpoint.sql
var readCheckpointQuery string

//go:embed queries/delete-checkpoint.sql
var deleteCheckpointQuery string

//go:embed queries/read-filters.sql
var readFiltersQuery string

//go:embed queries/add-filter.sql
var addFilterQuery string

// Filter kinds stored in reward_filters.
const (
	KindAccount = "account"
	KindGateway = "gateway"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements checkpointer.Checkpointer. A checkpoint write is a single
// upsert, so a reader sees either the old row or the new one.
type Store struct {
	db DB
}

var _ checkpointer.Checkpointer = (*Store)(nil)

// Open connects to connStr, pings and creates the tables.
func Open(ctx context.Context, connStr string) (*Store, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// New wraps db and creates the tables.
func New(ctx context.Context, db DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("invalid db: must not be nil")
	}
	s := &Store{db: db}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaQuery); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
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
	_, err := s.db.Exec(ctx, writeCheckpointQuery,
		e.Key, int32(e.SchemaVersion), int64(e.Height), e.Hash, bundle, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) (checkpointer.Entry, bool, error) {
	var (
		e       checkpointer.Entry
		version int32
		height  int64
	)
	err := s.db.QueryRow(ctx, readCheckpointQuery, key).
		Scan(&e.Key, &version, &height, &e.Hash, &e.Bundle, &e.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return checkpointer.Entry{}, false, nil
		}
		return checkpointer.Entry{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	e.SchemaVersion = int(version)
	e.Height = uint64(height)
	return e, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, deleteCheckpointQuery, key); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Filters returns the accounts and gateways whose rewards are tracked.
func (s *Store) Filters(ctx context.Context) (accounts, gateways []string, err error) {
	rows, err := s.db.Query(ctx, readFiltersQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read filters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		switch kind {
		case KindAccount:
			accounts = append(accounts, value)
		case KindGateway:
			gateways = append(gateways, value)
		default:
			return nil, nil, fmt.Errorf("unknown filter kind %q", kind)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read filters: %w", err)
	}
	return accounts, gateways, nil
}

// AddFilter tracks value as an account or gateway. Adding an existing
// filter is not an error.
func (s *Store) AddFilter(ctx context.Context, kind, value string) error {
	if kind != KindAccount && kind != KindGateway {
		return fmt.Errorf("invalid filter kind %q: must be %q or %q", kind, KindAccount, KindGateway)
	}
	if value == "" {
		return errors.New("invalid filter value: must not be empty")
	}
	if _, err := s.db.Exec(ctx, addFilterQuery, kind, value); err != nil {
		return fmt.Errorf("failed to add filter: %w", err)
	}
	return nil
}
