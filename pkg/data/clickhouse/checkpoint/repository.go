// Package checkpoint stores follower checkpoints in ClickHouse.
package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/clickhouse"
)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/write-checkpoint.sql
var writeCheckpointQuery string

//go:embed queries/read-checkpoint.sql
var readCheckpointQuery string

//go:embed queries/delete-checkpoint.sql
var deleteCheckpointQuery string

// Repository keeps one logical row per checkpoint key. Every write inserts a
// new row with a higher version and reads select the highest version, so a
// write is visible in full or not at all.
type Repository struct {
	client   clickhouse.Client
	cluster  string
	database string
	table    string

	mu          sync.Mutex
	lastVersion uint64
}

var _ checkpointer.Checkpointer = (*Repository)(nil)

// NewRepository creates the repository and its table. cluster may be empty
// for single-node deployments.
func NewRepository(ctx context.Context, client clickhouse.Client, cluster, database, table string) (*Repository, error) {
	if client == nil {
		return nil, errors.New("invalid client: must not be nil")
	}
	if database == "" || table == "" {
		return nil, errors.New("invalid table: database and table must not be empty")
	}
	r := &Repository{client: client, cluster: cluster, database: database, table: table}
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) onCluster() string {
	if r.cluster == "" {
		return ""
	}
	return "ON CLUSTER " + r.cluster
}

// Initialize creates the checkpoints table if it does not exist.
func (r *Repository) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(createTableQuery, r.database, r.table, r.onCluster())
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// nextVersion returns a strictly increasing version based on wall time.
func (r *Repository) nextVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := max(uint64(time.Now().UnixNano()), r.lastVersion+1)
	r.lastVersion = v
	return v
}

func (r *Repository) Write(ctx context.Context, e checkpointer.Entry) error {
	if e.Key == "" {
		return errors.New("invalid checkpoint key: must not be empty")
	}
	query := fmt.Sprintf(writeCheckpointQuery, r.database, r.table)
	err := r.client.Conn().Exec(ctx, query,
		e.Key,
		uint32(e.SchemaVersion),
		e.Height,
		e.Hash,
		string(e.Bundle),
		e.Timestamp,
		r.nextVersion(),
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *Repository) Read(ctx context.Context, key string) (checkpointer.Entry, bool, error) {
	var rw row
	query := fmt.Sprintf(readCheckpointQuery, r.database, r.table)
	err := r.client.Conn().
		QueryRow(ctx, query, key).
		Scan(&rw.Key, &rw.SchemaVersion, &rw.Height, &rw.Hash, &rw.Bundle, &rw.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpointer.Entry{}, false, nil
		}
		return checkpointer.Entry{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return rw.entry(), true, nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(deleteCheckpointQuery, r.database, r.table, r.onCluster())
	if err := r.client.Conn().Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
