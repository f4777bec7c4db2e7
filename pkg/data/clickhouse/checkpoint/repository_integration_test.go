//go:build integration
// +build integration

package checkpoint

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/clickhouse"
)

func TestRepository_Integration(t *testing.T) {
	cfg, err := clickhouse.Load()
	require.NoError(t, err)
	cfg.DialTimeout = 5

	client, err := clickhouse.New(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer client.Close()

	table := fmt.Sprintf("reward_checkpoints_it_%d", time.Now().UnixNano())
	repo, err := NewRepository(t.Context(), client, cfg.Cluster, cfg.Database, table)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Conn().Exec(t.Context(), fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", cfg.Database, table))
	})

	_, ok, err := repo.Read(t.Context(), "rewards")
	require.NoError(t, err)
	assert.False(t, ok)

	for h := uint64(1); h <= 3; h++ {
		require.NoError(t, repo.Write(t.Context(), checkpointer.Entry{
			Key: "rewards", SchemaVersion: 3, Height: h, Hash: fmt.Sprintf("h%d", h), Bundle: []byte(`{}`), Timestamp: time.Now().Unix(),
		}))
	}

	e, ok, err := repo.Read(t.Context(), "rewards")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.Height)
	assert.Equal(t, []byte(`{}`), e.Bundle)

	require.NoError(t, repo.Delete(t.Context(), "rewards"))
	_, ok, err = repo.Read(t.Context(), "rewards")
	require.NoError(t, err)
	assert.False(t, ok)
}
