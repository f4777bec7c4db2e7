//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

func setupPostgres(t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "rewards",
			"POSTGRES_PASSWORD": "rewards",
			"POSTGRES_DB":       "rewards",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(t.Context(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := c.Host(t.Context())
	require.NoError(t, err)
	port, err := c.MappedPort(t.Context(), "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://rewards:rewards@%s:%s/rewards?sslmode=disable", host, port.Port())
}

func TestStore_Integration(t *testing.T) {
	dsn := setupPostgres(t)

	s, pool, err := Open(t.Context(), dsn)
	require.NoError(t, err)
	defer pool.Close()

	// Initialize is idempotent.
	require.NoError(t, s.Initialize(t.Context()))

	_, ok, err := s.Read(t.Context(), "rewards")
	require.NoError(t, err)
	assert.False(t, ok)

	for h := uint64(1); h <= 3; h++ {
		require.NoError(t, s.Write(t.Context(), checkpointer.Entry{
			Key: "rewards", SchemaVersion: 3, Height: h, Hash: fmt.Sprintf("h%d", h), Bundle: []byte(`{"k":1}`), Timestamp: int64(h),
		}))
	}
	e, ok, err := s.Read(t.Context(), "rewards")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.Height)
	assert.Equal(t, "h3", e.Hash)
	assert.Equal(t, []byte(`{"k":1}`), e.Bundle)

	require.NoError(t, s.Delete(t.Context(), "rewards"))
	_, ok, err = s.Read(t.Context(), "rewards")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddFilter(t.Context(), KindAccount, "0xa"))
	require.NoError(t, s.AddFilter(t.Context(), KindAccount, "0xa"))
	require.NoError(t, s.AddFilter(t.Context(), KindGateway, "gw.1"))
	accounts, gateways, err := s.Filters(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa"}, accounts)
	assert.Equal(t, []string{"gw.1"}, gateways)
}
