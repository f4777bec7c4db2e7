package clickhouse

import (
	"errors"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/clickhouse/testutils"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"CLICKHOUSE_HOSTS", "CLICKHOUSE_DATABASE", "CLICKHOUSE_CLUSTER", "CLICKHOUSE_CHECKPOINTS_TABLE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9000"}, cfg.Hosts)
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, "reward_checkpoints", cfg.CheckpointsTable)
	assert.Equal(t, 60, cfg.MaxExecutionTime)
	assert.Equal(t, "rewards-follower", cfg.ClientName)
	assert.NotZero(t, cfg.BlockBufferSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLICKHOUSE_HOSTS", "ch1:9000,ch2:9000")
	t.Setenv("CLICKHOUSE_CLUSTER", "main")
	t.Setenv("CLICKHOUSE_CHECKPOINTS_TABLE", "cp")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch1:9000", "ch2:9000"}, cfg.Hosts)
	assert.Equal(t, "main", cfg.Cluster)
	assert.Equal(t, "cp", cfg.CheckpointsTable)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("CLICKHOUSE_DIAL_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "failed to parse clickhouse config")
}

func TestNew_Unreachable(t *testing.T) {
	cfg := Config{
		Hosts:           []string{"127.0.0.1:1"},
		Database:        "test",
		Username:        "test",
		DialTimeout:     1,
		Debug:           true,
		BlockBufferSize: 10,
	}

	client, err := New(cfg, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestClient_Conn(t *testing.T) {
	mockConn := &testutils.MockConn{}
	client := testutils.NewTestClient(mockConn).(Client)

	assert.Equal(t, mockConn, client.Conn())
}

func TestClient_PingAndClose(t *testing.T) {
	mockConn := &testutils.MockConn{}
	mockConn.On("Ping", t.Context()).Return(nil)
	mockConn.On("Close").Return(nil)

	client := testutils.NewTestClient(mockConn).(Client)

	require.NoError(t, client.Ping(t.Context()))
	require.NoError(t, client.Close())
	mockConn.AssertExpectations(t)
}

func TestClient_Ping_ExceptionError(t *testing.T) {
	exception := &clickhouse.Exception{
		Code:    516,
		Message: "Authentication failed",
	}

	mockConn := &testutils.MockConn{}
	mockConn.On("Ping", t.Context()).Return(exception)

	err := testutils.NewTestClient(mockConn).Ping(t.Context())

	var ex *clickhouse.Exception
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, int32(516), ex.Code)
	mockConn.AssertExpectations(t)
}
