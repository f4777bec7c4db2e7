package checkpoint

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/clickhouse/testutils"
)

// rowMock is a minimal implementation of driver.Row that populates provided destinations.
type rowMock struct {
	r   row
	err error
}

func (m rowMock) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) != 6 {
		return errors.New("unexpected dest len")
	}
	*dest[0].(*string) = m.r.Key
	*dest[1].(*uint32) = m.r.SchemaVersion
	*dest[2].(*uint64) = m.r.Height
	*dest[3].(*string) = m.r.Hash
	*dest[4].(*string) = m.r.Bundle
	*dest[5].(*int64) = m.r.Timestamp
	return nil
}

func (m rowMock) Err() error { return m.err }

func (m rowMock) ScanStruct(dest any) error { return m.Scan(dest) }

func isCreate(q string) bool {
	return strings.Contains(q, "CREATE TABLE IF NOT EXISTS rewards.checkpoints")
}

func newRepo(t *testing.T, conn *testutils.MockConn, cluster string) *Repository {
	t.Helper()
	conn.On("Exec", mock.Anything, mock.MatchedBy(isCreate)).Return(nil).Once()
	repo, err := NewRepository(t.Context(), testutils.NewTestClient(conn), cluster, "rewards", "checkpoints")
	require.NoError(t, err)
	return repo
}

func TestNewRepository_CreatesTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cluster string
		want    string
	}{
		{name: "single node", cluster: "", want: "rewards.checkpoints \n("},
		{name: "cluster", cluster: "main", want: "rewards.checkpoints ON CLUSTER main\n("},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conn := &testutils.MockConn{}
			conn.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
				return isCreate(q) && strings.Contains(q, tt.want) && strings.Contains(q, "ReplacingMergeTree(version)")
			})).Return(nil)

			_, err := NewRepository(t.Context(), testutils.NewTestClient(conn), tt.cluster, "rewards", "checkpoints")
			require.NoError(t, err)
			conn.AssertExpectations(t)
		})
	}
}

func TestNewRepository_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRepository(t.Context(), nil, "", "rewards", "checkpoints")
	require.ErrorContains(t, err, "invalid client")

	_, err = NewRepository(t.Context(), testutils.NewTestClient(&testutils.MockConn{}), "", "", "checkpoints")
	require.ErrorContains(t, err, "invalid table")

	conn := &testutils.MockConn{}
	boom := errors.New("ddl failed")
	conn.On("Exec", mock.Anything, mock.Anything).Return(boom)
	_, err = NewRepository(t.Context(), testutils.NewTestClient(conn), "", "rewards", "checkpoints")
	require.ErrorIs(t, err, boom)
}

func TestRepository_Write(t *testing.T) {
	t.Parallel()

	conn := &testutils.MockConn{}
	repo := newRepo(t, conn, "")

	var versions []uint64
	conn.On("Exec", mock.Anything,
		"INSERT INTO rewards.checkpoints (key, schema_version, height, hash, bundle, timestamp, version) VALUES (?, ?, ?, ?, ?, ?, ?)\n",
		"rewards", uint32(3), uint64(12), "h12", `{"a":1}`, int64(1700000000), mock.AnythingOfType("uint64"),
	).Run(func(args mock.Arguments) {
		versions = append(versions, args.Get(8).(uint64))
	}).Return(nil).Twice()

	e := checkpointer.Entry{Key: "rewards", SchemaVersion: 3, Height: 12, Hash: "h12", Bundle: []byte(`{"a":1}`), Timestamp: 1700000000}
	require.NoError(t, repo.Write(t.Context(), e))
	require.NoError(t, repo.Write(t.Context(), e))

	require.Len(t, versions, 2)
	assert.Greater(t, versions[1], versions[0])
	conn.AssertExpectations(t)
}

func TestRepository_Write_Errors(t *testing.T) {
	t.Parallel()

	conn := &testutils.MockConn{}
	repo := newRepo(t, conn, "")

	require.ErrorContains(t, repo.Write(t.Context(), checkpointer.Entry{}), "invalid checkpoint key")

	execErr := errors.New("exec failed")
	conn.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool { return strings.HasPrefix(q, "INSERT") }),
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
	).Return(execErr)
	require.ErrorIs(t, repo.Write(t.Context(), checkpointer.Entry{Key: "k"}), execErr)
}

func TestRepository_Read(t *testing.T) {
	t.Parallel()

	readQuery := "SELECT key, schema_version, height, hash, bundle, timestamp FROM rewards.checkpoints FINAL WHERE key = ? ORDER BY version DESC LIMIT 1\n"

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		conn := &testutils.MockConn{}
		repo := newRepo(t, conn, "")
		conn.On("QueryRow", mock.Anything, readQuery, "rewards").Return(rowMock{r: row{
			Key: "rewards", SchemaVersion: 3, Height: 7, Hash: "h7", Bundle: `{"x":true}`, Timestamp: 1700000000,
		}})

		e, ok, err := repo.Read(t.Context(), "rewards")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, checkpointer.Entry{
			Key: "rewards", SchemaVersion: 3, Height: 7, Hash: "h7", Bundle: []byte(`{"x":true}`), Timestamp: 1700000000,
		}, e)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		conn := &testutils.MockConn{}
		repo := newRepo(t, conn, "")
		conn.On("QueryRow", mock.Anything, readQuery, "rewards").Return(rowMock{err: sql.ErrNoRows})

		_, ok, err := repo.Read(t.Context(), "rewards")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("scan error", func(t *testing.T) {
		t.Parallel()
		conn := &testutils.MockConn{}
		repo := newRepo(t, conn, "")
		scanErr := errors.New("scan failed")
		conn.On("QueryRow", mock.Anything, readQuery, "rewards").Return(rowMock{err: scanErr})

		_, ok, err := repo.Read(t.Context(), "rewards")
		require.ErrorIs(t, err, scanErr)
		assert.False(t, ok)
	})
}

func TestRepository_Delete(t *testing.T) {
	t.Parallel()

	conn := &testutils.MockConn{}
	repo := newRepo(t, conn, "main")
	conn.On("Exec", mock.Anything, "DELETE FROM rewards.checkpoints ON CLUSTER main WHERE key = ?\n", "rewards").Return(nil)

	require.NoError(t, repo.Delete(t.Context(), "rewards"))
	conn.AssertExpectations(t)
}
