package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	a := m.Called(ctx, sql, args)
	return pgconn.NewCommandTag(a.String(0)), a.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	a := m.Called(ctx, sql, args)
	rows, _ := a.Get(0).(pgx.Rows)
	return rows, a.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	a := m.Called(ctx, sql, args)
	return a.Get(0).(pgx.Row)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("unexpected dest len")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int32:
			*d = v.(int32)
		case *int64:
			*d = v.(int64)
		case *[]byte:
			*d = v.([]byte)
		default:
			return errors.New("unexpected dest type")
		}
	}
	return nil
}

type fakeRows struct {
	rows    [][2]string
	i       int
	err     error
	closed  bool
	scanErr error
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.i-1]
	*dest[0].(*string) = row[0]
	*dest[1].(*string) = row[1]
	return nil
}

func isSchema(q string) bool {
	return strings.Contains(q, "CREATE TABLE IF NOT EXISTS reward_checkpoints")
}

func newStore(t *testing.T, db *mockDB) *Store {
	t.Helper()
	db.On("Exec", mock.Anything, mock.MatchedBy(isSchema), mock.Anything).Return("CREATE TABLE", nil).Once()
	s, err := New(t.Context(), db)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil db", func(t *testing.T) {
		t.Parallel()
		_, err := New(t.Context(), nil)
		require.ErrorContains(t, err, "invalid db")
	})

	t.Run("creates both tables", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{}
		db.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
			return isSchema(q) && strings.Contains(q, "CREATE TABLE IF NOT EXISTS reward_filters")
		}), mock.Anything).Return("CREATE TABLE", nil)
		_, err := New(t.Context(), db)
		require.NoError(t, err)
		db.AssertExpectations(t)
	})

	t.Run("schema error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{}
		db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("denied"))
		_, err := New(t.Context(), db)
		require.ErrorContains(t, err, "failed to create tables")
	})
}

func TestStore_Write(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := newStore(t, db)
	db.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, "ON CONFLICT (key) DO UPDATE")
	}), []any{"rewards", int32(3), int64(9), "h9", []byte(`{}`), int64(100)}).Return("INSERT 0 1", nil).Once()

	err := s.Write(t.Context(), checkpointer.Entry{
		Key: "rewards", SchemaVersion: 3, Height: 9, Hash: "h9", Bundle: []byte(`{}`), Timestamp: 100,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestStore_WriteErrors(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := newStore(t, db)
	require.ErrorContains(t, s.Write(t.Context(), checkpointer.Entry{}), "invalid checkpoint key")

	db.On("Exec", mock.Anything, writeCheckpointQuery, mock.Anything).Return("", errors.New("conn reset")).Once()
	err := s.Write(t.Context(), checkpointer.Entry{Key: "rewards"})
	require.ErrorContains(t, err, "failed to write checkpoint")
	require.ErrorContains(t, err, "conn reset")
}

func TestStore_Read(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		row         fakeRow
		want        checkpointer.Entry
		exists      bool
		errContains string
	}{
		{
			name:   "found",
			row:    fakeRow{values: []any{"rewards", int32(3), int64(9), "h9", []byte(`{"a":1}`), int64(100)}},
			want:   checkpointer.Entry{Key: "rewards", SchemaVersion: 3, Height: 9, Hash: "h9", Bundle: []byte(`{"a":1}`), Timestamp: 100},
			exists: true,
		},
		{name: "missing", row: fakeRow{err: pgx.ErrNoRows}},
		{name: "scan error", row: fakeRow{err: errors.New("bad column")}, errContains: "failed to read checkpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := &mockDB{}
			s := newStore(t, db)
			db.On("QueryRow", mock.Anything, readCheckpointQuery, []any{"rewards"}).Return(tt.row)

			e, ok, err := s.Read(t.Context(), "rewards")
			if tt.errContains != "" {
				require.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exists, ok)
			assert.Equal(t, tt.want, e)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := newStore(t, db)
	db.On("Exec", mock.Anything, deleteCheckpointQuery, []any{"rewards"}).Return("DELETE 1", nil).Once()
	require.NoError(t, s.Delete(t.Context(), "rewards"))

	db.On("Exec", mock.Anything, deleteCheckpointQuery, []any{"other"}).Return("", errors.New("gone")).Once()
	require.ErrorContains(t, s.Delete(t.Context(), "other"), "failed to delete checkpoint")
	db.AssertExpectations(t)
}

func TestStore_Filters(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := newStore(t, db)
	rows := &fakeRows{rows: [][2]string{
		{KindAccount, "0xa"},
		{KindAccount, "0xb"},
		{KindGateway, "gw.1"},
	}}
	db.On("Query", mock.Anything, readFiltersQuery, mock.Anything).Return(rows, nil).Once()

	accounts, gateways, err := s.Filters(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, accounts)
	assert.Equal(t, []string{"gw.1"}, gateways)
	assert.True(t, rows.closed)
}

func TestStore_FiltersErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		rows        *fakeRows
		queryErr    error
		errContains string
	}{
		{name: "query", queryErr: errors.New("down"), errContains: "failed to read filters"},
		{name: "scan", rows: &fakeRows{rows: [][2]string{{KindAccount, "0xa"}}, scanErr: errors.New("bad")}, errContains: "failed to scan filter"},
		{name: "unknown kind", rows: &fakeRows{rows: [][2]string{{"validator", "x"}}}, errContains: `unknown filter kind "validator"`},
		{name: "iteration", rows: &fakeRows{err: errors.New("reset")}, errContains: "reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := &mockDB{}
			s := newStore(t, db)
			if tt.rows != nil {
				db.On("Query", mock.Anything, readFiltersQuery, mock.Anything).Return(tt.rows, nil)
			} else {
				db.On("Query", mock.Anything, readFiltersQuery, mock.Anything).Return(nil, tt.queryErr)
			}
			_, _, err := s.Filters(t.Context())
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestStore_AddFilter(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := newStore(t, db)
	db.On("Exec", mock.Anything, addFilterQuery, []any{KindGateway, "gw.1"}).Return("INSERT 0 1", nil).Once()
	require.NoError(t, s.AddFilter(t.Context(), KindGateway, "gw.1"))

	require.ErrorContains(t, s.AddFilter(t.Context(), "validator", "x"), "invalid filter kind")
	require.ErrorContains(t, s.AddFilter(t.Context(), KindAccount, ""), "invalid filter value")
	db.AssertExpectations(t)
}
