package follower

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/internal/repository/inmemory"
	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/migrate"
	"github.com/ava-labs/rewards-follower/pkg/reward"
	"github.com/ava-labs/rewards-follower/pkg/source/testutils"
)

func TestInitialize_EmptyStore(t *testing.T) {
	t.Parallel()
	store := inmemory.NewCheckpoints()
	f := newFollower(t, testConfig(), testutils.NewChain(), store)

	cp := f.Checkpoint()
	assert.True(t, cp.Cursor.IsZero())
	assert.Empty(t, cp.Ledger)
	assert.Equal(t, ledger.PhaseFollowing, cp.Phase)
	assert.Zero(t, store.Writes(), "an empty ledger is not written until something is applied")
}

func TestInitialize_ResumesCurrentVersion(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	chain := testutils.NewChain(testutils.Linear("a", testutils.Genesis, tens("A", 4)...)...)
	store := inmemory.NewCheckpoints()
	first := newFollower(t, cfg, chain, store)
	require.NoError(t, first.AdvanceTo(t.Context(), 2))
	writes := store.Writes()

	second := newFollower(t, cfg, chain, store)
	assert.Equal(t, encode(t, first.Checkpoint()), encode(t, second.Checkpoint()))
	assert.Equal(t, writes, store.Writes())

	require.NoError(t, second.AdvanceTo(t.Context(), 4))
	assert.Equal(t, "40", second.Checkpoint().Ledger["A"].Cumulative.String())
}

func TestInitialize_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		bundle  string
		wantErr error
	}{
		{name: "not json", bundle: `{not json`, wantErr: ledger.ErrCheckpointCorrupt},
		{name: "missing version", bundle: `{"cursor":{}}`, wantErr: ledger.ErrCheckpointCorrupt},
		{name: "bad ledger shape", bundle: `{"schema_version":4,"ledger":[1]}`, wantErr: ledger.ErrCheckpointCorrupt},
		{name: "unknown phase", bundle: `{"schema_version":4,"phase":"dancing"}`, wantErr: ledger.ErrCheckpointCorrupt},
		{
			name:    "journal does not end at cursor",
			bundle:  `{"schema_version":4,"cursor":{"height":2,"hash":"a2"},"journal":[{"position":{"height":1,"hash":"a1"}}]}`,
			wantErr: ledger.ErrCheckpointCorrupt,
		},
		{name: "too new", bundle: `{"schema_version":5}`, wantErr: ledger.ErrSchemaTooNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			store := inmemory.NewCheckpoints()
			store.Put(checkpointer.Entry{Key: cfg.Key, Bundle: []byte(tt.bundle)})

			f, err := New(cfg, zap.NewNop().Sugar(), testutils.NewChain(), store, reward.Standard{})
			require.NoError(t, err)
			err = f.Initialize(t.Context())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.Writes())
		})
	}
}

func TestInitialize_TooNewCarriesVersions(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	store := inmemory.NewCheckpoints()
	store.Put(checkpointer.Entry{Key: cfg.Key, Bundle: []byte(`{"schema_version":9}`)})

	f, err := New(cfg, zap.NewNop().Sugar(), testutils.NewChain(), store, reward.Standard{})
	require.NoError(t, err)
	err = f.Initialize(t.Context())

	var verr *ledger.VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 9, verr.From)
	assert.Equal(t, ledger.CurrentSchemaVersion, verr.To)
}

func TestInitialize_MigratesAndReplays(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	records := testutils.Linear("a", testutils.Genesis, tens("A", 5)...)
	chain := testutils.NewChain(records...)
	store := inmemory.NewCheckpoints()
	store.Put(checkpointer.Entry{
		Key:           cfg.Key,
		SchemaVersion: 1,
		Height:        3,
		Bundle:        []byte(`{"schema_version":1,"cursor":{"height":3,"hash":"a3"},"ledger":{"A":{"amount":"30","last_height":3,"last_hash":"a3"}}}`),
	})

	f := newFollower(t, cfg, chain, store)
	want := reference(t, cfg, records[:3]...)
	assert.Equal(t, want, encode(t, f.Checkpoint()))
	assert.Equal(t, 1, store.Writes(), "the migrated checkpoint is saved once")

	e, ok, err := store.Read(t.Context(), cfg.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.CurrentSchemaVersion, e.SchemaVersion)
	assert.Equal(t, want, string(e.Bundle))

	require.NoError(t, f.AdvanceTo(t.Context(), 5))
	assert.Equal(t, reference(t, cfg, records...), encode(t, f.Checkpoint()))
}

func TestInitialize_MigratedJournalCanBeUndone(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	records := testutils.Linear("a", testutils.Genesis, pairs(3)...)
	chain := testutils.NewChain(records...)
	first := newFollower(t, cfg, chain, inmemory.NewCheckpoints())
	require.NoError(t, first.AdvanceTo(t.Context(), 3))
	current := encode(t, first.Checkpoint())

	v3, err := sjson.Delete(current, "scope")
	require.NoError(t, err)
	for i := range 3 {
		v3, err = sjson.Delete(v3, fmt.Sprintf("journal.%d.applied", i))
		require.NoError(t, err)
	}
	v3, err = sjson.Set(v3, "schema_version", 3)
	require.NoError(t, err)

	store := inmemory.NewCheckpoints()
	store.Put(checkpointer.Entry{Key: cfg.Key, SchemaVersion: 3, Height: 3, Bundle: []byte(v3)})
	f := newFollower(t, cfg, chain, store)
	assert.Equal(t, current, encode(t, f.Checkpoint()))
	assert.Equal(t, 1, store.Writes())

	fork := testutils.Linear("b", records[0].Position, tens("B", 3)...)
	chain.Reorg(fork...)
	require.NoError(t, f.AdvanceTo(t.Context(), 4))
	assert.Equal(t, reference(t, cfg, append([]ledger.Record{records[0]}, fork...)...), encode(t, f.Checkpoint()))
}

func TestInitialize_FailedMigrationLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	chain := testutils.NewChain(testutils.Linear("a", testutils.Genesis, tens("A", 3)...)...)
	store := inmemory.NewCheckpoints()
	v1 := `{"schema_version":1,"cursor":{"height":3,"hash":"zz3"},"ledger":{"A":{"amount":"30","last_height":3,"last_hash":"zz3"}}}`
	store.Put(checkpointer.Entry{Key: cfg.Key, SchemaVersion: 1, Bundle: []byte(v1)})

	f, err := New(cfg, zap.NewNop().Sugar(), chain, store, reward.Standard{})
	require.NoError(t, err)
	err = f.Initialize(t.Context())
	require.ErrorIs(t, err, errReplayDiverged)
	var verr *ledger.VersionError
	require.ErrorAs(t, err, &verr)

	e, _, err := store.Read(t.Context(), cfg.Key)
	require.NoError(t, err)
	assert.Equal(t, v1, string(e.Bundle))
	assert.Zero(t, store.Writes())
}

func TestInitialize_UnknownMigrationPath(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	store := inmemory.NewCheckpoints()
	store.Put(checkpointer.Entry{Key: cfg.Key, Bundle: []byte(`{"schema_version":1}`)})

	m, err := migrate.NewManager(zap.NewNop().Sugar())
	require.NoError(t, err)
	f, err := New(cfg, zap.NewNop().Sugar(), testutils.NewChain(), store, reward.Standard{}, WithMigrator(m))
	require.NoError(t, err)
	require.ErrorIs(t, f.Initialize(t.Context()), ledger.ErrUnknownMigrationPath)
}

func TestReplay_RollingBackReplaysToAncestor(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	records := testutils.Linear("a", testutils.Genesis, tens("A", 4)...)
	f := newFollower(t, cfg, testutils.NewChain(records...), inmemory.NewCheckpoints())

	cp := ledger.NewCheckpoint()
	cp.Cursor = ledger.Position{Height: 4, Hash: "gone4"}
	cp.Phase = ledger.PhaseRollingBack
	cp.ReorgTarget = records[1].Position
	cp.Scope = reward.ScopeAll
	doc, err := ledger.Encode(cp)
	require.NoError(t, err)

	out, err := f.Replay(t.Context(), doc)
	require.NoError(t, err)
	assert.Equal(t, reference(t, cfg, records[:2]...), string(out))
}
