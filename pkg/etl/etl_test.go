package etl_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/internal/repository/inmemory"
	"github.com/ava-labs/rewards-follower/pkg/etl"
	"github.com/ava-labs/rewards-follower/pkg/follower"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/reward"
	"github.com/ava-labs/rewards-follower/pkg/slidingwindow"
	"github.com/ava-labs/rewards-follower/pkg/source"
	"github.com/ava-labs/rewards-follower/pkg/source/testutils"
)

func testConfig() follower.Config {
	cfg := follower.DefaultConfig()
	cfg.Key = "etl"
	cfg.PollInterval = time.Millisecond
	cfg.MaxReorgDepth = 8
	cfg.Checkpoint.MaxRetries = 0
	return cfg
}

func newFollower(t *testing.T, src source.Source) *follower.Follower {
	t.Helper()
	f, err := follower.New(testConfig(), zap.NewNop().Sugar(), src, inmemory.NewCheckpoints(), reward.Standard{})
	require.NoError(t, err)
	require.NoError(t, f.Initialize(t.Context()))
	return f
}

func payloads(seed uint64, n int) []ledger.Payload {
	r := rand.New(rand.NewPCG(seed, seed))
	participants := []string{"A", "B", "C"}
	out := make([]ledger.Payload, n)
	for i := range out {
		for range 1 + r.IntN(2) {
			out[i].Rewards = append(out[i].Rewards, ledger.RewardEntry{
				Participant: participants[r.IntN(len(participants))],
				Kind:        "mining",
				Amount:      ledger.NewAmount(int64(1 + r.IntN(50))),
			})
		}
	}
	return out
}

func encode(t *testing.T, cp ledger.Checkpoint) string {
	t.Helper()
	b, err := ledger.Encode(cp)
	require.NoError(t, err)
	return string(b)
}

func TestRunBackfill_MatchesLiveFollow(t *testing.T) {
	t.Parallel()
	records := testutils.Linear("a", testutils.Genesis, payloads(42, 30)...)
	log := zap.NewNop().Sugar()

	live := newFollower(t, testutils.NewChain(records...))
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- live.FollowForever(ctx) }()
	require.Eventually(t, func() bool {
		e, ok := live.Snapshot()
		return ok && e.Height == 30
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	liveSnap, _ := live.Snapshot()

	// The backfill reads through the prefetching window.
	chain := testutils.NewChain(records...)
	state, err := slidingwindow.NewState(1, 0)
	require.NoError(t, err)
	window, err := slidingwindow.NewManager(log, state, chain, 4, 16, 2)
	require.NoError(t, err)
	wctx, wcancel := context.WithCancel(t.Context())
	defer wcancel()
	go func() { _ = window.Run(wctx) }()

	backfill := newFollower(t, window)
	require.NoError(t, etl.RunBackfill(t.Context(), log, backfill, window, 1, 30))
	assert.Equal(t, uint64(30), backfill.Cursor().Height)
	assert.Equal(t, string(liveSnap.Bundle), encode(t, backfill.Checkpoint()))
}

func TestRunBackfill_AnchorsMidChain(t *testing.T) {
	t.Parallel()
	records := testutils.Linear("a", testutils.Genesis, payloads(1, 10)...)
	chain := testutils.NewChain(records...)
	f := newFollower(t, chain)

	require.NoError(t, etl.RunBackfill(t.Context(), zap.NewNop().Sugar(), f, chain, 5, 10))
	cp := f.Checkpoint()
	assert.Equal(t, records[3].Position, cp.Anchor)
	assert.Equal(t, records[9].Position, cp.Cursor)
	assert.Zero(t, chain.Gets(1), "records before the range are never read")

	total := ledger.NewAmount(0)
	for _, r := range records[4:] {
		for _, e := range r.Payload.Rewards {
			total = total.Add(e.Amount)
		}
	}
	got := ledger.NewAmount(0)
	for _, s := range cp.Ledger {
		got = got.Add(s.Cumulative)
	}
	assert.True(t, total.Equal(got), "want %s, got %s", total, got)
}

func TestRunBackfill_ContinuesFromCursor(t *testing.T) {
	t.Parallel()
	records := testutils.Linear("a", testutils.Genesis, payloads(2, 10)...)
	chain := testutils.NewChain(records...)
	log := zap.NewNop().Sugar()

	split := newFollower(t, chain)
	require.NoError(t, etl.RunBackfill(t.Context(), log, split, chain, 1, 4))
	require.NoError(t, etl.RunBackfill(t.Context(), log, split, chain, 5, 10))

	whole := newFollower(t, chain)
	require.NoError(t, etl.RunBackfill(t.Context(), log, whole, chain, 1, 10))
	assert.Equal(t, encode(t, whole.Checkpoint()), encode(t, split.Checkpoint()))
}

func TestRunBackfill_AlreadyCovered(t *testing.T) {
	t.Parallel()
	chain := testutils.NewChain(testutils.Linear("a", testutils.Genesis, payloads(3, 6)...)...)
	f := newFollower(t, chain)
	require.NoError(t, f.AdvanceTo(t.Context(), 6))
	gets := chain.Gets(6)

	require.NoError(t, etl.RunBackfill(t.Context(), zap.NewNop().Sugar(), f, chain, 2, 5))
	assert.Equal(t, uint64(6), f.Cursor().Height)
	assert.Equal(t, gets, chain.Gets(6))
}

func TestRunBackfill_Errors(t *testing.T) {
	t.Parallel()
	log := zap.NewNop().Sugar()
	records := testutils.Linear("a", testutils.Genesis, payloads(4, 10)...)

	t.Run("range gap", func(t *testing.T) {
		t.Parallel()
		chain := testutils.NewChain(records...)
		f := newFollower(t, chain)
		require.NoError(t, f.AdvanceTo(t.Context(), 3))
		require.ErrorIs(t, etl.RunBackfill(t.Context(), log, f, chain, 8, 10), etl.ErrRangeGap)
		assert.Equal(t, uint64(3), f.Cursor().Height)
	})

	t.Run("end beyond tip", func(t *testing.T) {
		t.Parallel()
		chain := testutils.NewChain(records...)
		f := newFollower(t, chain)
		require.ErrorIs(t, etl.RunBackfill(t.Context(), log, f, chain, 1, 11), source.ErrNotFound)
	})

	t.Run("zero start", func(t *testing.T) {
		t.Parallel()
		chain := testutils.NewChain(records...)
		require.ErrorContains(t, etl.RunBackfill(t.Context(), log, newFollower(t, chain), chain, 0, 3), "invalid start")
	})

	t.Run("inverted range", func(t *testing.T) {
		t.Parallel()
		chain := testutils.NewChain(records...)
		require.ErrorContains(t, etl.RunBackfill(t.Context(), log, newFollower(t, chain), chain, 5, 3), "invalid range")
	})
}
