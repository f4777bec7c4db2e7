package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/data/postgres"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/reward"
)

type fakeFilters struct {
	accounts []string
	gateways []string
	addErr   error
}

func (f *fakeFilters) Filters(context.Context) ([]string, []string, error) {
	return f.accounts, f.gateways, nil
}

func (f *fakeFilters) AddFilter(_ context.Context, kind, value string) error {
	if f.addErr != nil {
		return f.addErr
	}
	switch kind {
	case postgres.KindAccount:
		f.accounts = append(f.accounts, value)
	case postgres.KindGateway:
		f.gateways = append(f.gateways, value)
	}
	return nil
}

func recordFor(participants ...string) ledger.Record {
	rec := ledger.Record{Position: ledger.Position{Height: 1, Hash: "h1"}}
	for _, p := range participants {
		rec.Payload.Rewards = append(rec.Payload.Rewards, ledger.RewardEntry{Participant: p, Kind: "reward", Amount: ledger.NewAmount(1)})
	}
	return rec
}

func TestBuildEngine_Full(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{modeFull, modeRewards} {
		e, err := buildEngine(t.Context(), &Config{Mode: mode}, nil, zap.NewNop().Sugar())
		require.NoError(t, err)
		assert.IsType(t, reward.Standard{}, e)
		assert.Equal(t, reward.ScopeAll, reward.ScopeOf(e))
	}
}

func TestBuildEngine_FiltersFromFlags(t *testing.T) {
	t.Parallel()

	cfg := &Config{Mode: modeFilters, Accounts: []string{"0xa"}, Gateways: []string{"gw.1"}}
	e, err := buildEngine(t.Context(), cfg, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "gw.1"}, e.Participants(recordFor("0xa", "0xb", "gw.1")))
}

func TestBuildEngine_FiltersFromStore(t *testing.T) {
	t.Parallel()

	store := &fakeFilters{accounts: []string{"0xc"}}
	cfg := &Config{Mode: modeFilters, Gateways: []string{"gw.2"}}
	e, err := buildEngine(t.Context(), cfg, store, zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.Equal(t, []string{"gw.2"}, store.gateways)
	assert.Equal(t, []string{"0xc", "gw.2"}, e.Participants(recordFor("0xa", "0xc", "gw.2")))
}

func TestBuildEngine_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		filters     filterStore
		errContains string
	}{
		{name: "unknown mode", cfg: &Config{Mode: "partial"}, errContains: "invalid mode"},
		{name: "no filters", cfg: &Config{Mode: modeFilters}, errContains: "requires at least one account or gateway"},
		{name: "empty table", cfg: &Config{Mode: modeFilters}, filters: &fakeFilters{}, errContains: "requires at least one account or gateway"},
		{
			name:        "store failure",
			cfg:         &Config{Mode: modeFilters, Accounts: []string{"0xa"}},
			filters:     &fakeFilters{addErr: errors.New("db down")},
			errContains: "db down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := buildEngine(t.Context(), tt.cfg, tt.filters, zap.NewNop().Sugar())
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}
