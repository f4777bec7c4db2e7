package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/data/postgres"
	"github.com/ava-labs/rewards-follower/pkg/reward"
)

// buildEngine returns the reward engine for cfg.Mode. In filters mode the
// configured accounts and gateways are first written to the filter table
// when the store has one, and the table's full contents are tracked.
func buildEngine(ctx context.Context, cfg *Config, filters filterStore, log *zap.SugaredLogger) (reward.Engine, error) {
	switch canonicalMode(cfg.Mode) {
	case modeFull:
		return reward.Standard{}, nil
	case modeFilters:
	default:
		return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
	}

	accounts, gateways := cfg.Accounts, cfg.Gateways
	if filters != nil {
		for _, a := range accounts {
			if err := filters.AddFilter(ctx, postgres.KindAccount, a); err != nil {
				return nil, err
			}
		}
		for _, g := range gateways {
			if err := filters.AddFilter(ctx, postgres.KindGateway, g); err != nil {
				return nil, err
			}
		}
		var err error
		accounts, gateways, err = filters.Filters(ctx)
		if err != nil {
			return nil, err
		}
	}

	participants := append(append([]string{}, accounts...), gateways...)
	if len(participants) == 0 {
		return nil, errors.New("filters mode requires at least one account or gateway")
	}
	log.Infow("tracking filtered participants", "accounts", len(accounts), "gateways", len(gateways))
	return reward.NewFiltered(reward.Standard{}, participants), nil
}
