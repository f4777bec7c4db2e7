package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/rewards-follower/pkg/scheduler"
	"github.com/ava-labs/rewards-follower/pkg/utils"
)

// remove deletes the checkpoint and its snapshot so the next run starts
// from an empty ledger.
func remove(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	ctx := c.Context

	sugar, err := utils.NewSugaredLoggerWithDir(cfg.Verbose, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	s, err := openStores(ctx, cfg.DatabaseURL, sugar)
	if err != nil {
		return err
	}
	defer s.close()

	key := cfg.Follower.Key
	for _, k := range []string{key, scheduler.SnapshotKey(key)} {
		if err := s.checkpoints.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to delete checkpoint %q: %w", k, err)
		}
	}

	sugar.Infof("checkpoints successfully removed for key %s", key)
	return nil
}
