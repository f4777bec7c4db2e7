package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/scheduler"
	"github.com/ava-labs/rewards-follower/pkg/utils"
)

// restore copies a snapshot (or any other key) over the live checkpoint.
// The follower must be stopped while it runs.
func restore(c *cli.Context) error {
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

	key := cfg.Follower.Key
	from := c.String("from-key")
	if from == "" {
		from = scheduler.SnapshotKey(key)
	}
	if from == key {
		return fmt.Errorf("invalid from key %q: must differ from the live key", from)
	}

	s, err := openStores(ctx, cfg.DatabaseURL, sugar)
	if err != nil {
		return err
	}
	defer s.close()

	e, exists, err := s.checkpoints.Read(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %q: %w", from, err)
	}
	if !exists {
		return fmt.Errorf("no checkpoint stored under %q", from)
	}
	if _, err := ledger.PeekVersion(e.Bundle); err != nil {
		return fmt.Errorf("checkpoint %q: %w", from, err)
	}

	e.Key = key
	if err := checkpointer.Save(ctx, s.checkpoints, cfg.Follower.Checkpoint, e); err != nil {
		return fmt.Errorf("failed to write checkpoint %q: %w", key, err)
	}

	sugar.Infow("checkpoint restored", "from", from, "key", key, "height", e.Height, "hash", e.Hash)
	return nil
}
