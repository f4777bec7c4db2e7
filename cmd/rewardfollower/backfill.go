package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/rewards-follower/pkg/etl"
	"github.com/ava-labs/rewards-follower/pkg/metrics"
	"github.com/ava-labs/rewards-follower/pkg/utils"
)

// backfill replays a bounded range in ETL mode and exits once the cursor
// reaches the end of the range.
func backfill(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	start, end := c.Uint64("start"), c.Uint64("end")

	sugar, err := utils.NewSugaredLoggerWithDir(cfg.Verbose, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors
	sugar.Infow("config",
		"databaseURL", redact(cfg.DatabaseURL),
		"nodeURL", cfg.NodeURL,
		"sourceType", cfg.SourceType,
		"mode", cfg.Mode,
		"key", cfg.Follower.Key,
		"start", start,
		"end", end,
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	p, err := newPipeline(ctx, cfg, sugar, m)
	if err != nil {
		return err
	}
	defer p.Close()

	if end == 0 {
		end, err = p.client.Latest(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest height: %w", err)
		}
		sugar.Infof("end height: not specified, using source tip %d", end)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		return p.runManager(runCtx)
	})
	g.Go(func() error {
		defer cancel()
		return etl.RunBackfill(runCtx, sugar, p.follower, p.source, start, end)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		sugar.Infow("exiting due to context cancellation", "cursor", p.follower.Cursor().String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	sugar.Infow("backfill complete", "cursor", p.follower.Cursor().String())
	return nil
}
