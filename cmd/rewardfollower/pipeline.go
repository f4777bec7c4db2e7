package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/follower"
	"github.com/ava-labs/rewards-follower/pkg/metrics"
	"github.com/ava-labs/rewards-follower/pkg/slidingwindow"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

// pipeline is the record path shared by run and backfill:
// node client -> read-ahead window -> retrying source -> follower.
type pipeline struct {
	stores   *stores
	client   recordSource
	state    *slidingwindow.State
	manager  *slidingwindow.Manager
	source   source.Source
	follower *follower.Follower
}

// newPipeline opens the store, dials the source and initializes the
// follower. The window starts right above the committed cursor.
func newPipeline(
	ctx context.Context,
	cfg *Config,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	opts ...follower.Option,
) (_ *pipeline, err error) {
	if err := cfg.validateSource(); err != nil {
		return nil, err
	}

	p := &pipeline{}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	p.stores, err = openStores(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	p.client, err = dialSource(ctx, cfg, m)
	if err != nil {
		return nil, fmt.Errorf("failed to dial source: %w", err)
	}

	engine, err := buildEngine(ctx, cfg, p.stores.filters, log)
	if err != nil {
		return nil, err
	}

	p.state, err = slidingwindow.NewState(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create state: %w", err)
	}
	p.manager, err = slidingwindow.NewManager(log, p.state, p.client, cfg.Concurrency, cfg.Window, cfg.MaxFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}
	p.source, err = source.NewRetrying(p.manager, cfg.Retry, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrying source: %w", err)
	}

	opts = append([]follower.Option{follower.WithMetrics(m)}, opts...)
	p.follower, err = follower.New(cfg.Follower, log, p.source, p.stores.checkpoints, engine, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create follower: %w", err)
	}
	if err := p.follower.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize follower: %w", err)
	}
	p.state.Reset(p.follower.Cursor().Height + 1)
	return p, nil
}

// runManager runs the window scheduler and treats cancellation as a clean stop.
func (p *pipeline) runManager(ctx context.Context) error {
	err := p.manager.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *pipeline) Close() {
	if p.client != nil {
		p.client.Close()
	}
	if p.stores != nil {
		p.stores.close()
	}
}
