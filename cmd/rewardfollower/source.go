package main

import (
	"context"
	"fmt"

	"github.com/ava-labs/rewards-follower/internal/chainclient/avalanche/coreth"
	"github.com/ava-labs/rewards-follower/internal/chainclient/node"
	"github.com/ava-labs/rewards-follower/pkg/metrics"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

// recordSource is a source backed by a network connection.
type recordSource interface {
	source.Source
	Close()
}

func dialSource(ctx context.Context, cfg *Config, m *metrics.Metrics) (recordSource, error) {
	switch cfg.SourceType {
	case sourceNode:
		c, err := node.Dial(ctx, cfg.NodeURL, node.WithMetrics(m))
		if err != nil {
			return nil, err
		}
		return c, nil
	case sourceCoreth:
		c, err := coreth.New(ctx, cfg.NodeURL, coreth.WithMetrics(m))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("invalid source type %q", cfg.SourceType)
	}
}
