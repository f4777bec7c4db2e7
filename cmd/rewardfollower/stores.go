package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/internal/repository/inmemory"
	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/clickhouse"
	"github.com/ava-labs/rewards-follower/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/rewards-follower/pkg/data/postgres"
	sqlitecheckpoint "github.com/ava-labs/rewards-follower/pkg/data/sqlite/checkpoint"
)

const memoryStore = "memory"

// filterStore persists the accounts and gateways tracked in filters mode.
type filterStore interface {
	Filters(ctx context.Context) (accounts, gateways []string, err error)
	AddFilter(ctx context.Context, kind, value string) error
}

// stores bundles the opened checkpoint store with its optional filter table.
type stores struct {
	checkpoints checkpointer.Checkpointer
	filters     filterStore // nil unless the store is Postgres
	close       func()
}

// openStores opens the checkpoint store named by databaseURL.
func openStores(ctx context.Context, databaseURL string, log *zap.SugaredLogger) (*stores, error) {
	switch {
	case databaseURL == memoryStore:
		log.Warn("using in-memory checkpoint store; progress is lost on exit")
		return &stores{checkpoints: inmemory.NewCheckpoints(), close: func() {}}, nil

	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		s, pool, err := postgres.Open(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("postgres checkpoint store ready")
		return &stores{checkpoints: s, filters: s, close: pool.Close}, nil

	case databaseURL == "clickhouse", strings.HasPrefix(databaseURL, "clickhouse://"):
		cfg, err := clickhouseConfig(databaseURL)
		if err != nil {
			return nil, err
		}
		client, err := clickhouse.New(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		repo, err := checkpoint.NewRepository(ctx, client, cfg.Cluster, cfg.Database, cfg.CheckpointsTable)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to create checkpoint repository: %w", err)
		}
		log.Info("ClickHouse checkpoint store ready")
		return &stores{checkpoints: repo, close: func() { _ = client.Close() }}, nil

	case strings.HasPrefix(databaseURL, "sqlite://"):
		s, err := sqlitecheckpoint.Open(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		log.Info("sqlite checkpoint store ready")
		return &stores{checkpoints: s, close: func() { _ = s.Close() }}, nil

	default:
		return nil, fmt.Errorf("unsupported database url %q", redact(databaseURL))
	}
}

// clickhouseConfig loads the CLICKHOUSE_* environment and applies the host
// and database from a clickhouse://host:port/db url.
func clickhouseConfig(databaseURL string) (clickhouse.Config, error) {
	cfg, err := clickhouse.Load()
	if err != nil {
		return clickhouse.Config{}, err
	}
	if databaseURL == "clickhouse" {
		return cfg, nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return clickhouse.Config{}, fmt.Errorf("invalid clickhouse url: %w", err)
	}
	if u.Host != "" {
		cfg.Hosts = strings.Split(u.Host, ",")
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		cfg.Database = db
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			cfg.Password = p
		}
	}
	return cfg, nil
}

// redact hides credentials in a url before it is logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
