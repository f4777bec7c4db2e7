package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/rewards-follower/pkg/etl"
	"github.com/ava-labs/rewards-follower/pkg/follower"
	"github.com/ava-labs/rewards-follower/pkg/metrics"
	"github.com/ava-labs/rewards-follower/pkg/queue"
	"github.com/ava-labs/rewards-follower/pkg/scheduler"
	"github.com/ava-labs/rewards-follower/pkg/slidingwindow"
	"github.com/ava-labs/rewards-follower/pkg/slidingwindow/subscriber"
	"github.com/ava-labs/rewards-follower/pkg/utils"
)

const flushTimeoutOnClose = 15 * time.Second

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLoggerWithDir(cfg.Verbose, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	runID := uuid.Must(uuid.NewV7()).String()
	sugar = sugar.With("runID", runID)
	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"databaseURL", redact(cfg.DatabaseURL),
		"nodeURL", cfg.NodeURL,
		"sourceType", cfg.SourceType,
		"mode", cfg.Mode,
		"backfill", cfg.Backfill,
		"key", cfg.Follower.Key,
		"maxReorgDepth", cfg.Follower.MaxReorgDepth,
		"concurrency", cfg.Concurrency,
		"window", cfg.Window,
		"kafkaEnabled", cfg.Kafka.Enabled,
		"metricsAddr", cfg.MetricsAddr(),
		"chainID", cfg.ChainID,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint, runID)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			sugar.Warnw("tracer shutdown error", "error", err)
		}
	}()

	if cfg.WaitForDeps {
		if err := waitForDeps(ctx, cfg, sugar); err != nil {
			return err
		}
	}

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		ChainID:       cfg.ChainID,
		Key:           cfg.Follower.Key,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	var ready atomic.Bool
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, func() error {
		if !ready.Load() {
			return errors.New("follower not running")
		}
		return nil
	})
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	defer func() {
		sugar.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("metrics server shutdown error", "error", err)
		}
	}()

	var (
		opts      []follower.Option
		publisher *queue.KafkaPublisher
	)
	if cfg.Kafka.Enabled {
		publisher, err = newPublisher(ctx, cfg.Kafka, sugar)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), flushTimeoutOnClose)
			defer cancel()
			publisher.Close(closeCtx)
		}()
		observer, err := queue.NewEventObserver(publisher, cfg.Kafka.Topic, runID, cfg.Kafka.PublishTimeout, sugar, m)
		if err != nil {
			return fmt.Errorf("failed to create event observer: %w", err)
		}
		opts = append(opts, follower.WithObserver(observer))
	}

	p, err := newPipeline(ctx, cfg, sugar, m, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	poller, err := subscriber.NewPoller(sugar, p.client, cfg.TipPollInterval)
	if err != nil {
		return fmt.Errorf("failed to create tip poller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.runManager(gctx)
	})
	g.Go(func() error {
		return poller.Subscribe(gctx, p.manager)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if publisher != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-publisher.Errors():
				// Events are best effort; the checkpoint remains the source of truth.
				sugar.Errorw("kafka producer error", "error", err)
				return nil
			}
		})
	}
	g.Go(func() error {
		return scheduler.Start(gctx, sugar, p.follower, p.stores.checkpoints, cfg.Follower.Checkpoint, m)
	})
	g.Go(func() error {
		if err := catchUp(gctx, cfg, sugar, p); err != nil {
			return err
		}
		ready.Store(true)
		defer ready.Store(false)
		return p.follower.FollowForever(gctx)
	})

	go slidingwindow.StartGapWatchdog(gctx, sugar, p.state, cfg.GapWatchdogInterval, cfg.GapWatchdogMaxGap, m)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err, "cursor", p.follower.Cursor().String())
	}

	sugar.Info("shutdown complete")
	return err
}

// catchUp brings the follower to the source tip before live following. With
// backfill it replays from the cursor (or genesis) in ETL mode; without it an
// empty ledger is anchored at the tip so only new records are followed.
func catchUp(ctx context.Context, cfg *Config, log *zap.SugaredLogger, p *pipeline) error {
	cursor := p.follower.Cursor()
	empty := cursor.IsZero() && len(p.follower.Checkpoint().Ledger) == 0
	if !cfg.Backfill && !empty {
		return nil
	}

	tip, err := p.source.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to get source tip: %w", err)
	}
	if tip == 0 || tip <= cursor.Height {
		return nil
	}

	start := cursor.Height + 1
	if !cfg.Backfill {
		start = tip
	}
	log.Infow("catching up", "from", start, "to", tip, "backfill", cfg.Backfill)
	return etl.RunBackfill(ctx, log, p.follower, p.source, start, tip)
}

// newPublisher ensures the events topic exists and opens a producer.
func newPublisher(ctx context.Context, cfg queue.Config, log *zap.SugaredLogger) (*queue.KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	admin, err := confluentKafka.NewAdminClient(cfg.AdminConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	if err := queue.EnsureTopic(ctx, admin, cfg.TopicConfig(), log); err != nil {
		return nil, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}

	publisher, err := queue.NewKafkaPublisher(ctx, cfg.ProducerConfigMap(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return publisher, nil
}

// waitForDeps blocks until the node and, for network stores, the database
// accept TCP connections.
func waitForDeps(ctx context.Context, cfg *Config, log *zap.SugaredLogger) error {
	addrs := make([]string, 0, 2)
	node, err := utils.HostPort(cfg.NodeURL, "")
	if err != nil {
		return fmt.Errorf("failed to resolve node address: %w", err)
	}
	addrs = append(addrs, node)
	if db, ok := databaseAddr(cfg.DatabaseURL); ok {
		addrs = append(addrs, db)
	}

	for _, addr := range addrs {
		if err := utils.WaitForTCP(ctx, log, addr, cfg.WaitTimeout, time.Second); err != nil {
			return err
		}
	}
	return nil
}

// databaseAddr returns the address of a network store.
func databaseAddr(databaseURL string) (string, bool) {
	var defaultPort string
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		defaultPort = "5432"
	case strings.HasPrefix(databaseURL, "clickhouse://"):
		defaultPort = "9000"
	default:
		return "", false
	}
	addr, err := utils.HostPort(databaseURL, defaultPort)
	if err != nil {
		return "", false
	}
	return addr, true
}
