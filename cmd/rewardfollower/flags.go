package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

const (
	modeFull    = "full"
	modeFilters = "filters"
	// modeRewards is accepted from older settings files and means modeFull.
	modeRewards = "rewards"

	sourceNode   = "node"
	sourceCoreth = "coreth"
)

// commonFlags are shared by every command that opens the checkpoint store.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Usage:   "Directory to also write logs to",
			EnvVars: []string{"LOG_DIR"},
		},
		&cli.StringFlag{
			Name:    "settings",
			Usage:   "Path to an optional settings.toml",
			EnvVars: []string{"SETTINGS_FILE"},
			Value:   "settings.toml",
		},
		&cli.StringFlag{
			Name:    "database-url",
			Aliases: []string{"d"},
			Usage:   "Checkpoint store: postgres://..., clickhouse[://host:port/db], sqlite://path or memory",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "Checkpoint key; followers sharing a store must use distinct keys",
			EnvVars: []string{"FOLLOWER_KEY"},
			Value:   "rewards",
		},
	}
}

// sourceFlags select and configure the record source.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "node-url",
			Aliases: []string{"r"},
			Usage:   "RPC URL of the node to read records from",
			EnvVars: []string{"NODE_URL"},
		},
		&cli.StringFlag{
			Name:    "source-type",
			Usage:   "Record source: node (block_get JSON-RPC) or coreth (C-Chain fees)",
			EnvVars: []string{"SOURCE_TYPE"},
			Value:   sourceNode,
		},
		&cli.StringFlag{
			Name:    "mode",
			Usage:   "full tracks every participant, filters only the configured accounts and gateways",
			EnvVars: []string{"MODE"},
			Value:   modeFull,
		},
		&cli.StringFlag{
			Name:    "accounts",
			Usage:   "Comma separated accounts tracked in filters mode",
			EnvVars: []string{"ACCOUNT_ADDRESSES"},
		},
		&cli.StringFlag{
			Name:    "gateways",
			Usage:   "Comma separated gateways tracked in filters mode",
			EnvVars: []string{"GATEWAY_ADDRESSES"},
		},
		&cli.BoolFlag{
			Name:    "allow-scope-change",
			Usage:   "Accept a checkpoint built with a different mode or filter set; newly tracked participants start at the cursor",
			EnvVars: []string{"FOLLOWER_ALLOW_SCOPE_CHANGE"},
		},
		&cli.Uint64Flag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "Number of concurrent record prefetches",
			EnvVars: []string{"CONCURRENCY"},
			Value:   8,
		},
		&cli.Uint64Flag{
			Name:    "window",
			Usage:   "How many records past the cursor may be prefetched",
			EnvVars: []string{"WINDOW"},
			Value:   64,
		},
		&cli.IntFlag{
			Name:    "max-failures",
			Usage:   "Prefetch failures per height before the height is left to the follower",
			EnvVars: []string{"MAX_FAILURES"},
			Value:   3,
		},
		&cli.StringFlag{
			Name:    "chain-id",
			Aliases: []string{"C"},
			Usage:   "Chain identifier added to metrics labels",
			EnvVars: []string{"CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:    "otlp-endpoint",
			Usage:   "OTLP HTTP endpoint for traces; tracing is disabled when empty",
			EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
		},
	}
}

func runFlags() []cli.Flag {
	flags := append(commonFlags(), sourceFlags()...)
	return append(flags,
		&cli.BoolFlag{
			Name:    "backfill",
			Aliases: []string{"b"},
			Usage:   "Catch up from the checkpoint (or genesis) in ETL mode before following; otherwise an empty ledger starts at the tip",
			EnvVars: []string{"BACKFILL"},
		},
		&cli.BoolFlag{
			Name:    "wait-for-deps",
			Usage:   "Wait until the node and database accept TCP connections before starting",
			EnvVars: []string{"WAIT_FOR_DEPS"},
		},
		&cli.DurationFlag{
			Name:    "wait-timeout",
			Usage:   "How long to wait for dependencies",
			EnvVars: []string{"WAIT_TIMEOUT"},
			Value:   2 * time.Minute,
		},
		&cli.DurationFlag{
			Name:    "tip-poll-interval",
			Usage:   "Interval between source tip polls",
			EnvVars: []string{"TIP_POLL_INTERVAL"},
			Value:   2 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "gap-watchdog-interval",
			Usage:   "Interval between lag checks",
			EnvVars: []string{"GAP_WATCHDOG_INTERVAL"},
			Value:   15 * time.Second,
		},
		&cli.Uint64Flag{
			Name:    "gap-watchdog-max-gap",
			Usage:   "Lag in records above which a warning is logged",
			EnvVars: []string{"GAP_WATCHDOG_MAX_GAP"},
			Value:   100,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for the metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for the metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment added to metrics labels",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region added to metrics labels",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider added to metrics labels",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	)
}

func backfillFlags() []cli.Flag {
	flags := append(commonFlags(), sourceFlags()...)
	return append(flags,
		&cli.Uint64Flag{
			Name:     "start",
			Aliases:  []string{"s"},
			Usage:    "First height of the range",
			EnvVars:  []string{"START_HEIGHT"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "end",
			Aliases: []string{"e"},
			Usage:   "Last height of the range; defaults to the source tip",
			EnvVars: []string{"END_HEIGHT"},
		},
	)
}

func restoreFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{
			Name:    "from-key",
			Usage:   "Key to restore from; defaults to the key's snapshot",
			EnvVars: []string{"RESTORE_FROM_KEY"},
		},
	)
}

func writeConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Where to write the settings file",
			Value:   "settings.toml",
		},
		&cli.StringFlag{
			Name:    "database-url",
			Aliases: []string{"d"},
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "node-url",
			Aliases: []string{"r"},
			EnvVars: []string{"NODE_URL"},
		},
		&cli.StringFlag{
			Name:    "mode",
			EnvVars: []string{"MODE"},
			Value:   modeFull,
		},
		&cli.BoolFlag{
			Name:    "backfill",
			Aliases: []string{"b"},
			EnvVars: []string{"BACKFILL"},
			Value:   true,
		},
		&cli.StringFlag{
			Name:    "log-dir",
			EnvVars: []string{"LOG_DIR"},
		},
	}
}
