package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/urfave/cli/v2"

	"github.com/ava-labs/rewards-follower/pkg/follower"
	"github.com/ava-labs/rewards-follower/pkg/queue"
	"github.com/ava-labs/rewards-follower/pkg/source"
	"github.com/ava-labs/rewards-follower/pkg/utils"
)

// Config holds all configuration for the rewardfollower application.
type Config struct {
	// Application settings
	Verbose bool
	LogDir  string

	// Store and source settings
	DatabaseURL string
	NodeURL     string
	SourceType  string
	Mode        string
	Accounts    []string
	Gateways    []string
	Backfill    bool

	// Window settings
	Concurrency uint64
	Window      uint64
	MaxFailures int

	// Dependency wait
	WaitForDeps bool
	WaitTimeout time.Duration

	// Liveness settings
	TipPollInterval     time.Duration
	GapWatchdogInterval time.Duration
	GapWatchdogMaxGap   uint64

	// Metrics and tracing
	MetricsHost   string
	MetricsPort   int
	ChainID       string
	Environment   string
	Region        string
	CloudProvider string
	OTLPEndpoint  string

	// Environment driven tunables
	Follower follower.Config
	Retry    source.RetryConfig
	Kafka    queue.Config
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI flags, the environment and the
// optional settings file, in that order of precedence.
func buildConfig(c *cli.Context) (*Config, error) {
	settings, found, err := loadSettings(c.String("settings"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:             c.Bool("verbose"),
		LogDir:              pick(c, "log-dir", settings.Log.LogDir),
		DatabaseURL:         pick(c, "database-url", settings.DatabaseURL),
		NodeURL:             pick(c, "node-url", settings.NodeAddr),
		SourceType:          c.String("source-type"),
		Mode:                canonicalMode(pick(c, "mode", settings.Mode)),
		Accounts:            utils.SplitList(c.String("accounts")),
		Gateways:            utils.SplitList(c.String("gateways")),
		Backfill:            c.Bool("backfill"),
		Concurrency:         c.Uint64("concurrency"),
		Window:              c.Uint64("window"),
		MaxFailures:         c.Int("max-failures"),
		WaitForDeps:         c.Bool("wait-for-deps"),
		WaitTimeout:         c.Duration("wait-timeout"),
		TipPollInterval:     c.Duration("tip-poll-interval"),
		GapWatchdogInterval: c.Duration("gap-watchdog-interval"),
		GapWatchdogMaxGap:   c.Uint64("gap-watchdog-max-gap"),
		MetricsHost:         c.String("metrics-host"),
		MetricsPort:         c.Int("metrics-port"),
		ChainID:             c.String("chain-id"),
		Environment:         c.String("environment"),
		Region:              c.String("region"),
		CloudProvider:       c.String("cloud-provider"),
		OTLPEndpoint:        c.String("otlp-endpoint"),
	}
	if found && !c.IsSet("backfill") {
		cfg.Backfill = settings.Backfill
	}

	if err := env.Parse(&cfg.Follower); err != nil {
		return nil, fmt.Errorf("failed to parse follower config: %w", err)
	}
	if err := env.Parse(&cfg.Retry); err != nil {
		return nil, fmt.Errorf("failed to parse retry config: %w", err)
	}
	if err := env.Parse(&cfg.Kafka); err != nil {
		return nil, fmt.Errorf("failed to parse kafka config: %w", err)
	}
	cfg.Follower.Key = c.String("key")
	if c.Bool("allow-scope-change") {
		cfg.Follower.AllowScopeChange = true
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database url is required")
	}
	return cfg, nil
}

// pick returns the flag value unless the flag was left unset and the
// settings file provides one.
func pick(c *cli.Context, flag, fromSettings string) string {
	if !c.IsSet(flag) && fromSettings != "" {
		return fromSettings
	}
	return c.String(flag)
}

// canonicalMode maps mode aliases to the mode they stand for.
func canonicalMode(mode string) string {
	if mode == modeRewards {
		return modeFull
	}
	return mode
}

// validateSource checks the settings needed to read records.
func (c *Config) validateSource() error {
	if c.NodeURL == "" {
		return errors.New("node url is required")
	}
	switch c.SourceType {
	case sourceNode, sourceCoreth:
	default:
		return fmt.Errorf("invalid source type %q: must be %q or %q", c.SourceType, sourceNode, sourceCoreth)
	}
	switch canonicalMode(c.Mode) {
	case modeFull, modeFilters:
	default:
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Mode, modeFull, modeFilters)
	}
	return nil
}
