package follower

import (
	"errors"
	"time"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

// Config holds the follower tunables. Defaults match the env defaults.
type Config struct {
	// Key namespaces the checkpoint in the store. Followers sharing a store
	// must use distinct keys.
	Key string `env:"FOLLOWER_KEY" envDefault:"rewards"`
	// MaxReorgDepth bounds how many records a reorg may roll back. The
	// checkpoint journal keeps twice as many records.
	MaxReorgDepth int `env:"FOLLOWER_MAX_REORG_DEPTH" envDefault:"100"`
	// MaxMalformed is how many times a malformed record at one height is
	// skipped and refetched before the run fails.
	MaxMalformed int `env:"FOLLOWER_MAX_MALFORMED" envDefault:"5"`
	// PollInterval is the wait between polls once the follower is caught up.
	PollInterval time.Duration `env:"FOLLOWER_POLL_INTERVAL" envDefault:"2s"`
	// AllowScopeChange lets Initialize adopt an engine whose participant scope
	// differs from the one the checkpoint was built with. Participants added
	// to the scope start from zero at the cursor.
	AllowScopeChange bool `env:"FOLLOWER_ALLOW_SCOPE_CHANGE" envDefault:"false"`

	Checkpoint checkpointer.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Key:           "rewards",
		MaxReorgDepth: 100,
		MaxMalformed:  5,
		PollInterval:  2 * time.Second,
		Checkpoint:    checkpointer.DefaultConfig(),
	}
}

func (c Config) validate() error {
	if c.Key == "" {
		return errors.New("invalid key: must not be empty")
	}
	if c.MaxReorgDepth <= 0 {
		return errors.New("invalid max reorg depth: must be greater than 0")
	}
	if c.MaxMalformed <= 0 {
		return errors.New("invalid max malformed: must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("invalid poll interval: must be greater than 0")
	}
	if c.Checkpoint.WriteTimeout <= 0 {
		return errors.New("invalid checkpoint write timeout: must be greater than 0")
	}
	if c.Checkpoint.MaxRetries < 0 {
		return errors.New("invalid checkpoint max retries: must not be negative")
	}
	return nil
}
