package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// RetryConfig bounds the exponential backoff applied to ErrUnavailable.
type RetryConfig struct {
	InitialInterval time.Duration `env:"SOURCE_RETRY_INITIAL_INTERVAL" envDefault:"200ms"`
	MaxInterval     time.Duration `env:"SOURCE_RETRY_MAX_INTERVAL"     envDefault:"10s"`
	Multiplier      float64       `env:"SOURCE_RETRY_MULTIPLIER"       envDefault:"2"`
	MaxElapsedTime  time.Duration `env:"SOURCE_RETRY_MAX_ELAPSED_TIME" envDefault:"5m"`
	MaxTries        uint          `env:"SOURCE_RETRY_MAX_TRIES"        envDefault:"0"` // 0 means bounded by MaxElapsedTime only
}

// DefaultRetryConfig returns the defaults used when no environment overrides are set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// RetryNotifier is told about every retried failure.
type RetryNotifier interface {
	IncSourceRetry(op string)
}

// Retrying wraps a Source and retries calls failing with ErrUnavailable.
// Every other error is returned immediately.
type Retrying struct {
	src      Source
	cfg      RetryConfig
	log      *zap.SugaredLogger
	notifier RetryNotifier
}

var _ Source = (*Retrying)(nil)

// NewRetrying wraps src. notifier may be nil.
func NewRetrying(src Source, cfg RetryConfig, log *zap.SugaredLogger, notifier RetryNotifier) (*Retrying, error) {
	if src == nil {
		return nil, errors.New("invalid source: must not be nil")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if cfg.InitialInterval <= 0 {
		return nil, errors.New("invalid initial interval: must be greater than 0")
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, errors.New("invalid max interval: must be greater than or equal to initial interval")
	}
	return &Retrying{src: src, cfg: cfg, log: log, notifier: notifier}, nil
}

func (r *Retrying) Get(ctx context.Context, height uint64) (ledger.Record, error) {
	return retry(ctx, r, "get", func() (ledger.Record, error) {
		return r.src.Get(ctx, height)
	})
}

func (r *Retrying) Latest(ctx context.Context) (uint64, error) {
	return retry(ctx, r, "latest", func() (uint64, error) {
		return r.src.Latest(ctx)
	})
}

func (r *Retrying) IsCanonical(ctx context.Context, p ledger.Position) (bool, error) {
	return retry(ctx, r, "is_canonical", func() (bool, error) {
		return r.src.IsCanonical(ctx, p)
	})
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	if r.cfg.Multiplier > 1 {
		b.Multiplier = r.cfg.Multiplier
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warnw("source unavailable, retrying", "op", op, "wait", wait, "error", err)
			if r.notifier != nil {
				r.notifier.IncSourceRetry(op)
			}
		}),
	}
	if r.cfg.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.cfg.MaxElapsedTime))
	}
	if r.cfg.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(r.cfg.MaxTries))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
