package subscriber

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/slidingwindow"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

// Poller feeds the source tip into a manager at a fixed interval.
type Poller struct {
	log      *zap.SugaredLogger
	src      source.Source
	interval time.Duration
}

var _ Subscriber = (*Poller)(nil)

func NewPoller(log *zap.SugaredLogger, src source.Source, interval time.Duration) (*Poller, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if src == nil {
		return nil, errors.New("invalid source: must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("invalid interval: must be greater than 0")
	}
	return &Poller{log: log, src: src, interval: interval}, nil
}

// Subscribe is a BLOCKING function. It polls the tip and submits it to the
// manager until ctx is done. Poll errors are logged and retried on the next tick.
func (p *Poller) Subscribe(ctx context.Context, manager *slidingwindow.Manager) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		tip, err := p.src.Latest(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			p.log.Warnw("failed to poll tip", "error", err)
		default:
			p.log.Debugw("polled tip", "height", tip)
			if !manager.SubmitHeight(tip) {
				p.log.Debugw("tip below consumer; ignored", "height", tip)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
