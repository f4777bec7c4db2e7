package slidingwindow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reporter receives window gauges on every watchdog tick.
type Reporter interface {
	UpdateWindow(lowest, highest uint64, buffered int)
}

// StartGapWatchdog periodically compares the consumer position with the
// source tip and warns when the consumer falls more than maxGap behind.
// r may be nil.
func StartGapWatchdog(ctx context.Context, log *zap.SugaredLogger, s *State, interval time.Duration, maxGap uint64, r Reporter) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			lowest := s.GetLowest()
			highest := s.GetHighest()
			if r != nil {
				r.UpdateWindow(lowest, highest, s.Buffered())
			}
			// lowest == highest+1 means the consumer is at the tip.
			var gap uint64
			if highest >= lowest {
				gap = highest - lowest + 1
			}
			if gap > maxGap {
				log.Warnw("gap too large", "gap", gap, "highest", highest, "lowest", lowest)
			}
		}
	}
}
