package subscriber

import (
	"context"

	"github.com/ava-labs/rewards-follower/pkg/slidingwindow"
)

type Subscriber interface {
	Subscribe(ctx context.Context, manager *slidingwindow.Manager) error
}
