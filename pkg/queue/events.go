package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/follower"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// EventVersion is written to the "event_version" header of every message.
const EventVersion = "1"

// RewardEvent is the change one committed record made to one participant.
// Undo events carry the negated delta of the original apply.
type RewardEvent struct {
	RunID       string        `json:"run_id"`
	Height      uint64        `json:"height"`
	Hash        string        `json:"hash"`
	Time        int64         `json:"time"`
	Participant string        `json:"participant"`
	Delta       ledger.Amount `json:"delta"`
	Cumulative  ledger.Amount `json:"cumulative"`
	Undo        bool          `json:"undo"`
}

// NewEvents converts a commit into one event per affected participant.
func NewEvents(runID string, c follower.Commit) []RewardEvent {
	out := make([]RewardEvent, 0, len(c.Deltas))
	for _, d := range c.Deltas {
		out = append(out, RewardEvent{
			RunID:       runID,
			Height:      c.Record.Position.Height,
			Hash:        c.Record.Position.Hash,
			Time:        c.Record.Time,
			Participant: d.Participant,
			Delta:       d.Delta,
			Cumulative:  d.Cumulative,
			Undo:        c.Undo,
		})
	}
	return out
}

// Recorder receives the outcome of every publish.
type Recorder interface {
	RecordPublish(err error)
}

// EventObserver publishes every commit it is told about.
type EventObserver struct {
	pub     QueuePublisher
	topic   string
	runID   string
	timeout time.Duration
	log     *zap.SugaredLogger
	rec     Recorder
}

var _ follower.Observer = (*EventObserver)(nil)

// NewEventObserver creates an observer that publishes to topic. Each
// publish is bounded by timeout. rec may be nil.
func NewEventObserver(
	pub QueuePublisher,
	topic, runID string,
	timeout time.Duration,
	log *zap.SugaredLogger,
	rec Recorder,
) (*EventObserver, error) {
	if pub == nil {
		return nil, errors.New("invalid publisher: must not be nil")
	}
	if topic == "" {
		return nil, errors.New("invalid topic: must not be empty")
	}
	if timeout <= 0 {
		return nil, errors.New("invalid timeout: must be greater than 0")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	return &EventObserver{pub: pub, topic: topic, runID: runID, timeout: timeout, log: log, rec: rec}, nil
}

func (o *EventObserver) OnCommit(ctx context.Context, c follower.Commit) {
	for _, ev := range NewEvents(o.runID, c) {
		err := o.publish(ctx, ev)
		if o.rec != nil {
			o.rec.RecordPublish(err)
		}
		if err != nil {
			o.log.Warnw("failed to publish reward event",
				"height", ev.Height,
				"participant", ev.Participant,
				"undo", ev.Undo,
				"error", err,
			)
		}
	}
}

func (o *EventObserver) publish(ctx context.Context, ev RewardEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.pub.Publish(ctx, Msg{
		Topic: o.topic,
		Key:   []byte(ev.Participant),
		Value: value,
		Headers: map[string]string{
			"event_version": EventVersion,
			"run_id":        o.runID,
		},
	})
}
