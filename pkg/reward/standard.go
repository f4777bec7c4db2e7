package reward

import (
	"errors"
	"fmt"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

var (
	_ Engine    = Standard{}
	_ Finalizer = Standard{}
)

// Standard credits each participant with the sum of its reward entries in a
// record. It also tracks per-kind totals, the number of records a
// participant appeared in and the length of its current run of consecutive
// records (streak).
type Standard struct{}

// Validate checks every entry of a payload.
func Validate(p ledger.Payload) error {
	for i, r := range p.Rewards {
		switch {
		case r.Participant == "":
			return fmt.Errorf("%w: entry %d: empty participant", ledger.ErrInvalidPayload, i)
		case r.Kind == "":
			return fmt.Errorf("%w: entry %d: empty kind", ledger.ErrInvalidPayload, i)
		case !r.Amount.Valid():
			return fmt.Errorf("%w: entry %d: missing amount", ledger.ErrInvalidPayload, i)
		}
	}
	return nil
}

func (Standard) Participants(rec ledger.Record) []string {
	return rec.Payload.Participants()
}

func (Standard) Apply(
	participant string,
	state ledger.ParticipantState,
	rec ledger.Record,
) (ledger.ParticipantState, ledger.Amount, error) {
	entries, err := entriesFor(participant, rec)
	if err != nil {
		return state, ledger.Amount{}, &ledger.PositionError{Op: "apply", Position: rec.Position, Participant: participant, Err: err}
	}
	if state.Records > 0 && rec.Position.Height <= state.LastApplied.Height {
		return state, ledger.Amount{}, &ledger.PositionError{
			Op: "apply", Position: rec.Position, Participant: participant,
			Err: fmt.Errorf("%w: last applied %s", ledger.ErrOutOfOrder, state.LastApplied),
		}
	}

	next := state.Clone()
	delta := ledger.NewAmount(0)
	for _, e := range entries {
		delta = delta.Add(e.Amount)
		next.ByKind = addKind(next.ByKind, e.Kind, e.Amount)
	}
	next.Cumulative = next.Cumulative.Add(delta)
	next.Records++

	if state.Records > 0 && state.LastApplied == rec.Parent {
		next.Streak = state.Streak + 1
	} else {
		if state.Records > 0 {
			next.Trail = append(next.Trail, ledger.Mark{
				Since:       rec.Position.Height,
				LastApplied: state.LastApplied,
				Streak:      state.Streak,
			})
		}
		next.Streak = 1
	}
	next.LastApplied = rec.Position

	return next, delta, nil
}

func (Standard) Undo(
	participant string,
	state ledger.ParticipantState,
	rec ledger.Record,
) (ledger.ParticipantState, error) {
	wrap := func(err error) error {
		return &ledger.PositionError{Op: "undo", Position: rec.Position, Participant: participant, Err: err}
	}
	if state.Records == 0 || state.LastApplied != rec.Position {
		return state, wrap(fmt.Errorf("%w: last applied %s", ledger.ErrUndoMismatch, state.LastApplied))
	}
	entries, err := entriesFor(participant, rec)
	if err != nil {
		return state, wrap(err)
	}

	prev := state.Clone()
	delta := ledger.NewAmount(0)
	for _, e := range entries {
		delta = delta.Add(e.Amount)
		prev.ByKind = addKind(prev.ByKind, e.Kind, e.Amount.Neg())
	}
	prev.Cumulative = prev.Cumulative.Sub(delta)
	prev.Records--

	switch {
	case prev.Records == 0:
		prev.LastApplied = ledger.Position{}
		prev.Streak = 0
	case state.Streak > 1:
		prev.LastApplied = rec.Parent
		prev.Streak = state.Streak - 1
	default:
		n := len(prev.Trail)
		if n == 0 || prev.Trail[n-1].Since != rec.Position.Height {
			return state, wrap(fmt.Errorf("%w: undo history for height %d was finalized", ledger.ErrUndoMismatch, rec.Position.Height))
		}
		m := prev.Trail[n-1]
		prev.Trail = prev.Trail[:n-1]
		prev.LastApplied = m.LastApplied
		prev.Streak = m.Streak
	}
	if len(prev.Trail) == 0 {
		prev.Trail = nil
	}
	if len(prev.ByKind) == 0 {
		prev.ByKind = nil
	}
	return prev, nil
}

// Settle removes undo marks for streaks started at or below height.
func (Standard) Settle(state ledger.ParticipantState, height uint64) (ledger.ParticipantState, []ledger.Mark) {
	i := 0
	for i < len(state.Trail) && state.Trail[i].Since <= height {
		i++
	}
	if i == 0 {
		return state, nil
	}
	next := state.Clone()
	settled := next.Trail[:i:i]
	next.Trail = next.Trail[i:]
	if len(next.Trail) == 0 {
		next.Trail = nil
	}
	return next, settled
}

// Restore puts back marks returned by Settle. They predate every mark still
// in the trail.
func (Standard) Restore(state ledger.ParticipantState, marks []ledger.Mark) ledger.ParticipantState {
	if len(marks) == 0 {
		return state
	}
	next := state.Clone()
	next.Trail = append(append(make([]ledger.Mark, 0, len(marks)+len(state.Trail)), marks...), state.Trail...)
	return next
}

var errNotInRecord = errors.New("participant not referenced by record")

func entriesFor(participant string, rec ledger.Record) ([]ledger.RewardEntry, error) {
	if err := Validate(rec.Payload); err != nil {
		return nil, err
	}
	var out []ledger.RewardEntry
	for _, r := range rec.Payload.Rewards {
		if r.Participant == participant {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ledger.ErrInvalidPayload, errNotInRecord)
	}
	return out, nil
}

// addKind adds v to m[kind] and drops the key when the total reaches zero so
// that apply followed by undo restores the original map exactly.
func addKind(m map[string]ledger.Amount, kind string, v ledger.Amount) map[string]ledger.Amount {
	if m == nil {
		m = make(map[string]ledger.Amount)
	}
	total := m[kind].Add(v)
	if total.IsZero() {
		delete(m, kind)
	} else {
		m[kind] = total
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
