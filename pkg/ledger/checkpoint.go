package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// CurrentSchemaVersion is the bundle layout this build reads and writes.
const CurrentSchemaVersion = 4

// Phase is the state of the reorg state machine.
type Phase string

const (
	PhaseFollowing   Phase = "following"
	PhaseRollingBack Phase = "rolling_back"
	PhaseReapplying  Phase = "reapplying"
)

// Entry is a journaled record with the participants it was applied to. Undo
// reverts exactly those, whatever the engine would select today. Settled holds
// the undo marks moved out of participant state once the record left the
// rollback window; they go back when a rollback brings it in range again.
type Entry struct {
	Record
	Applied []string          `json:"applied"`
	Settled map[string][]Mark `json:"settled,omitempty"`
}

// Checkpoint is the durable bundle persisted after every applied or undone
// record. Journal keeps the most recently applied records, oldest first, so
// they can be undone after the source stops serving them. Scope identifies the
// participant selection the ledger was built with.
type Checkpoint struct {
	SchemaVersion int      `json:"schema_version"`
	Cursor        Position `json:"cursor"`
	Anchor        Position `json:"anchor"`
	Phase         Phase    `json:"phase"`
	ReorgTarget   Position `json:"reorg_target"`
	ReorgTip      Position `json:"reorg_tip"`
	Ledger        Ledger   `json:"ledger"`
	Journal       []Entry  `json:"journal"`
	Scope         string   `json:"scope,omitempty"`
}

// NewCheckpoint returns the empty checkpoint created on first run.
func NewCheckpoint() Checkpoint {
	return Checkpoint{
		SchemaVersion: CurrentSchemaVersion,
		Phase:         PhaseFollowing,
		Ledger:        Ledger{},
		Journal:       []Entry{},
	}
}

// Clone returns a deep copy of c. Records and applied lists are shared since
// they are immutable once journaled.
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.Ledger = c.Ledger.Clone()
	out.Journal = make([]Entry, len(c.Journal))
	for i, e := range c.Journal {
		if e.Settled != nil {
			settled := make(map[string][]Mark, len(e.Settled))
			for p, m := range e.Settled {
				settled[p] = append([]Mark(nil), m...)
			}
			e.Settled = settled
		}
		out.Journal[i] = e
	}
	return out
}

// Encode serializes c. Map keys are sorted so equal checkpoints encode to
// identical bytes.
func Encode(c Checkpoint) ([]byte, error) {
	if c.Ledger == nil {
		c.Ledger = Ledger{}
	}
	if c.Journal == nil {
		c.Journal = []Entry{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return b, nil
}

// Decode parses a bundle written at CurrentSchemaVersion.
func Decode(b []byte) (Checkpoint, error) {
	v, err := PeekVersion(b)
	if err != nil {
		return Checkpoint{}, err
	}
	if v != CurrentSchemaVersion {
		return Checkpoint{}, &VersionError{From: v, To: CurrentSchemaVersion, Err: fmt.Errorf("%w: unexpected version", ErrCheckpointCorrupt)}
	}
	var c Checkpoint
	if err := json.Unmarshal(b, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %w", ErrCheckpointCorrupt, err)
	}
	if c.Ledger == nil {
		c.Ledger = Ledger{}
	}
	if c.Journal == nil {
		c.Journal = []Entry{}
	}
	if c.Phase == "" {
		c.Phase = PhaseFollowing
	}
	return c, nil
}

// PeekVersion reads schema_version from a bundle of any version without
// decoding the rest of it.
func PeekVersion(b []byte) (int, error) {
	if !gjson.ValidBytes(b) {
		return 0, fmt.Errorf("%w: invalid json", ErrCheckpointCorrupt)
	}
	v := gjson.GetBytes(b, "schema_version")
	if v.Type != gjson.Number || v.Int() <= 0 {
		return 0, fmt.Errorf("%w: missing schema_version", ErrCheckpointCorrupt)
	}
	return int(v.Int()), nil
}
