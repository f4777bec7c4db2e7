package ledger

import (
	"fmt"
	"slices"
)

// Position identifies a record in the tracked chain. Two positions with the
// same height and different hashes belong to competing forks. The zero value
// means "nothing applied yet".
type Position struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// IsZero reports whether p is the empty cursor.
func (p Position) IsZero() bool {
	return p.Height == 0 && p.Hash == ""
}

func (p Position) String() string {
	if p.Hash == "" {
		return fmt.Sprintf("%d", p.Height)
	}
	return fmt.Sprintf("%d:%s", p.Height, p.Hash)
}

// RewardEntry is a single reward line inside a record payload.
type RewardEntry struct {
	Participant string `json:"participant"`
	Kind        string `json:"kind"`
	Amount      Amount `json:"amount"`
}

// Payload is the participant activity carried by a record.
type Payload struct {
	Rewards []RewardEntry `json:"rewards"`
}

// Participants returns the sorted set of participants named in the payload.
func (p Payload) Participants() []string {
	seen := make(map[string]struct{}, len(p.Rewards))
	out := make([]string, 0, len(p.Rewards))
	for _, r := range p.Rewards {
		if _, ok := seen[r.Participant]; ok {
			continue
		}
		seen[r.Participant] = struct{}{}
		out = append(out, r.Participant)
	}
	slices.Sort(out)
	return out
}

// Record is one unit of upstream input.
type Record struct {
	Position Position `json:"position"`
	Parent   Position `json:"parent"`
	Time     int64    `json:"time,omitempty"`
	Payload  Payload  `json:"payload"`
}

// Extends reports whether r can be applied on top of cursor. An empty cursor
// accepts any record whose parent sits at height zero.
func (r Record) Extends(cursor Position) bool {
	if cursor.IsZero() {
		return r.Parent.Height == 0
	}
	return r.Parent == cursor
}
