package ledger

import "maps"

// Mark records the LastApplied/Streak pair a participant had before a record
// started a new streak. Since is the height of that record.
type Mark struct {
	Since       uint64   `json:"since"`
	LastApplied Position `json:"last_applied"`
	Streak      uint64   `json:"streak"`
}

// ParticipantState is the accumulated ledger entry of one participant.
type ParticipantState struct {
	Cumulative  Amount            `json:"cumulative"`
	LastApplied Position          `json:"last_applied"`
	Streak      uint64            `json:"streak"`
	Records     uint64            `json:"records"`
	ByKind      map[string]Amount `json:"by_kind,omitempty"`
	Trail       []Mark            `json:"trail,omitempty"`
}

// Clone returns a deep copy of s.
func (s ParticipantState) Clone() ParticipantState {
	out := s
	out.ByKind = maps.Clone(s.ByKind)
	if s.Trail != nil {
		out.Trail = append([]Mark(nil), s.Trail...)
	}
	return out
}

// IsZero reports whether s equals the lazily created initial state.
func (s ParticipantState) IsZero() bool {
	return s.Cumulative.IsZero() &&
		s.LastApplied.IsZero() &&
		s.Streak == 0 &&
		s.Records == 0 &&
		len(s.ByKind) == 0 &&
		len(s.Trail) == 0
}

// Equal compares two states by value.
func (s ParticipantState) Equal(o ParticipantState) bool {
	if !s.Cumulative.Equal(o.Cumulative) ||
		s.LastApplied != o.LastApplied ||
		s.Streak != o.Streak ||
		s.Records != o.Records ||
		len(s.ByKind) != len(o.ByKind) ||
		len(s.Trail) != len(o.Trail) {
		return false
	}
	for k, v := range s.ByKind {
		w, ok := o.ByKind[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	for i := range s.Trail {
		if s.Trail[i] != o.Trail[i] {
			return false
		}
	}
	return true
}

// Ledger maps participants to their state.
type Ledger map[string]ParticipantState

// Clone returns a deep copy of l.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v.Clone()
	}
	return out
}

// Equal compares two ledgers by value.
func (l Ledger) Equal(o Ledger) bool {
	if len(l) != len(o) {
		return false
	}
	for k, v := range l {
		w, ok := o[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}
