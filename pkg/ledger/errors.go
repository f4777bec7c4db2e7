package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrUndoMismatch         = errors.New("undo does not match last applied record")
	ErrOutOfOrder           = errors.New("record does not follow last applied position")
	ErrReorgTooDeep         = errors.New("reorg too deep")
	ErrCheckpointCorrupt    = errors.New("checkpoint corrupt")
	ErrSchemaTooNew         = errors.New("checkpoint schema version too new")
	ErrUnknownMigrationPath = errors.New("unknown migration path")
	ErrScopeChanged         = errors.New("participant scope changed")
)

// PositionError attaches the record position, and the participant when one is
// involved, to an error raised while applying or undoing a record.
type PositionError struct {
	Op          string
	Position    Position
	Participant string
	Err         error
}

func (e *PositionError) Error() string {
	if e.Participant != "" {
		return fmt.Sprintf("%s record %s participant %q: %v", e.Op, e.Position, e.Participant, e.Err)
	}
	return fmt.Sprintf("%s record %s: %v", e.Op, e.Position, e.Err)
}

func (e *PositionError) Unwrap() error { return e.Err }

// VersionError carries the schema versions involved in a load or migration failure.
type VersionError struct {
	From int
	To   int
	Err  error
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("schema version %d -> %d: %v", e.From, e.To, e.Err)
}

func (e *VersionError) Unwrap() error { return e.Err }

// ReorgError describes a reorg that could not be reconciled.
type ReorgError struct {
	Cursor   Position
	Depth    int
	MaxDepth int
	Err      error
}

func (e *ReorgError) Error() string {
	return fmt.Sprintf("reorg at cursor %s: depth %d exceeds max %d: %v", e.Cursor, e.Depth, e.MaxDepth, e.Err)
}

func (e *ReorgError) Unwrap() error { return e.Err }
