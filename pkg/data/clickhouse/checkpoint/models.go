package checkpoint

import "github.com/ava-labs/rewards-follower/pkg/checkpointer"

// row mirrors the columns read back from the table.
type row struct {
	Key           string
	SchemaVersion uint32
	Height        uint64
	Hash          string
	Bundle        string
	Timestamp     int64
}

func (r row) entry() checkpointer.Entry {
	return checkpointer.Entry{
		Key:           r.Key,
		SchemaVersion: int(r.SchemaVersion),
		Height:        r.Height,
		Hash:          r.Hash,
		Bundle:        []byte(r.Bundle),
		Timestamp:     r.Timestamp,
	}
}
