package models

import (
	"encoding/json"
	"time"
)

// FetchRequest describes one listings request.
type FetchRequest struct {
	Start   int
	Limit   int
	Convert string
}

// Snapshot is the raw result of one fetch: an ordered list of asset entries
// exactly as delivered by the source.
type Snapshot struct {
	Source    string
	FetchedAt time.Time
	Entries   []json.RawMessage
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Batch is the normalized form of one snapshot.
type Batch struct {
	RunID       string
	Iteration   int
	CollectedAt time.Time
	Rows        []Row
}
