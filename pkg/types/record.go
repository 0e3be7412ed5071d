package types

import (
	"encoding/json"
	"time"
)

// Record is a single captured entry in a session stream. Records are
// immutable once created; the payload is opaque to the storage layer.
type Record struct {
	Index     uint64          `json:"index"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// View is the result of fetching one page of a session stream.
// Start and End are inclusive record indices; an empty stream is
// reported as TotalPages == 0 with no records.
type View struct {
	Records    []Record
	Start      uint64
	End        uint64
	PageNumber int
	TotalPages int
	PendingNew int
}

// Empty reports whether the view describes an empty stream.
func (v View) Empty() bool {
	return v.TotalPages == 0
}
