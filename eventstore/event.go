package eventstore

import "time"

// EventToStore represents an event that is to be appended to the event log
type EventToStore struct {
	Event any

	// Optional
	ID         string
	Meta       map[string]string
	OccurredOn time.Time
}

// StoredEvent holds a durably stored event along with its log coordinates -
// the global sequence and the per-stream version assigned at append time
type StoredEvent struct {
	Event any
	Meta  map[string]string

	ID            string
	Sequence      uint64
	Type          string
	StreamID      string
	StreamVersion int
	OccurredOn    time.Time
}
