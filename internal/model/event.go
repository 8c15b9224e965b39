package model

import "time"

// EventKind identifies a mutation event.
type EventKind string

const (
	KindUpdate EventKind = "update"
	KindInsert EventKind = "insert"
)

// Event is a mutation emitted by an update source.
type Event struct {
	Kind       EventKind
	Update     UpdateEvent // Set when Kind == KindUpdate
	Insert     Record      // Set when Kind == KindInsert
	Source     string      // Producer name, for logging
	ReceivedAt time.Time   // Local receive time
}

// UpdateEvent replaces one mutable field of one record.
type UpdateEvent struct {
	ID    string
	Field string
	Value float64
}

// NewUpdate builds an update event.
func NewUpdate(id, field string, value float64) Event {
	return Event{
		Kind:   KindUpdate,
		Update: UpdateEvent{ID: id, Field: field, Value: value},
	}
}

// NewInsert builds an insert event.
func NewInsert(r Record) Event {
	return Event{
		Kind:   KindInsert,
		Insert: r,
	}
}
