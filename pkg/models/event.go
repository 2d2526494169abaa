package models

// EventKind identifies the type of a captured input event.
type EventKind string

const (
	EventKeyDown EventKind = "key_down"
	EventKeyUp   EventKind = "key_up"
	EventText    EventKind = "text"
)

// InputEvent is a single timestamped keystroke or text fragment.
// Timestamp is in microseconds on the recorder's monotonic clock.
type InputEvent struct {
	Kind      EventKind `json:"kind"`
	Value     string    `json:"value"`
	Timestamp int64     `json:"ts_us"`
}
