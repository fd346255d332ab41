package observability

import (
	"maps"
	"time"
)

// Level is how loud an event is. The console sink shows only LevelError
// unless checknode runs verbose; the journal keeps everything.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	// LevelWarn is for decisions an operator may have to follow up on, such
	// as a drain reason checknode refused to replace.
	LevelWarn Level = "warn"
	// LevelError is for failed probes, refused runs and broken local state.
	LevelError Level = "error"
)

// Severity ranks a level for LevelFilter. Unknown levels rank as info.
func (l Level) Severity() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// Event is one line of the run journal.
type Event struct {
	Timestamp time.Time              `json:"ts"`
	Level     Level                  `json:"level"`
	Node      string                 `json:"node,omitempty"`
	Component string                 `json:"component,omitempty"`
	Event     string                 `json:"event"`
	Message   string                 `json:"message,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Clone copies the event with its own Fields map. Each sink in a MultiLogger
// gets a clone.
func (e Event) Clone() Event {
	clone := e
	clone.Fields = maps.Clone(e.Fields)
	return clone
}

// WithDefault sets Fields[key] unless the event already carries that key.
// The receiver is modified in place.
func (e *Event) WithDefault(key string, value interface{}) {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{}, 1)
	}
	if _, ok := e.Fields[key]; !ok {
		e.Fields[key] = value
	}
}
