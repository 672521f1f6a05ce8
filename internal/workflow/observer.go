package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Observer receives structured events from a run.
type Observer interface {
	Printf(format string, v ...interface{})

	// Event emits a structured event
	Event(event Event)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured workflow event.
type Event struct {
	Type      EventType
	Phase     PhaseName
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType represents the type of workflow event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventCleanupStarted   EventType = "cleanup.started"
	EventCleanupCompleted EventType = "cleanup.completed"
	EventCleanupFailed    EventType = "cleanup.failed"

	EventRecoveryStarted   EventType = "recovery.started"
	EventRecoverySucceeded EventType = "recovery.succeeded"
	EventRecoveryFailed    EventType = "recovery.failed"
)

// LogObserver implements Observer on top of a logr.Logger. Events without
// a timestamp are stamped from its clock.
type LogObserver struct {
	log           logr.Logger
	clock         clock.PassiveClock
	contextFields map[string]string
}

// NewLogObserver creates an observer writing to log.
func NewLogObserver(log logr.Logger, clk clock.PassiveClock) *LogObserver {
	return &LogObserver{
		log:           log,
		clock:         clk,
		contextFields: make(map[string]string),
	}
}

// Printf implements Observer.
func (o *LogObserver) Printf(format string, v ...interface{}) {
	o.log.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = o.clock.Now()
	}

	fields := make(map[string]string, len(o.contextFields)+len(event.Fields))
	for k, v := range o.contextFields {
		fields[k] = v
	}
	for k, v := range event.Fields {
		fields[k] = v
	}

	kv := []interface{}{"event", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", string(event.Phase))
	}
	kv = append(kv, "at", event.Timestamp.UTC().Format(time.RFC3339))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	o.log.Info(event.Message, kv...)
}

// WithFields implements Observer.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &LogObserver{
		log:           o.log,
		clock:         o.clock,
		contextFields: newFields,
	}
}

// logPhaseStart logs a phase start event.
func logPhaseStart(observer Observer, phase PhaseName, ordinal, total int) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: fmt.Sprintf("starting (%d/%d)", ordinal, total),
	})
}

// logPhaseComplete logs a phase completion event.
func logPhaseComplete(observer Observer, phase PhaseName, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// logPhaseFailed logs a phase failure event.
func logPhaseFailed(observer Observer, phase PhaseName, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}
