// Package resolve maps decoded event sets onto numeric Paraver event types.
package resolve

import (
	"fmt"

	"mirtrace/internal/prv"
	"mirtrace/internal/record"
)

// EventLookup resolves event names to numeric codes.
type EventLookup interface {
	EventCode(name string) (int, bool)
}

// Event is one resolved event line.
type Event struct {
	Worker int
	Time   int64
	Code   int
	Value  string
}

// Append renders the event as a .prv line.
func (e Event) Append(dst []byte) []byte {
	return prv.AppendEvent(dst, e.Worker, e.Time, e.Code, e.Value)
}

// UnknownEventNameError reports an event name missing from the dictionaries
// built from worker 0. It means the worker records disagree with each other.
type UnknownEventNameError struct {
	Worker int
	Time   int64
	Name   string
}

func (e *UnknownEventNameError) Error() string {
	return fmt.Sprintf("worker %d: unknown event name %q at time %d", e.Worker, e.Name, e.Time)
}

// Resolve returns one Event per pair of rec, in pair order.
func Resolve(rec record.EventRecord, dict EventLookup) ([]Event, error) {
	return AppendResolved(make([]Event, 0, len(rec.Pairs)), rec, dict)
}

// AppendResolved is Resolve appending to dst.
func AppendResolved(dst []Event, rec record.EventRecord, dict EventLookup) ([]Event, error) {
	for _, p := range rec.Pairs {
		code, ok := dict.EventCode(p.Name)
		if !ok {
			return dst, &UnknownEventNameError{Worker: rec.Worker, Time: rec.Time, Name: p.Name}
		}
		dst = append(dst, Event{Worker: rec.Worker, Time: rec.Time, Code: code, Value: p.Value})
	}
	return dst, nil
}
