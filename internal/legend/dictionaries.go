// Package legend builds the numeric state/event dictionaries from worker 0's
// name tables and renders the Paraver configuration (.pcf) legend.
package legend

import (
	"crypto/sha256"
	"slices"

	"mirtrace/internal/record"
)

// EventBase is the first numeric code assigned to event types.
const EventBase = 540680

// Dictionaries maps state and event names to the numeric codes used in the
// trace. A Dictionaries value is immutable once built and is safe to share
// between goroutines.
type Dictionaries struct {
	states     []string
	events     []string
	stateCodes map[string]int
	eventCodes map[string]int
}

// Build assigns state codes by list position and event codes by list
// position plus EventBase. A name listed twice resolves to its last position.
func Build(t record.NameTables) Dictionaries {
	d := Dictionaries{
		states:     slices.Clone(t.States),
		events:     slices.Clone(t.Events),
		stateCodes: make(map[string]int, len(t.States)),
		eventCodes: make(map[string]int, len(t.Events)),
	}
	for i, name := range d.states {
		d.stateCodes[name] = i
	}
	for i, name := range d.events {
		d.eventCodes[name] = EventBase + i
	}
	return d
}

// StateCode returns the code for a state name.
func (d Dictionaries) StateCode(name string) (int, bool) {
	c, ok := d.stateCodes[name]
	return c, ok
}

// EventCode returns the code for an event name.
func (d Dictionaries) EventCode(name string) (int, bool) {
	c, ok := d.eventCodes[name]
	return c, ok
}

// StateName returns the name for a state code, or "" when out of range.
func (d Dictionaries) StateName(code int) string {
	if code < 0 || code >= len(d.states) {
		return ""
	}
	return d.states[code]
}

// NumStates returns the number of declared states.
func (d Dictionaries) NumStates() int { return len(d.states) }

// NumEvents returns the number of declared event types.
func (d Dictionaries) NumEvents() int { return len(d.events) }

// States returns a copy of the state names in code order.
func (d Dictionaries) States() []string { return slices.Clone(d.states) }

// Events returns a copy of the event names in declaration order.
func (d Dictionaries) Events() []string { return slices.Clone(d.events) }

// Fingerprint digests the name tables. Equal tables give equal digests.
func (d Dictionaries) Fingerprint() [sha256.Size]byte {
	h := sha256.New()
	for _, s := range d.states {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	for _, e := range d.events {
		h.Write([]byte(e))
		h.Write([]byte{0})
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
