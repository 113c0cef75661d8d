// Package record decodes the files written by the MIR runtime recorder:
// the master configuration record and the per-worker trace records.
package record

// Kind discriminates the Happening variants.
type Kind uint8

const (
	// KindState marks a StateInterval.
	KindState Kind = iota + 1
	// KindEvent marks an EventRecord.
	KindEvent
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// NoParent is the parent id of a top-level state interval.
const NoParent uint64 = 0

// Happening is one decoded trace record. The only implementations are
// StateInterval and EventRecord.
type Happening interface {
	Kind() Kind
	happening()
}

// StateInterval is a time range during which a worker was in a named state.
// Times are relative to the runtime creation time.
type StateInterval struct {
	Worker   int    `msgpack:"w"`
	ID       uint64 `msgpack:"id"`
	ParentID uint64 `msgpack:"p"`
	Begin    int64  `msgpack:"b"`
	End      int64  `msgpack:"e"`
	Code     int    `msgpack:"c"`
	Tag      string `msgpack:"t,omitempty"`
}

// Kind implements Happening.
func (StateInterval) Kind() Kind { return KindState }

func (StateInterval) happening() {}

// HasTag reports whether the interval carries task metadata.
func (s StateInterval) HasTag() bool { return s.Tag != "" }

// TopLevel reports whether the interval has no parent.
func (s StateInterval) TopLevel() bool { return s.ParentID == NoParent }

// Pair is one name=value entry of an event set.
type Pair struct {
	Name  string `msgpack:"n"`
	Value string `msgpack:"v"`
}

// EventRecord is a set of simultaneous named values sampled at one instant.
type EventRecord struct {
	Worker int    `msgpack:"w"`
	Time   int64  `msgpack:"t"`
	Pairs  []Pair `msgpack:"p"`
}

// Kind implements Happening.
func (EventRecord) Kind() Kind { return KindEvent }

func (EventRecord) happening() {}

// NameTables holds the state and event names listed at the top of a worker
// record, in declaration order.
type NameTables struct {
	States []string `msgpack:"s"`
	Events []string `msgpack:"e"`
}

// Decoded is the result of decoding one worker record.
type Decoded struct {
	Worker     int
	Names      NameTables
	Happenings []Happening
	// Unknown counts lines whose tag is neither "s" nor "e".
	Unknown  int
	Warnings []UnknownHappeningTagError
}

// States returns the state intervals in file order.
func (d *Decoded) States() []StateInterval {
	out := make([]StateInterval, 0, len(d.Happenings))
	for _, h := range d.Happenings {
		if s, ok := h.(StateInterval); ok {
			out = append(out, s)
		}
	}
	return out
}

// Events returns the event records in file order.
func (d *Decoded) Events() []EventRecord {
	var out []EventRecord
	for _, h := range d.Happenings {
		if e, ok := h.(EventRecord); ok {
			out = append(out, e)
		}
	}
	return out
}
