package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1 // span start
	KindSpanEnd                   // span end
	KindPoint                     // instant event
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeRun    Scope = iota + 1 // whole conversion
	ScopeStage                   // legend, workers, merge
	ScopeWorker                  // one worker pipeline
	ScopeRecord                  // individual trace records
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeRun:
		return "run"
	case ScopeStage:
		return "stage"
	case ScopeWorker:
		return "worker"
	case ScopeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Event is a single trace event.
type Event struct {
	Time     time.Time         // wall-clock timestamp
	Seq      uint64            // global sequence number
	Kind     Kind              // event kind
	Scope    Scope             // granularity
	SpanID   uint64            // span identifier
	ParentID uint64            // parent span, 0 for roots
	GID      uint64            // goroutine that opened the span
	Name     string            // e.g. "merge", "worker:3"
	Detail   string            // optional detail message
	Extra    map[string]string // extra key-value pairs
}
