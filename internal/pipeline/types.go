package pipeline

import "time"

// State is a worker's position in the conversion state machine:
//
//	Pending -> Decoding -> Flattening -> ResolvingEvents -> WrittenLocal -> Merged
//
// Any non-terminal state may move to Failed.
type State string

const (
	// StatePending is the initial state.
	StatePending State = "pending"
	// StateDecoding reads and decodes the worker record.
	StateDecoding State = "decoding"
	// StateFlattening flattens state intervals.
	StateFlattening State = "flattening"
	// StateResolving resolves event names.
	StateResolving State = "resolving"
	// StateWrittenLocal means the worker partial is on disk.
	StateWrittenLocal State = "written"
	// StateMerged means the partial was appended to the merged trace.
	StateMerged State = "merged"
	// StateFailed is terminal; the outcome carries the reason.
	StateFailed State = "failed"
)

// Done reports whether no worker task is running for this state anymore.
func (s State) Done() bool {
	return s == StateWrittenLocal || s == StateMerged || s == StateFailed
}

// Event reports a worker state transition.
type Event struct {
	Worker  int
	State   State
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Implementations must be
// goroutine-safe; workers publish concurrently.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// Timings holds the time a worker spent in each state.
type Timings struct {
	states map[State]time.Duration
}

func (t *Timings) ensure() {
	if t.states == nil {
		t.states = make(map[State]time.Duration)
	}
}

// Set stores a duration for the given state.
func (t *Timings) Set(state State, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.states[state] = dur
}

// Has reports whether a duration for state is recorded.
func (t Timings) Has(state State) bool {
	if t.states == nil {
		return false
	}
	_, ok := t.states[state]
	return ok
}

// Duration returns the recorded duration for state.
func (t Timings) Duration(state State) time.Duration {
	if t.states == nil {
		return 0
	}
	return t.states[state]
}

// Sum returns the sum of durations across the provided states.
func (t Timings) Sum(states ...State) time.Duration {
	if t.states == nil {
		return 0
	}
	var total time.Duration
	for _, state := range states {
		total += t.states[state]
	}
	return total
}
