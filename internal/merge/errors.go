package merge

import (
	"fmt"
	"strings"
)

// WorkerFailure names one failed worker and its reason.
type WorkerFailure struct {
	Worker int
	Err    error
}

func (f WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d: %v", f.Worker, f.Err)
}

func (f WorkerFailure) Unwrap() error { return f.Err }

// RunError reports a conversion where at least one worker failed. No merged
// trace is written in that case.
type RunError struct {
	Workers  int
	Failures []WorkerFailure
}

func (e *RunError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d workers failed", len(e.Failures), e.Workers)
	for _, f := range e.Failures {
		sb.WriteString("; ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}

// Unwrap exposes every worker error to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}
