package record

import "fmt"

// MalformedRecordError reports a line that cannot be decoded.
type MalformedRecordError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s:%d: malformed record: %s", e.Path, e.Line, e.Reason)
}

// UnknownStateNameError reports a state line naming a state that is missing
// from the dictionaries built from worker 0.
type UnknownStateNameError struct {
	Path string
	Line int
	Name string
}

func (e *UnknownStateNameError) Error() string {
	return fmt.Sprintf("%s:%d: unknown state name %q", e.Path, e.Line, e.Name)
}

// MissingWorkerFileError reports a configured worker without a record file.
type MissingWorkerFileError struct {
	Worker int
	Path   string
	Err    error
}

func (e *MissingWorkerFileError) Error() string {
	return fmt.Sprintf("worker %d: missing record file %s", e.Worker, e.Path)
}

func (e *MissingWorkerFileError) Unwrap() error { return e.Err }

// UnknownHappeningTagError describes a line with an unrecognized tag. It is
// collected as a warning and never aborts decoding.
type UnknownHappeningTagError struct {
	Path string `msgpack:"path"`
	Line int    `msgpack:"line"`
	Tag  string `msgpack:"tag"`
}

func (e *UnknownHappeningTagError) Error() string {
	return fmt.Sprintf("%s:%d: unknown happening tag %q", e.Path, e.Line, e.Tag)
}
