package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Line offsets inside a worker record.
const (
	workerStatesLine     = 1
	workerEventsLine     = 2
	workerHappeningsLine = 3

	fieldDelim = ":"
	pairDelim  = ","
)

const (
	tagState = "s"
	tagEvent = "e"
)

// maxWarnings bounds the unknown-tag warnings kept per worker; Unknown still
// counts every occurrence.
const maxWarnings = 64

const maxLineSize = 16 << 20

// StateLookup resolves state names to numeric codes.
type StateLookup interface {
	StateCode(name string) (int, bool)
}

// DecodeOptions configures Decode.
type DecodeOptions struct {
	Path         string
	Worker       int
	CreationTime int64
	States       StateLookup
}

// Decode parses one worker record. Happenings keep file order.
func Decode(r io.Reader, opts DecodeOptions) (*Decoded, error) {
	if opts.States == nil {
		return nil, fmt.Errorf("decode %s: missing state dictionary", opts.Path)
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	out := &Decoded{Worker: opts.Worker}
	lineNo := 0
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		lineNo++
		idx := lineNo - 1
		switch {
		case idx == workerStatesLine:
			out.Names.States = splitNames(line)
			continue
		case idx == workerEventsLine:
			out.Names.Events = splitNames(line)
			continue
		case idx < workerHappeningsLine:
			continue
		}

		tag, _, _ := strings.Cut(line, fieldDelim)
		switch tag {
		case tagState:
			st, err := decodeState(line, lineNo, opts)
			if err != nil {
				return nil, err
			}
			out.Happenings = append(out.Happenings, st)
		case tagEvent:
			ev, err := decodeEvent(line, lineNo, opts)
			if err != nil {
				return nil, err
			}
			out.Happenings = append(out.Happenings, ev)
		default:
			out.Unknown++
			if len(out.Warnings) < maxWarnings {
				out.Warnings = append(out.Warnings, UnknownHappeningTagError{Path: opts.Path, Line: lineNo, Tag: tag})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", opts.Path, err)
	}
	if lineNo < workerHappeningsLine {
		return nil, &MalformedRecordError{Path: opts.Path, Line: lineNo, Reason: "record is missing its state and event name lines"}
	}
	return out, nil
}

// decodeState parses s:<id>:<parent>:<begin>:<end>:<name>[:<tag>].
func decodeState(line string, lineNo int, opts DecodeOptions) (StateInterval, error) {
	fields := strings.SplitN(line, fieldDelim, 7)
	if len(fields) < 6 {
		return StateInterval{}, &MalformedRecordError{Path: opts.Path, Line: lineNo, Reason: fmt.Sprintf("state line has %d fields, want at least 6", len(fields))}
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return StateInterval{}, malformedField(opts.Path, lineNo, "state id", err)
	}
	parent, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return StateInterval{}, malformedField(opts.Path, lineNo, "parent id", err)
	}
	begin, err := parseCounter(fields[3])
	if err != nil {
		return StateInterval{}, malformedField(opts.Path, lineNo, "begin time", err)
	}
	end, err := parseCounter(fields[4])
	if err != nil {
		return StateInterval{}, malformedField(opts.Path, lineNo, "end time", err)
	}
	if end <= begin {
		return StateInterval{}, &MalformedRecordError{Path: opts.Path, Line: lineNo, Reason: fmt.Sprintf("state ends (%d) at or before it begins (%d)", end, begin)}
	}
	code, ok := opts.States.StateCode(fields[5])
	if !ok {
		return StateInterval{}, &UnknownStateNameError{Path: opts.Path, Line: lineNo, Name: fields[5]}
	}
	st := StateInterval{
		Worker:   opts.Worker,
		ID:       id,
		ParentID: parent,
		Begin:    begin - opts.CreationTime,
		End:      end - opts.CreationTime,
		Code:     code,
	}
	if len(fields) == 7 {
		st.Tag = fields[6]
	}
	return st, nil
}

// decodeEvent parses e:<id>:<time>:<count>:<k=v,...,>[:<meta>].
func decodeEvent(line string, lineNo int, opts DecodeOptions) (EventRecord, error) {
	fields := strings.SplitN(line, fieldDelim, 6)
	if len(fields) < 5 {
		return EventRecord{}, &MalformedRecordError{Path: opts.Path, Line: lineNo, Reason: fmt.Sprintf("event line has %d fields, want at least 5", len(fields))}
	}
	ts, err := parseCounter(fields[2])
	if err != nil {
		return EventRecord{}, malformedField(opts.Path, lineNo, "event time", err)
	}
	ev := EventRecord{Worker: opts.Worker, Time: ts - opts.CreationTime}
	set := strings.TrimRight(fields[4], pairDelim)
	if set == "" {
		return ev, nil
	}
	for _, desc := range strings.Split(set, pairDelim) {
		name, value, ok := strings.Cut(desc, "=")
		if !ok {
			return EventRecord{}, &MalformedRecordError{Path: opts.Path, Line: lineNo, Reason: fmt.Sprintf("event entry %q is not name=value", desc)}
		}
		ev.Pairs = append(ev.Pairs, Pair{Name: name, Value: value})
	}
	return ev, nil
}

func malformedField(path string, line int, what string, err error) error {
	return &MalformedRecordError{Path: path, Line: line, Reason: fmt.Sprintf("%s: %v", what, err)}
}

// splitNames splits a colon-terminated name list.
func splitNames(line string) []string {
	line = strings.TrimRight(line, fieldDelim)
	if line == "" {
		return nil
	}
	return strings.Split(line, fieldDelim)
}

// ReadNameTables reads only the name lines of the worker record at path.
func ReadNameTables(path string) (NameTables, error) {
	// #nosec G304 -- worker paths are derived from the config record
	f, err := os.Open(path)
	if err != nil {
		return NameTables{}, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ParseNameTables(f, path)
}

// ParseNameTables reads the state and event name lines from a worker record.
func ParseNameTables(r io.Reader, path string) (NameTables, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var t NameTables
	idx := 0
	for idx <= workerEventsLine && sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		switch idx {
		case workerStatesLine:
			t.States = splitNames(line)
		case workerEventsLine:
			t.Events = splitNames(line)
		}
		idx++
	}
	if err := sc.Err(); err != nil {
		return NameTables{}, fmt.Errorf("read %s: %w", path, err)
	}
	if idx <= workerEventsLine {
		return NameTables{}, &MalformedRecordError{Path: path, Line: idx, Reason: "record is missing its state and event name lines"}
	}
	return t, nil
}
