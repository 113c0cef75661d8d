// Package prv renders and parses Paraver trace (.prv) lines.
//
// Worker ids are zero-based everywhere in mirtrace; Paraver numbers threads
// from one, so every function here takes the zero-based id and shifts it.
package prv

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record kinds as written in the first field of a body line.
const (
	KindState = 1
	KindEvent = 2
)

// HeaderDateLayout is the write-date layout inside the header.
const HeaderDateLayout = "02/01/2006 at 15:04"

// Header renders the header line for a single-node trace with one thread
// per worker. The date is rendered in UTC.
func Header(written time.Time, duration int64, workers int) string {
	return fmt.Sprintf("#Paraver (%s):%d:1(%d):1:1(%d:1)\n",
		written.UTC().Format(HeaderDateLayout), duration, workers, workers)
}

// appendPrefix writes "<kind>:<w>:1:1:<w>:".
func appendPrefix(dst []byte, kind, worker int) []byte {
	thread := int64(worker) + 1
	dst = strconv.AppendInt(dst, int64(kind), 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, thread, 10)
	dst = append(dst, ":1:1:"...)
	dst = strconv.AppendInt(dst, thread, 10)
	return append(dst, ':')
}

// AppendState appends a state record line.
func AppendState(dst []byte, worker int, begin, end int64, code int) []byte {
	dst = appendPrefix(dst, KindState, worker)
	dst = strconv.AppendInt(dst, begin, 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, end, 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(code), 10)
	return append(dst, '\n')
}

// AppendEvent appends an event record line. The value is written verbatim.
func AppendEvent(dst []byte, worker int, ts int64, code int, value string) []byte {
	dst = appendPrefix(dst, KindEvent, worker)
	dst = strconv.AppendInt(dst, ts, 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(code), 10)
	dst = append(dst, ':')
	dst = append(dst, value...)
	return append(dst, '\n')
}

// AppendTask appends a task-metadata line: worker=<w>:<begin>:<end>:<code>:<tag>.
func AppendTask(dst []byte, worker int, begin, end int64, code int, tag string) []byte {
	dst = append(dst, "worker="...)
	dst = strconv.AppendInt(dst, int64(worker)+1, 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, begin, 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, end, 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(code), 10)
	dst = append(dst, ':')
	dst = append(dst, tag...)
	return append(dst, '\n')
}

// Line is a parsed body line. For state lines Begin/End are set; for event
// lines Begin holds the timestamp and Value the literal value.
type Line struct {
	Kind   int
	Worker int
	Begin  int64
	End    int64
	Code   int
	Value  string
}

// ParseLine parses a state or event body line written by this package.
func ParseLine(s string) (Line, error) {
	s = strings.TrimRight(s, "\r\n")
	fields := strings.SplitN(s, ":", 8)
	if len(fields) != 8 {
		return Line{}, fmt.Errorf("prv line %q: want 8 fields, got %d", s, len(fields))
	}
	kind, err := strconv.Atoi(fields[0])
	if err != nil || (kind != KindState && kind != KindEvent) {
		return Line{}, fmt.Errorf("prv line %q: unknown record kind %q", s, fields[0])
	}
	thread, err := strconv.Atoi(fields[1])
	if err != nil || thread < 1 {
		return Line{}, fmt.Errorf("prv line %q: bad thread %q", s, fields[1])
	}
	l := Line{Kind: kind, Worker: thread - 1}
	if l.Begin, err = strconv.ParseInt(fields[5], 10, 64); err != nil {
		return Line{}, fmt.Errorf("prv line %q: time: %w", s, err)
	}
	if kind == KindState {
		if l.End, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
			return Line{}, fmt.Errorf("prv line %q: end: %w", s, err)
		}
		if l.Code, err = strconv.Atoi(fields[7]); err != nil {
			return Line{}, fmt.Errorf("prv line %q: state: %w", s, err)
		}
		return l, nil
	}
	if l.Code, err = strconv.Atoi(fields[6]); err != nil {
		return Line{}, fmt.Errorf("prv line %q: event type: %w", s, err)
	}
	l.Value = fields[7]
	return l, nil
}
