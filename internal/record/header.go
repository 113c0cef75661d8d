package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Line offsets inside the master configuration record.
const (
	headerCreationLine = iota
	headerDestructionLine
	headerWorkersLine
	headerLines
)

// Header is the run-wide information from the master configuration record.
type Header struct {
	CreationTime    int64
	DestructionTime int64
	Workers         int
}

// Duration returns the run length in recorder time units.
func (h Header) Duration() int64 {
	return h.DestructionTime - h.CreationTime
}

// ReadHeader reads the master configuration record at path.
func ReadHeader(path string) (Header, error) {
	// #nosec G304 -- path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("open config record: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ParseHeader(f, path)
}

// ParseHeader decodes the three key=value lines of a configuration record.
// Key names are not checked; the value is the text after the last '='.
func ParseHeader(r io.Reader, path string) (Header, error) {
	sc := bufio.NewScanner(r)
	var values [headerLines]string
	n := 0
	for n < headerLines && sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		idx := strings.LastIndexByte(line, '=')
		if idx < 0 {
			return Header{}, &MalformedRecordError{Path: path, Line: n + 1, Reason: "expected key=value"}
		}
		values[n] = strings.TrimSpace(line[idx+1:])
		n++
	}
	if err := sc.Err(); err != nil {
		return Header{}, fmt.Errorf("read config record: %w", err)
	}
	if n < headerLines {
		return Header{}, &MalformedRecordError{Path: path, Line: n + 1, Reason: fmt.Sprintf("expected %d lines, got %d", headerLines, n)}
	}

	creation, err := parseCounter(values[headerCreationLine])
	if err != nil {
		return Header{}, &MalformedRecordError{Path: path, Line: headerCreationLine + 1, Reason: "creation time: " + err.Error()}
	}
	destruction, err := parseCounter(values[headerDestructionLine])
	if err != nil {
		return Header{}, &MalformedRecordError{Path: path, Line: headerDestructionLine + 1, Reason: "destruction time: " + err.Error()}
	}
	workers, err := strconv.Atoi(values[headerWorkersLine])
	if err != nil {
		return Header{}, &MalformedRecordError{Path: path, Line: headerWorkersLine + 1, Reason: "worker count: " + err.Error()}
	}

	h := Header{CreationTime: creation, DestructionTime: destruction, Workers: workers}
	if h.Workers <= 0 {
		return Header{}, &MalformedRecordError{Path: path, Line: headerWorkersLine + 1, Reason: fmt.Sprintf("worker count must be positive, got %d", h.Workers)}
	}
	if h.DestructionTime < h.CreationTime {
		return Header{}, &MalformedRecordError{Path: path, Line: headerDestructionLine + 1, Reason: "destruction time precedes creation time"}
	}
	return h, nil
}

// parseCounter parses a raw recorder cycle counter. Counters are written as
// unsigned 64-bit values but all arithmetic is done on int64.
func parseCounter(s string) (int64, error) {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return safecast.Conv[int64](u)
}
