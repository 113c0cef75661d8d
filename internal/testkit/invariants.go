package testkit

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"mirtrace/internal/flatten"
	"mirtrace/internal/legend"
	"mirtrace/internal/prv"
)

// CheckTimeline verifies that segments of each worker do not overlap and
// that no segment runs backwards.
func CheckTimeline(segs []flatten.Segment) error {
	byWorker := make(map[int][]flatten.Segment)
	for _, s := range segs {
		if s.End < s.Begin {
			return fmt.Errorf("worker %d: segment [%d,%d) runs backwards", s.Worker, s.Begin, s.End)
		}
		byWorker[s.Worker] = append(byWorker[s.Worker], s)
	}
	for w, list := range byWorker {
		slices.SortFunc(list, func(a, b flatten.Segment) int { return cmp.Compare(a.Begin, b.Begin) })
		for i := 1; i < len(list); i++ {
			if list[i].Begin < list[i-1].End {
				return fmt.Errorf("worker %d: [%d,%d) overlaps [%d,%d)", w,
					list[i].Begin, list[i].End, list[i-1].Begin, list[i-1].End)
			}
		}
	}
	return nil
}

// TraceSummary counts the lines of a merged trace.
type TraceSummary struct {
	Workers  int
	Duration int64
	States   int
	Events   int
}

// CheckTrace parses a merged .prv stream and verifies that every state and
// event code is defined by lg and that worker numbers are within the header.
func CheckTrace(r io.Reader, lg legend.Legend) (TraceSummary, error) {
	var sum TraceSummary
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if lineNo == 1 {
			if err := parseHeader(text, &sum); err != nil {
				return sum, err
			}
			continue
		}
		ln, err := prv.ParseLine(text)
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ln.Worker >= sum.Workers {
			return sum, fmt.Errorf("line %d: worker %d outside header (%d workers)", lineNo, ln.Worker+1, sum.Workers)
		}
		switch ln.Kind {
		case prv.KindState:
			if !lg.HasState(ln.Code) {
				return sum, fmt.Errorf("line %d: state code %d not in legend", lineNo, ln.Code)
			}
			sum.States++
		case prv.KindEvent:
			if !lg.HasEvent(ln.Code) {
				return sum, fmt.Errorf("line %d: event code %d not in legend", lineNo, ln.Code)
			}
			sum.Events++
		}
	}
	if err := sc.Err(); err != nil {
		return sum, err
	}
	if lineNo == 0 {
		return sum, fmt.Errorf("empty trace")
	}
	return sum, nil
}

// parseHeader reads "#Paraver (date):<duration>:1(<n>):1:1(<n>:1)".
func parseHeader(text string, sum *TraceSummary) error {
	if !strings.HasPrefix(text, "#Paraver (") {
		return fmt.Errorf("missing Paraver header: %q", text)
	}
	_, rest, ok := strings.Cut(text, "):")
	if !ok {
		return fmt.Errorf("malformed header: %q", text)
	}
	var n1, n2 int
	if _, err := fmt.Sscanf(rest, "%d:1(%d):1:1(%d:1)", &sum.Duration, &n1, &n2); err != nil {
		return fmt.Errorf("malformed header %q: %w", text, err)
	}
	if n1 != n2 {
		return fmt.Errorf("header worker counts differ: %d vs %d", n1, n2)
	}
	sum.Workers = n1
	return nil
}
