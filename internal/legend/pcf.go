package legend

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const pcfPreamble = "DEFAULT_OPTIONS\n\n" +
	"LEVEL               THREAD\n" +
	"UNITS               NANOSEC\n" +
	"LOOK_BACK           100\n" +
	"SPEED               1\n" +
	"FLAG_ICONS          ENABLED\n" +
	"NUM_OF_STATE_COLORS 1000\n" +
	"YMAX_SCALE          37\n\n\n" +
	"DEFAULT_SEMANTIC\n\n" +
	"THREAD_FUNC          State As Is\n\n"

// StateEntry is one row of the STATES block.
type StateEntry struct {
	Index int
	Name  string
}

// ColorEntry is one row of the STATES_COLOR block.
type ColorEntry struct {
	Index int
	Color Color
}

// EventEntry is one EVENT_TYPE block.
type EventEntry struct {
	Index int
	Code  int
	Name  string
}

// Legend is the content of the .pcf artifact.
type Legend struct {
	States []StateEntry
	Colors []ColorEntry
	Events []EventEntry
}

// New lays out the legend for d. The colour table has one entry per state,
// and at least one per palette colour.
func New(d Dictionaries, p Palette) Legend {
	var l Legend
	for i, name := range d.states {
		l.States = append(l.States, StateEntry{Index: i, Name: name})
	}
	n := max(len(d.states), len(p.Colors))
	if len(p.Colors) == 0 {
		n = 0
	}
	for i := range n {
		l.Colors = append(l.Colors, ColorEntry{Index: i, Color: p.At(i)})
	}
	for i, name := range d.events {
		l.Events = append(l.Events, EventEntry{Index: i, Code: EventBase + i, Name: name})
	}
	return l
}

// HasState reports whether code is listed in the STATES block.
func (l Legend) HasState(code int) bool {
	return code >= 0 && code < len(l.States)
}

// HasEvent reports whether code is listed in an EVENT_TYPE block.
func (l Legend) HasEvent(code int) bool {
	for _, e := range l.Events {
		if e.Code == code {
			return true
		}
	}
	return false
}

// WriteTo renders the legend in .pcf format.
func (l Legend) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	fmt.Fprint(cw, pcfPreamble)
	fmt.Fprint(cw, "\nSTATES\n")
	for _, s := range l.States {
		fmt.Fprintf(cw, "%d\t%s\n", s.Index, s.Name)
	}
	fmt.Fprint(cw, "\nSTATES_COLOR\n")
	for _, c := range l.Colors {
		fmt.Fprintf(cw, "%d\t%s\n", c.Index, c.Color)
	}
	for _, e := range l.Events {
		fmt.Fprint(cw, "\nEVENT_TYPE\n")
		fmt.Fprintf(cw, "%d\t%d\t%s\n", e.Index, e.Code, e.Name)
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}

// WriteFile writes the legend to path, replacing it atomically.
func WriteFile(path string, d Dictionaries, p Palette) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".pcf-*")
	if err != nil {
		return fmt.Errorf("create legend: %w", err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()
	// #nosec G302 -- the legend is read by Paraver, not a secret
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		return fmt.Errorf("chmod legend: %w", err)
	}
	if _, err := New(d, p).WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write legend: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close legend: %w", err)
	}
	return os.Rename(tmp, path)
}

// countingWriter remembers the first write error so the renderer can use
// fmt.Fprintf without checking every call.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
