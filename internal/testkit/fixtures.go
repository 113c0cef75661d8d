// Package testkit writes recorder trace fixtures and checks converter output
// invariants. It is shared by the package tests.
package testkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Worker describes one worker record. States and Events are the name tables;
// Lines are the happening lines written after them.
type Worker struct {
	States []string
	Events []string
	Lines  []string
}

// Trace describes a full recorder output: the configuration record and one
// record per worker.
type Trace struct {
	Prefix       string
	CreationTime int64
	Destruction  int64
	Workers      []Worker
	// Skip lists worker ids whose record is not written.
	Skip []int
}

// ConfigName returns the configuration record file name for prefix.
func ConfigName(prefix string) string { return prefix + "-config.rec" }

// WorkerName returns the worker record file name for prefix.
func WorkerName(prefix string, w int) string { return fmt.Sprintf("%s-%d.rec", prefix, w) }

// Write stores tr under dir and returns the configuration record path.
func Write(dir string, tr Trace) (string, error) {
	prefix := tr.Prefix
	if prefix == "" {
		prefix = "mir-recorder-trace"
	}
	cfg := filepath.Join(dir, ConfigName(prefix))
	header := fmt.Sprintf("creation_cycle=%d\ndestruction_cycle=%d\nnum_workers=%d\n",
		tr.CreationTime, tr.Destruction, len(tr.Workers))
	if err := os.WriteFile(cfg, []byte(header), 0o644); err != nil {
		return "", err
	}
	for i, w := range tr.Workers {
		if skipped(tr.Skip, i) {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%%recorder_id=%d%%\n", i)
		b.WriteString(nameLine(w.States))
		b.WriteString(nameLine(w.Events))
		for _, l := range w.Lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, WorkerName(prefix, i)), []byte(b.String()), 0o644); err != nil {
			return "", err
		}
	}
	return cfg, nil
}

func skipped(ids []int, w int) bool {
	for _, id := range ids {
		if id == w {
			return true
		}
	}
	return false
}

func nameLine(names []string) string {
	if len(names) == 0 {
		return "\n"
	}
	return strings.Join(names, ":") + ":\n"
}

// State renders a state line. Times are absolute counter values.
func State(id, parent uint64, begin, end int64, name, tag string) string {
	return fmt.Sprintf("s:%d:%d:%d:%d:%s:%s", id, parent, begin, end, name, tag)
}

// Event renders an event line from name/value pairs.
func Event(id int, ts int64, pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "%s=%s,", pairs[i], pairs[i+1])
	}
	return fmt.Sprintf("e:%d:%d:%d:%s:", id, ts, len(pairs)/2, b.String())
}
