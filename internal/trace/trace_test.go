package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelShouldEmit(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeRun, false},
		{LevelPhase, ScopeStage, true},
		{LevelPhase, ScopeWorker, false},
		{LevelDetail, ScopeWorker, true},
		{LevelDetail, ScopeRecord, false},
		{LevelError, ScopeRecord, true},
		{LevelDebug, ScopeRecord, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
}

func TestParseLevelModeFormat(t *testing.T) {
	if l, err := ParseLevel("Detail"); err != nil || l != LevelDetail {
		t.Fatalf("ParseLevel = %v, %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("ParseLevel(loud) should fail")
	}
	if m, err := ParseMode("both"); err != nil || m != ModeBoth {
		t.Fatalf("ParseMode = %v, %v", m, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatNDJSON {
		t.Fatalf("ParseFormat = %v, %v", f, err)
	}
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)

	run := Begin(tr, ScopeRun, "convert", 0)
	w := Begin(tr, ScopeWorker, "worker:3", run.ID())
	w.WithExtra("segments", "12").End("")
	Begin(tr, ScopeRecord, "hidden", w.ID()).End("")
	run.End("ok")

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "→ convert") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[2], "← worker:3 {segments=12}") {
		t.Errorf("line 2 = %q", lines[2])
	}
	if !strings.Contains(lines[3], "← convert (ok)") {
		t.Errorf("line 3 = %q", lines[3])
	}
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatNDJSON)
	Point(tr, ScopeStage, "legend", "7 states", 0)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if got["kind"] != "point" || got["scope"] != "stage" || got["detail"] != "7 states" {
		t.Fatalf("unexpected event: %v", got)
	}
}

func TestRingTracerWraps(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i := range 5 {
		r.Emit(&Event{Seq: uint64(i), Scope: ScopeRun})
	}
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	for i, ev := range snap {
		if ev.Seq != uint64(i+2) {
			t.Errorf("snap[%d].Seq = %d, want %d", i, ev.Seq, i+2)
		}
	}
}

func TestNewBothExposesRing(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelDebug, Mode: ModeBoth, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Point(tr, ScopeWorker, "worker:0", "failed", 0)
	if !strings.Contains(buf.String(), "worker:0") {
		t.Fatalf("stream = %q", buf.String())
	}

	r, ok := Ring(tr)
	if !ok {
		t.Fatal("Ring not found")
	}
	var dump bytes.Buffer
	if err := r.Dump(&dump, FormatText); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(dump.String(), "worker:0 (failed)") {
		t.Fatalf("dump = %q", dump.String())
	}
}

func TestErrorLevelStaysInRing(t *testing.T) {
	var buf bytes.Buffer
	if _, err := New(Config{Level: LevelError, Mode: ModeStream, Output: &buf}); err == nil {
		t.Fatal("New(error, stream) should fail")
	}

	tr, err := New(Config{Level: LevelError, Mode: ModeBoth, Output: &buf})
	if err != nil {
		t.Fatalf("New(error, both): %v", err)
	}
	Point(tr, ScopeRecord, "cache", "ignoring entry", 0)
	if buf.Len() != 0 {
		t.Fatalf("error level streamed %q", buf.String())
	}
	r, ok := Ring(tr)
	if !ok {
		t.Fatal("Ring not found")
	}
	if n := len(r.Snapshot()); n != 1 {
		t.Fatalf("ring holds %d events, want 1", n)
	}
}

func TestOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr != Nop {
		t.Fatalf("New(off) = %v, %v", tr, err)
	}
	s := Begin(tr, ScopeRun, "x", 0)
	if s.ID() != 0 {
		t.Fatalf("disabled span has id %d", s.ID())
	}
	if s.End("") < 0 {
		t.Fatal("negative duration")
	}
}

func TestContextCarriesTracerAndParent(t *testing.T) {
	ring := NewRingTracer(8, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatal("tracer not carried")
	}
	s := Begin(ring, ScopeRun, "run", 0)
	ctx = WithSpan(ctx, s)
	if ParentID(ctx) != s.ID() {
		t.Fatalf("ParentID = %d, want %d", ParentID(ctx), s.ID())
	}
	if FromContext(context.Background()) != Nop {
		t.Fatal("empty context should give Nop")
	}
}
