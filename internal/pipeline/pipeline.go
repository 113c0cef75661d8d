// Package pipeline runs the per-worker conversion: decode the worker record,
// flatten its states, resolve its events, and write a worker-local partial.
// Workers run on a fixed-size pool and never share mutable state.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mirtrace/internal/cache"
	"mirtrace/internal/flatten"
	"mirtrace/internal/legend"
	"mirtrace/internal/prv"
	"mirtrace/internal/record"
	"mirtrace/internal/resolve"
	"mirtrace/internal/trace"
)

const (
	// LocalTraceExt is the extension of a worker's trace partial.
	LocalTraceExt = ".local_prv"
	// LocalTaskExt is the extension of a worker's task metadata partial.
	LocalTaskExt = ".local_tmi"
)

// Request describes one conversion run. Header and Dict are shared read-only
// by every worker.
type Request struct {
	Header        record.Header
	Dict          legend.Dictionaries
	WorkerPattern string
	OutDir        string
	Prefix        string
	Jobs          int
	Cache         *cache.Cache
	Progress      ProgressSink
}

// WorkerOutcome is the terminal report of one worker.
type WorkerOutcome struct {
	Worker   int
	State    State
	Input    string
	LocalPRV string
	// LocalTMI is empty when the worker has no tagged segments.
	LocalTMI string
	Segments int
	Events   int
	Tasks    int
	Unknown  int
	Warnings []record.UnknownHappeningTagError
	CacheHit bool
	Err      error
	Timings  Timings
	Elapsed  time.Duration
}

// Totals aggregates counts across workers.
type Totals struct {
	Segments int
	Events   int
	Tasks    int
	Unknown  int
}

// Result holds every worker outcome indexed by worker id.
type Result struct {
	RunID   uuid.UUID
	Header  record.Header
	Workers []WorkerOutcome
	Elapsed time.Duration
}

// Failed returns the failed workers in ascending id order.
func (r *Result) Failed() []WorkerOutcome {
	var out []WorkerOutcome
	for _, w := range r.Workers {
		if w.State == StateFailed {
			out = append(out, w)
		}
	}
	return out
}

// Totals sums counts over all workers.
func (r *Result) Totals() Totals {
	var t Totals
	for _, w := range r.Workers {
		t.Segments += w.Segments
		t.Events += w.Events
		t.Tasks += w.Tasks
		t.Unknown += w.Unknown
	}
	return t
}

// MarkMerged moves every written worker to StateMerged.
func (r *Result) MarkMerged(sink ProgressSink) {
	for i := range r.Workers {
		w := &r.Workers[i]
		if w.State != StateWrittenLocal {
			continue
		}
		w.State = StateMerged
		if sink != nil {
			sink.OnEvent(Event{Worker: w.Worker, State: StateMerged, Elapsed: w.Elapsed})
		}
	}
}

// LocalPaths returns the partial file paths of worker w.
func LocalPaths(outDir, prefix string, w int) (prvPath, tmiPath string) {
	base := filepath.Join(outDir, prefix+"-"+strconv.Itoa(w))
	return base + LocalTraceExt, base + LocalTaskExt
}

func (req *Request) validate() error {
	if req == nil {
		return errors.New("missing conversion request")
	}
	if req.Header.Workers <= 0 {
		return fmt.Errorf("invalid worker count %d", req.Header.Workers)
	}
	return record.ValidatePattern(req.WorkerPattern)
}

// Run converts every worker of req.Header. A failing worker is recorded in
// its outcome and does not stop the others. The returned error covers only
// invalid requests and cancellation.
func Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Prefix == "" {
		return nil, errors.New("missing output prefix")
	}
	if req.OutDir == "" {
		req.OutDir = "."
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	started := time.Now()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeStage, "workers", trace.ParentID(ctx))
	ctx = trace.WithSpan(ctx, span)

	n := req.Header.Workers
	res := &Result{
		RunID:   uuid.New(),
		Header:  req.Header,
		Workers: make([]WorkerOutcome, n),
	}
	for w := range n {
		res.Workers[w] = WorkerOutcome{Worker: w, State: StatePending}
		emit(req.Progress, Event{Worker: w, State: StatePending})
	}

	w := &worker{req: req, fingerprint: req.Dict.Fingerprint()}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, n))
	for id := range n {
		g.Go(func() error {
			// Each task owns results[id]; failures stay in the outcome.
			res.Workers[id] = w.run(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	res.Elapsed = time.Since(started)
	failed := len(res.Failed())
	span.WithExtra("workers", strconv.Itoa(n)).
		WithExtra("failed", strconv.Itoa(failed)).
		End(res.RunID.String())

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// worker holds what every task reads; it is never written after Run starts
// the pool.
type worker struct {
	req         *Request
	fingerprint [32]byte
}

func (w *worker) run(ctx context.Context, id int) (out WorkerOutcome) {
	out = WorkerOutcome{Worker: id, State: StatePending, Input: w.path(id)}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeWorker, "worker:"+strconv.Itoa(id), trace.ParentID(ctx))
	started := time.Now()

	stageStart := started
	enter := func(s State) {
		now := time.Now()
		out.Timings.Set(out.State, now.Sub(stageStart))
		stageStart = now
		out.State = s
		emit(w.req.Progress, Event{Worker: id, State: s, Elapsed: now.Sub(started)})
	}
	defer func() {
		out.Elapsed = time.Since(started)
		detail := string(out.State)
		if out.Err != nil {
			detail = out.Err.Error()
		}
		span.WithExtra("segments", strconv.Itoa(out.Segments)).
			WithExtra("events", strconv.Itoa(out.Events)).
			End(detail)
	}()
	fail := func(err error) WorkerOutcome {
		out.Err = err
		out.Timings.Set(out.State, time.Since(stageStart))
		out.State = StateFailed
		emit(w.req.Progress, Event{Worker: id, State: StateFailed, Err: err, Elapsed: time.Since(started)})
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	enter(StateDecoding)
	dec, hit, err := w.decode(id, out.Input, tracer, span.ID())
	if err != nil {
		return fail(err)
	}
	out.CacheHit = hit
	out.Unknown = dec.Unknown
	out.Warnings = dec.Warnings

	enter(StateFlattening)
	flat := flatten.Flatten(dec.States())
	out.Segments = len(flat.Segments)
	out.Tasks = len(flat.Tasks)

	enter(StateResolving)
	var events []resolve.Event
	for _, rec := range dec.Events() {
		events, err = resolve.AppendResolved(events, rec, w.req.Dict)
		if err != nil {
			return fail(err)
		}
	}
	out.Events = len(events)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	prvPath, tmiPath := LocalPaths(w.req.OutDir, w.req.Prefix, id)
	out.LocalPRV = prvPath
	if err := writeLocalTrace(prvPath, flat.Segments, events); err != nil {
		return fail(err)
	}
	if len(flat.Tasks) > 0 {
		out.LocalTMI = tmiPath
		if err := writeLocalTasks(tmiPath, flat.Tasks); err != nil {
			return fail(err)
		}
	}
	enter(StateWrittenLocal)
	return out
}

func (w *worker) path(id int) string {
	return record.WorkerPath(w.req.WorkerPattern, id)
}

// decode loads and decodes worker id's record, consulting the cache first.
func (w *worker) decode(id int, path string, tracer trace.Tracer, parent uint64) (*record.Decoded, bool, error) {
	data, err := record.ReadWorkerFile(path, id)
	if err != nil {
		return nil, false, err
	}

	var key cache.Key
	if w.req.Cache != nil {
		key = cache.KeyFor(data, w.req.Header.CreationTime, w.fingerprint)
		dec, ok, err := w.req.Cache.Get(key)
		switch {
		case err != nil:
			trace.Point(tracer, trace.ScopeRecord, "cache", "ignoring entry: "+err.Error(), parent)
		case ok && dec.Worker == id:
			return dec, true, nil
		}
	}

	dec, err := record.Decode(bytes.NewReader(data), record.DecodeOptions{
		Path:         path,
		Worker:       id,
		CreationTime: w.req.Header.CreationTime,
		States:       w.req.Dict,
	})
	if err != nil {
		return nil, false, err
	}
	if w.req.Cache != nil {
		if err := w.req.Cache.Put(key, dec); err != nil {
			trace.Point(tracer, trace.ScopeRecord, "cache", "store failed: "+err.Error(), parent)
		}
	}
	return dec, false, nil
}

// writeLocalTrace writes segments first, then events.
func writeLocalTrace(path string, segs []flatten.Segment, events []resolve.Event) error {
	return writeLines(path, func(bw *bufio.Writer, scratch []byte) ([]byte, error) {
		for _, s := range segs {
			scratch = prvState(scratch[:0], s)
			if _, err := bw.Write(scratch); err != nil {
				return scratch, err
			}
		}
		for _, ev := range events {
			scratch = ev.Append(scratch[:0])
			if _, err := bw.Write(scratch); err != nil {
				return scratch, err
			}
		}
		return scratch, nil
	})
}

func writeLocalTasks(path string, tasks []flatten.TaskMeta) error {
	return writeLines(path, func(bw *bufio.Writer, scratch []byte) ([]byte, error) {
		for _, t := range tasks {
			scratch = prvTask(scratch[:0], t)
			if _, err := bw.Write(scratch); err != nil {
				return scratch, err
			}
		}
		return scratch, nil
	})
}

// writeLines creates path and fills it. A partial that fails to write is
// removed.
func writeLines(path string, fill func(*bufio.Writer, []byte) ([]byte, error)) (err error) {
	// #nosec G304 -- partial paths are built from the output directory
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partial: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close partial: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := fill(bw, make([]byte, 0, 128)); err != nil {
		return fmt.Errorf("write partial %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write partial %s: %w", path, err)
	}
	return nil
}

func prvState(dst []byte, s flatten.Segment) []byte {
	return prv.AppendState(dst, s.Worker, s.Begin, s.End, s.Code)
}

func prvTask(dst []byte, t flatten.TaskMeta) []byte {
	return prv.AppendTask(dst, t.Worker, t.Begin, t.End, t.Code, t.Tag)
}

func emit(sink ProgressSink, ev Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(ev)
}
