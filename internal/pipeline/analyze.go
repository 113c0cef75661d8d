package pipeline

import (
	"context"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"mirtrace/internal/flatten"
	"mirtrace/internal/trace"
)

// WorkerTimeline is the in-memory flat timeline of one worker.
type WorkerTimeline struct {
	Worker   int
	Segments []flatten.Segment
	Unknown  int
	Err      error
}

// Analyze decodes and flattens every worker without resolving events or
// writing partials. Output directory, prefix, and progress are ignored.
func Analyze(ctx context.Context, req *Request) ([]WorkerTimeline, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeStage, "analyze", trace.ParentID(ctx))
	defer span.End("")

	n := req.Header.Workers
	out := make([]WorkerTimeline, n)
	w := &worker{req: req, fingerprint: req.Dict.Fingerprint()}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, n))
	for id := range n {
		g.Go(func() error {
			tl := WorkerTimeline{Worker: id}
			if err := gctx.Err(); err != nil {
				tl.Err = err
				out[id] = tl
				return nil
			}
			ws := trace.Begin(tracer, trace.ScopeWorker, "worker:"+strconv.Itoa(id), span.ID())
			dec, _, err := w.decode(id, w.path(id), tracer, ws.ID())
			if err != nil {
				tl.Err = err
			} else {
				tl.Segments = flatten.Flatten(dec.States()).Segments
				tl.Unknown = dec.Unknown
			}
			ws.End(strconv.Itoa(len(tl.Segments)))
			out[id] = tl
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}
