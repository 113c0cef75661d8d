// Package trace records what the converter itself is doing: run, stage and
// per-worker spans with timings, for diagnosing slow or stuck conversions.
//
// It is unrelated to the Paraver traces mirtrace produces.
//
// # Usage
//
//	mirtrace convert --trace=- --trace-level=detail mir-recorder-trace-config.rec
//
// # Tracers
//
//   - Nop: used when tracing is off
//   - StreamTracer: writes each event as it happens (text or NDJSON)
//   - RingTracer: keeps the last N events in memory, dumped on failure
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// LevelPhase emits ScopeRun and ScopeStage spans (legend, workers, merge).
// LevelDetail adds ScopeWorker spans, one per worker pipeline.
// LevelDebug adds ScopeRecord points such as skipped happenings.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, "merge", parent)
//	defer span.End("")
package trace
