package main

import (
	"context"

	"github.com/spf13/cobra"

	"mirtrace/internal/trace"
)

// withRunEnv sets up colour, profiling, and tracing around fn. fn receives a
// context carrying the tracer and the run span.
func withRunEnv(cmd *cobra.Command, name string, fn func(ctx context.Context) error) (err error) {
	if err := setupColor(cmd); err != nil {
		return err
	}
	stopProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProf()

	stopTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer func() { stopTrace(err != nil) }()

	ctx := cmd.Context()
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeRun, name, 0)
	defer func() {
		detail := "ok"
		if err != nil {
			detail = err.Error()
		}
		span.End(detail)
	}()
	return fn(trace.WithSpan(ctx, span))
}
