package main

import (
	"fmt"
	"io"
	"time"

	"mirtrace/internal/observ"
	"mirtrace/internal/pipeline"
)

func printTimings(out io.Writer, tm *observ.Timer, res *pipeline.Result) {
	if out == nil || tm == nil {
		return
	}
	fmt.Fprint(out, tm.Summary())
	if res == nil {
		return
	}
	var decode, flat, resolve time.Duration
	hits := 0
	for _, w := range res.Workers {
		decode += w.Timings.Duration(pipeline.StateDecoding)
		flat += w.Timings.Duration(pipeline.StateFlattening)
		resolve += w.Timings.Duration(pipeline.StateResolving)
		if w.CacheHit {
			hits++
		}
	}
	fmt.Fprintf(out, "worker time (summed over %d workers, %d cache hits):\n", len(res.Workers), hits)
	fmt.Fprintf(out, "  %-20s %7.2f ms\n", "decode", toMillis(decode))
	fmt.Fprintf(out, "  %-20s %7.2f ms\n", "flatten", toMillis(flat))
	fmt.Fprintf(out, "  %-20s %7.2f ms\n", "resolve+write", toMillis(resolve))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
