// Package merge concatenates worker partials into the final Paraver trace
// and task metadata artifact.
package merge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"mirtrace/internal/pipeline"
	"mirtrace/internal/prv"
	"mirtrace/internal/trace"
)

// Request configures Merge.
type Request struct {
	// Now stamps the trace header. Nil means time.Now.
	Now      func() time.Time
	OutPath  string
	TaskPath string
	KeepTemp bool
	Progress pipeline.ProgressSink
}

// Summary describes the written artifacts.
type Summary struct {
	TracePath string
	// TaskPath is empty when no tagged segments were recorded.
	TaskPath string
	Bytes    int64
	Workers  int
	Totals   pipeline.Totals
}

// Merge writes the merged trace for res. If any worker failed it writes
// nothing and returns *RunError. A task metadata file left at req.TaskPath
// by an earlier run is removed when res has no tagged segments. Worker partials are removed afterwards
// unless req.KeepTemp is set.
func Merge(ctx context.Context, req *Request, res *pipeline.Result) (sum Summary, err error) {
	if req == nil || res == nil {
		return Summary{}, errors.New("missing merge request")
	}
	for _, w := range res.Workers {
		if !w.State.Done() {
			return Summary{}, fmt.Errorf("worker %d has not finished (state %s)", w.Worker, w.State)
		}
	}
	defer func() {
		if req.KeepTemp {
			return
		}
		if cerr := Cleanup(res); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if failed := res.Failed(); len(failed) > 0 {
		re := &RunError{Workers: len(res.Workers)}
		for _, w := range failed {
			re.Failures = append(re.Failures, WorkerFailure{Worker: w.Worker, Err: w.Err})
		}
		return Summary{}, re
	}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeStage, "merge", trace.ParentID(ctx))
	defer func() {
		detail := "ok"
		if err != nil {
			detail = err.Error()
		}
		span.WithExtra("bytes", strconv.FormatInt(sum.Bytes, 10)).End(detail)
	}()

	now := req.Now
	if now == nil {
		now = time.Now
	}
	header := prv.Header(now(), res.Header.Duration(), res.Header.Workers)

	sum = Summary{Workers: len(res.Workers), Totals: res.Totals()}
	n, err := writeAtomic(req.OutPath, func(w io.Writer) (int64, error) {
		written, err := io.WriteString(w, header)
		total := int64(written)
		if err != nil {
			return total, err
		}
		for _, wo := range res.Workers {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			c, err := appendFile(w, wo.LocalPRV)
			total += c
			if err != nil {
				return total, fmt.Errorf("worker %d: %w", wo.Worker, err)
			}
		}
		return total, nil
	})
	if err != nil {
		return Summary{}, err
	}
	sum.TracePath = req.OutPath
	sum.Bytes = n

	if sum.Totals.Tasks > 0 && req.TaskPath != "" {
		_, err := writeAtomic(req.TaskPath, func(w io.Writer) (int64, error) {
			var total int64
			for _, wo := range res.Workers {
				if wo.LocalTMI == "" {
					continue
				}
				c, err := appendFile(w, wo.LocalTMI)
				total += c
				if err != nil {
					return total, fmt.Errorf("worker %d: %w", wo.Worker, err)
				}
			}
			return total, nil
		})
		if err != nil {
			return Summary{}, err
		}
		sum.TaskPath = req.TaskPath
	} else if req.TaskPath != "" {
		if err := os.Remove(req.TaskPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Summary{}, fmt.Errorf("remove stale task metadata: %w", err)
		}
	}

	res.MarkMerged(req.Progress)
	return sum, nil
}

// Cleanup removes every worker partial of res. Missing files are ignored.
func Cleanup(res *pipeline.Result) error {
	if res == nil {
		return nil
	}
	var errs []error
	for _, w := range res.Workers {
		for _, p := range []string{w.LocalPRV, w.LocalTMI} {
			if p == "" {
				continue
			}
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func appendFile(w io.Writer, path string) (int64, error) {
	// #nosec G304 -- partial paths come from the pipeline result
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, fill func(io.Writer) (int64, error)) (int64, error) {
	if path == "" {
		return 0, errors.New("missing output path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanupTmp := true
	defer func() {
		_ = tmp.Close()
		if cleanupTmp {
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	n, err := fill(bw)
	if err != nil {
		return n, err
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return n, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("rename temp file into place: %w", err)
	}
	cleanupTmp = false
	return n, nil
}
