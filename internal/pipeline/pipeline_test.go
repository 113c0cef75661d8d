package pipeline

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirtrace/internal/cache"
	"mirtrace/internal/legend"
	"mirtrace/internal/record"
	"mirtrace/internal/resolve"
	"mirtrace/internal/testkit"
)

var (
	states = []string{"IDLE", "EXEC", "SYNC"}
	events = []string{"NA", "CYCLES"}
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) statesOf(w int) []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []State
	for _, ev := range s.events {
		if ev.Worker == w {
			out = append(out, ev.State)
		}
	}
	return out
}

func setup(t *testing.T, tr testkit.Trace) (*Request, string) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := testkit.Write(dir, tr)
	require.NoError(t, err)

	h, err := record.ReadHeader(cfg)
	require.NoError(t, err)
	names, err := record.ReadNameTables(record.WorkerPath(record.DefaultWorkerPattern(cfg), 0))
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	return &Request{
		Header:        h,
		Dict:          legend.Build(names),
		WorkerPattern: record.DefaultWorkerPattern(cfg),
		OutDir:        out,
		Prefix:        record.Prefix(cfg),
		Jobs:          2,
	}, out
}

func worker0(lines ...string) testkit.Worker {
	return testkit.Worker{States: states, Events: events, Lines: lines}
}

func TestRunWritesLocalPartial(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		CreationTime: 1000,
		Destruction:  1100,
		Workers: []testkit.Worker{worker0(
			testkit.State(2, 1, 1004, 1006, "SYNC", ""),
			testkit.State(1, 0, 1000, 1010, "EXEC", "fib"),
			testkit.Event(1, 1005, "NA", "7", "CYCLES", "99"),
		)},
	})
	sink := &recordingSink{}
	req.Progress = sink

	res, err := Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Workers, 1)

	w := res.Workers[0]
	require.NoError(t, w.Err)
	assert.Equal(t, StateWrittenLocal, w.State)
	assert.Equal(t, 3, w.Segments)
	assert.Equal(t, 2, w.Events)
	assert.Equal(t, 2, w.Tasks)

	data, err := os.ReadFile(w.LocalPRV)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"1:1:1:1:1:0:4:1",
		"1:1:1:1:1:6:10:1",
		"1:1:1:1:1:4:6:2",
		"2:1:1:1:1:5:540680:7",
		"2:1:1:1:1:5:540681:99",
	}, "\n")+"\n", string(data))

	tmi, err := os.ReadFile(w.LocalTMI)
	require.NoError(t, err)
	assert.Equal(t, "worker=1:0:4:1:fib\nworker=1:6:10:1:fib\n", string(tmi))

	assert.Equal(t, []State{
		StatePending, StateDecoding, StateFlattening, StateResolving, StateWrittenLocal,
	}, sink.statesOf(0))
	assert.NotEqual(t, uuid.Nil, res.RunID)
}

func TestUnknownTagIsCountedNotFatal(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		Destruction: 50,
		Workers: []testkit.Worker{worker0(
			testkit.State(1, 0, 0, 10, "IDLE", ""),
			"x:1:2:3",
		)},
	})
	res, err := Run(context.Background(), req)
	require.NoError(t, err)

	w := res.Workers[0]
	require.NoError(t, w.Err)
	assert.Equal(t, 1, w.Unknown)
	assert.Equal(t, 1, w.Segments)
	assert.Equal(t, 0, w.Events)
	assert.Empty(t, w.LocalTMI)
	require.Len(t, w.Warnings, 1)
	assert.Equal(t, "x", w.Warnings[0].Tag)
}

func TestFailingWorkerDoesNotStopOthers(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		Destruction: 50,
		Workers: []testkit.Worker{
			worker0(testkit.State(1, 0, 0, 10, "IDLE", "")),
			worker0(testkit.State(1, 0, 10, 0, "IDLE", "")),
		},
	})
	res, err := Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StateWrittenLocal, res.Workers[0].State)
	assert.FileExists(t, res.Workers[0].LocalPRV)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Worker)
	var mre *record.MalformedRecordError
	assert.True(t, errors.As(failed[0].Err, &mre))
	assert.Empty(t, failed[0].LocalPRV)
}

func TestFailedTaskWriteRecordsPartials(t *testing.T) {
	req, out := setup(t, testkit.Trace{
		Destruction: 50,
		Workers: []testkit.Worker{
			worker0(testkit.State(1, 0, 0, 10, "EXEC", "fib-3")),
		},
	})
	prvPath, tmiPath := LocalPaths(out, req.Prefix, 0)
	// A directory in place of the task partial makes its creation fail.
	require.NoError(t, os.MkdirAll(tmiPath, 0o755))

	res, err := Run(context.Background(), req)
	require.NoError(t, err)

	w := res.Workers[0]
	require.Equal(t, StateFailed, w.State)
	assert.Equal(t, prvPath, w.LocalPRV)
	assert.Equal(t, tmiPath, w.LocalTMI)
	assert.FileExists(t, w.LocalPRV)
}

func TestWriteLinesRemovesFileOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w"+LocalTraceExt)
	boom := errors.New("disk full")
	err := writeLines(path, func(bw *bufio.Writer, scratch []byte) ([]byte, error) {
		_, _ = bw.WriteString("1:1:1:1:1:0:4:1\n")
		return scratch, boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoFileExists(t, path)
}

func TestMissingWorkerFile(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		Destruction: 5,
		Workers:     []testkit.Worker{worker0(), worker0()},
		Skip:        []int{1},
	})
	res, err := Run(context.Background(), req)
	require.NoError(t, err)

	var mwf *record.MissingWorkerFileError
	require.True(t, errors.As(res.Workers[1].Err, &mwf))
	assert.Equal(t, 1, mwf.Worker)
}

func TestUnknownEventNameFailsWorker(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		Destruction: 5,
		Workers: []testkit.Worker{
			worker0(),
			worker0(testkit.Event(1, 2, "L2_MISS", "4")),
		},
	})
	res, err := Run(context.Background(), req)
	require.NoError(t, err)

	var une *resolve.UnknownEventNameError
	require.True(t, errors.As(res.Workers[1].Err, &une))
	assert.Equal(t, StateFailed, res.Workers[1].State)
}

func TestCacheHitOnSecondRun(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		Destruction: 50,
		Workers:     []testkit.Worker{worker0(testkit.State(1, 0, 0, 10, "EXEC", ""))},
	})
	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	req.Cache = c

	first, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Workers[0].CacheHit)

	second, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Workers[0].CacheHit)
	assert.Equal(t, first.Workers[0].Segments, second.Workers[0].Segments)
}

func TestCancelledRun(t *testing.T) {
	req, _ := setup(t, testkit.Trace{Destruction: 5, Workers: []testkit.Worker{worker0()}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.Workers[0].State)
}

func TestMarkMergedAndTotals(t *testing.T) {
	res := &Result{Workers: []WorkerOutcome{
		{Worker: 0, State: StateWrittenLocal, Segments: 2, Events: 1},
		{Worker: 1, State: StateFailed, Segments: 1, Unknown: 3},
	}}
	sink := &recordingSink{}
	res.MarkMerged(sink)

	assert.Equal(t, StateMerged, res.Workers[0].State)
	assert.Equal(t, StateFailed, res.Workers[1].State)
	assert.Equal(t, []State{StateMerged}, sink.statesOf(0))
	assert.Equal(t, Totals{Segments: 3, Events: 1, Unknown: 3}, res.Totals())
}

func TestAnalyze(t *testing.T) {
	req, _ := setup(t, testkit.Trace{
		Destruction: 50,
		Workers: []testkit.Worker{
			worker0(testkit.State(2, 1, 4, 6, "SYNC", ""), testkit.State(1, 0, 0, 10, "EXEC", "")),
			worker0(testkit.State(1, 0, 0, 3, "FOO", "")),
		},
	})
	tl, err := Analyze(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, tl, 2)

	require.NoError(t, tl[0].Err)
	assert.Len(t, tl[0].Segments, 3)
	require.NoError(t, testkit.CheckTimeline(tl[0].Segments))

	var usn *record.UnknownStateNameError
	assert.True(t, errors.As(tl[1].Err, &usn))
}

func TestRunRejectsBadRequest(t *testing.T) {
	_, err := Run(context.Background(), &Request{Header: record.Header{Workers: 1}, WorkerPattern: "w.rec", Prefix: "p"})
	assert.Error(t, err)
	_, err = Run(context.Background(), nil)
	assert.Error(t, err)
}
