package merge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirtrace/internal/legend"
	"mirtrace/internal/pipeline"
	"mirtrace/internal/record"
	"mirtrace/internal/testkit"
)

var fixedNow = func() time.Time { return time.Date(2016, time.May, 2, 14, 30, 0, 0, time.UTC) }

type fixture struct {
	req  *pipeline.Request
	dict legend.Dictionaries
	out  string
}

func newFixture(t *testing.T, tr testkit.Trace) fixture {
	t.Helper()
	dir := t.TempDir()
	cfg, err := testkit.Write(dir, tr)
	require.NoError(t, err)
	h, err := record.ReadHeader(cfg)
	require.NoError(t, err)
	pattern := record.DefaultWorkerPattern(cfg)
	names, err := record.ReadNameTables(record.WorkerPath(pattern, 0))
	require.NoError(t, err)
	dict := legend.Build(names)
	out := filepath.Join(dir, "out")
	return fixture{
		req: &pipeline.Request{
			Header:        h,
			Dict:          dict,
			WorkerPattern: pattern,
			OutDir:        out,
			Prefix:        record.Prefix(cfg),
		},
		dict: dict,
		out:  out,
	}
}

func (f fixture) run(t *testing.T) *pipeline.Result {
	t.Helper()
	res, err := pipeline.Run(context.Background(), f.req)
	require.NoError(t, err)
	return res
}

func (f fixture) mergeRequest() *Request {
	return &Request{
		Now:      fixedNow,
		OutPath:  filepath.Join(f.out, "trace.prv"),
		TaskPath: filepath.Join(f.out, "trace.taskmetainfo"),
	}
}

func twoWorkers(second ...string) testkit.Trace {
	w := func(lines ...string) testkit.Worker {
		return testkit.Worker{States: []string{"IDLE", "EXEC", "SYNC"}, Events: []string{"NA"}, Lines: lines}
	}
	return testkit.Trace{
		CreationTime: 100,
		Destruction:  140,
		Workers: []testkit.Worker{
			w(
				testkit.State(2, 1, 104, 106, "SYNC", ""),
				testkit.State(1, 0, 100, 110, "EXEC", "fib-3"),
				testkit.Event(1, 105, "NA", "1"),
			),
			w(second...),
		},
	}
}

func TestMergeOrdersWorkers(t *testing.T) {
	f := newFixture(t, twoWorkers(testkit.State(1, 0, 101, 120, "IDLE", "")))
	res := f.run(t)
	mreq := f.mergeRequest()

	sum, err := Merge(context.Background(), mreq, res)
	require.NoError(t, err)

	data, err := os.ReadFile(sum.TracePath)
	require.NoError(t, err)
	assert.Equal(t, "#Paraver (02/05/2016 at 14:30):40:1(2):1:1(2:1)\n"+
		"1:1:1:1:1:0:4:1\n"+
		"1:1:1:1:1:6:10:1\n"+
		"1:1:1:1:1:4:6:2\n"+
		"2:1:1:1:1:5:540680:1\n"+
		"1:2:1:1:2:1:20:0\n", string(data))
	assert.Equal(t, int64(len(data)), sum.Bytes)

	tmi, err := os.ReadFile(sum.TaskPath)
	require.NoError(t, err)
	assert.Equal(t, "worker=1:0:4:1:fib-3\nworker=1:6:10:1:fib-3\n", string(tmi))

	for _, w := range res.Workers {
		assert.Equal(t, pipeline.StateMerged, w.State)
		assert.NoFileExists(t, w.LocalPRV)
	}
	assert.Equal(t, pipeline.Totals{Segments: 4, Events: 1, Tasks: 2}, sum.Totals)
}

func TestMergeReportsFailedWorkers(t *testing.T) {
	f := newFixture(t, twoWorkers(testkit.State(1, 0, 120, 101, "IDLE", "")))
	res := f.run(t)
	mreq := f.mergeRequest()

	_, err := Merge(context.Background(), mreq, res)
	var re *RunError
	require.True(t, errors.As(err, &re))
	require.Len(t, re.Failures, 1)
	assert.Equal(t, 1, re.Failures[0].Worker)
	assert.Contains(t, err.Error(), "1 of 2 workers failed")

	var mre *record.MalformedRecordError
	assert.True(t, errors.As(err, &mre))

	assert.Equal(t, pipeline.StateWrittenLocal, res.Workers[0].State)
	assert.NoFileExists(t, mreq.OutPath)
	assert.NoFileExists(t, mreq.TaskPath)
	assert.NoFileExists(t, res.Workers[0].LocalPRV)
}

func TestMergeKeepTemp(t *testing.T) {
	f := newFixture(t, twoWorkers(testkit.State(1, 0, 120, 101, "IDLE", "")))
	res := f.run(t)
	mreq := f.mergeRequest()
	mreq.KeepTemp = true

	_, err := Merge(context.Background(), mreq, res)
	require.Error(t, err)
	assert.FileExists(t, res.Workers[0].LocalPRV)
	assert.FileExists(t, res.Workers[0].LocalTMI)
}

func TestMergeSkipsTaskFileWithoutTags(t *testing.T) {
	f := newFixture(t, testkit.Trace{
		Destruction: 10,
		Workers: []testkit.Worker{{
			States: []string{"IDLE"},
			Lines:  []string{testkit.State(1, 0, 0, 10, "IDLE", "")},
		}},
	})
	mreq := f.mergeRequest()
	sum, err := Merge(context.Background(), mreq, f.run(t))
	require.NoError(t, err)
	assert.Empty(t, sum.TaskPath)
	assert.NoFileExists(t, mreq.TaskPath)
}

func TestMergeRemovesStaleTaskFile(t *testing.T) {
	f := newFixture(t, testkit.Trace{
		Destruction: 10,
		Workers: []testkit.Worker{{
			States: []string{"IDLE"},
			Lines:  []string{testkit.State(1, 0, 0, 10, "IDLE", "")},
		}},
	})
	mreq := f.mergeRequest()
	res := f.run(t)
	require.NoError(t, os.WriteFile(mreq.TaskPath, []byte("worker=1:0:10:0:old\n"), 0o644))

	_, err := Merge(context.Background(), mreq, res)
	require.NoError(t, err)
	assert.NoFileExists(t, mreq.TaskPath)
}

func TestMergeIsDeterministic(t *testing.T) {
	f := newFixture(t, twoWorkers(
		testkit.State(3, 0, 101, 130, "EXEC", ""),
		testkit.State(4, 3, 105, 108, "SYNC", ""),
		testkit.Event(1, 110, "NA", "2"),
	))
	var outputs [][]byte
	for range 3 {
		f.req.Jobs = 2
		res := f.run(t)
		sum, err := Merge(context.Background(), f.mergeRequest(), res)
		require.NoError(t, err)
		data, err := os.ReadFile(sum.TracePath)
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.True(t, bytes.Equal(outputs[0], outputs[1]))
	assert.True(t, bytes.Equal(outputs[1], outputs[2]))
}

func TestMergedTraceUsesOnlyLegendCodes(t *testing.T) {
	f := newFixture(t, twoWorkers(
		testkit.State(3, 0, 101, 130, "EXEC", ""),
		testkit.State(4, 3, 105, 108, "SYNC", ""),
		testkit.Event(1, 110, "NA", "2"),
	))
	sum, err := Merge(context.Background(), f.mergeRequest(), f.run(t))
	require.NoError(t, err)

	p, err := legend.PaletteByName(legend.DefaultPalette)
	require.NoError(t, err)
	data, err := os.ReadFile(sum.TracePath)
	require.NoError(t, err)
	ts, err := testkit.CheckTrace(bytes.NewReader(data), legend.New(f.dict, p))
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Workers)
	assert.Equal(t, int64(40), ts.Duration)
	assert.Equal(t, sum.Totals.Segments, ts.States)
	assert.Equal(t, sum.Totals.Events, ts.Events)
}

func TestMergeRejectsUnfinishedWorkers(t *testing.T) {
	res := &pipeline.Result{Workers: []pipeline.WorkerOutcome{{Worker: 0, State: pipeline.StateResolving}}}
	_, err := Merge(context.Background(), &Request{OutPath: filepath.Join(t.TempDir(), "x.prv")}, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not finished")
}
