package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirtrace/internal/flatten"
)

type names []string

func (n names) StateName(code int) string { return n[code] }

func TestCompute(t *testing.T) {
	segs := []flatten.Segment{
		{Begin: 0, End: 4, Code: 1},
		{Begin: 6, End: 10, Code: 1},
		{Begin: 4, End: 6, Code: 2},
		{Begin: 10, End: 18, Code: 1},
	}
	r := Compute(segs, names{"IDLE", "EXEC", "SYNC"})
	require.Len(t, r.States, 2)
	assert.Equal(t, 4, r.Segments)
	assert.Equal(t, int64(18), r.Total)

	exec := r.States[0]
	assert.Equal(t, "EXEC", exec.Name)
	assert.Equal(t, 3, exec.Count)
	assert.Equal(t, int64(16), exec.Total)
	assert.Equal(t, int64(8), exec.Max)
	assert.InDelta(t, 16.0/3, exec.Mean, 1e-9)
	assert.InDelta(t, 2.309401, exec.StdDev, 1e-6)
	assert.Equal(t, 8.0, exec.P95)
	assert.InDelta(t, 16.0/18, exec.Share, 1e-9)

	sync := r.States[1]
	assert.Equal(t, "SYNC", sync.Name)
	assert.Equal(t, 2.0, sync.Mean)
	assert.Zero(t, sync.StdDev)
}

func TestByTotal(t *testing.T) {
	r := Compute([]flatten.Segment{
		{Begin: 0, End: 1, Code: 0},
		{Begin: 1, End: 9, Code: 2},
	}, nil)
	ordered := r.ByTotal()
	assert.Equal(t, 2, ordered[0].Code)
	assert.Equal(t, 0, r.States[0].Code)
}

func TestComputeKeepsLargeTotalsExact(t *testing.T) {
	long := int64(1)<<53 + 1
	r := Compute([]flatten.Segment{
		{Begin: 0, End: long, Code: 1},
		{Begin: long, End: long + 1, Code: 1},
	}, nil)
	require.Len(t, r.States, 1)
	assert.Equal(t, long+1, r.States[0].Total)
	assert.Equal(t, long, r.States[0].Max)
	assert.Equal(t, long+1, r.Total)
}

func TestComputeEmpty(t *testing.T) {
	r := Compute(nil, nil)
	assert.Empty(t, r.States)
	assert.Zero(t, r.Total)
}
