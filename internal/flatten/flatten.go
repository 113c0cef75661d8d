// Package flatten turns a worker's nested state intervals into a flat,
// non-overlapping timeline.
//
// Each parent interval is split around its immediate children, so
// Parent[0,10) with Child[4,6) becomes Parent[0,4) Child[4,6) Parent[6,10).
// Children are ordinary entries of the same sorted list and are flattened by
// the same pass. The pass is iterative and needs no recursion regardless of
// nesting depth.
//
// Children are detected by a forward scan that stops at the first interval
// that is not a child of the current parent. A child that sorts after an
// unrelated interval therefore does not split its parent. This matches the
// output of earlier MIR converters.
package flatten

import (
	"cmp"
	"slices"

	"mirtrace/internal/record"
)

// Segment is one piece of the flat timeline.
type Segment struct {
	Worker int
	Begin  int64
	End    int64
	Code   int
}

// Len returns the segment length.
func (s Segment) Len() int64 { return s.End - s.Begin }

// TaskMeta is the companion record of a segment cut from a tagged interval.
type TaskMeta struct {
	Worker int
	Begin  int64
	End    int64
	Code   int
	Tag    string
}

// Result holds the flat timeline and the task metadata stream.
type Result struct {
	Segments []Segment
	Tasks    []TaskMeta
}

// Flatten flattens intervals. The input slice is not modified.
//
// Segments come out grouped by parent in ascending begin order of the
// parents; within a parent they are in time order.
func Flatten(intervals []record.StateInterval) Result {
	sorted := slices.Clone(intervals)
	slices.SortStableFunc(sorted, func(a, b record.StateInterval) int {
		return cmp.Compare(a.Begin, b.Begin)
	})

	res := Result{Segments: make([]Segment, 0, len(sorted))}
	for i := range sorted {
		p := &sorted[i]
		btime := p.Begin
		for j := i + 1; j < len(sorted); j++ {
			c := &sorted[j]
			if c.Begin >= p.End || c.ParentID != p.ID {
				break
			}
			res.emit(p, btime, c.Begin)
			btime = c.End
		}
		res.emit(p, btime, p.End)
	}
	return res
}

func (r *Result) emit(p *record.StateInterval, begin, end int64) {
	r.Segments = append(r.Segments, Segment{Worker: p.Worker, Begin: begin, End: end, Code: p.Code})
	if p.HasTag() {
		r.Tasks = append(r.Tasks, TaskMeta{Worker: p.Worker, Begin: begin, End: end, Code: p.Code, Tag: p.Tag})
	}
}

// Coverage sums segment lengths per state code.
func Coverage(segs []Segment) map[int]int64 {
	out := make(map[int]int64)
	for _, s := range segs {
		out[s.Code] += s.Len()
	}
	return out
}
