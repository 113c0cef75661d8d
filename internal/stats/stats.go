// Package stats summarizes how long workers spend in each state, computed
// over the flattened timeline.
package stats

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/stat"

	"mirtrace/internal/flatten"
)

// StateNamer maps state codes back to names.
type StateNamer interface {
	StateName(code int) string
}

// State holds duration statistics of one state, in trace time units.
type State struct {
	Code   int
	Name   string
	Count  int
	Total  int64
	Mean   float64
	StdDev float64
	P95    float64
	Max    int64
	// Share is Total over the summed length of all segments.
	Share float64
}

// Report is the per-state summary of a set of segments.
type Report struct {
	Segments int
	Total    int64
	States   []State
}

// Compute builds a report over segs. States are ordered by code.
func Compute(segs []flatten.Segment, names StateNamer) Report {
	byCode := make(map[int][]float64)
	totals := make(map[int]int64)
	longest := make(map[int]int64)
	for _, s := range segs {
		byCode[s.Code] = append(byCode[s.Code], float64(s.Len()))
		totals[s.Code] += s.Len()
		longest[s.Code] = max(longest[s.Code], s.Len())
	}
	codes := make([]int, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	slices.Sort(codes)

	r := Report{Segments: len(segs), States: make([]State, 0, len(codes))}
	for _, c := range codes {
		lens := byCode[c]
		slices.Sort(lens)
		st := State{
			Code:  c,
			Count: len(lens),
			Total: totals[c],
			Max:   longest[c],
			P95:   stat.Quantile(0.95, stat.Empirical, lens, nil),
		}
		if names != nil {
			st.Name = names.StateName(c)
		}
		if len(lens) > 1 {
			st.Mean, st.StdDev = stat.MeanStdDev(lens, nil)
		} else {
			st.Mean = lens[0]
		}
		r.Total += st.Total
		r.States = append(r.States, st)
	}
	if r.Total > 0 {
		for i := range r.States {
			r.States[i].Share = float64(r.States[i].Total) / float64(r.Total)
		}
	}
	return r
}

// ByTotal returns the states ordered by descending total time.
func (r Report) ByTotal() []State {
	out := slices.Clone(r.States)
	slices.SortStableFunc(out, func(a, b State) int { return cmp.Compare(b.Total, a.Total) })
	return out
}
