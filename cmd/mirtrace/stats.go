package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"mirtrace/internal/cache"
	"mirtrace/internal/config"
	"mirtrace/internal/flatten"
	"mirtrace/internal/merge"
	"mirtrace/internal/pipeline"
	"mirtrace/internal/record"
	"mirtrace/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <config.rec>",
	Short: "Print per-state time statistics without writing a trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunEnv(cmd, "stats", func(ctx context.Context) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			perWorker, err := cmd.Flags().GetBool("per-worker")
			if err != nil {
				return fmt.Errorf("failed to get per-worker flag: %w", err)
			}
			h, err := record.ReadHeader(args[0])
			if err != nil {
				return err
			}
			pattern := s.WorkerPattern
			if pattern == "" {
				pattern = record.DefaultWorkerPattern(args[0])
			}
			dict, err := buildDictionaries(pattern)
			if err != nil {
				return err
			}
			var dc *cache.Cache
			if s.Cache {
				if dc, err = cache.Open(s.CacheDir); err != nil {
					return err
				}
			}

			timelines, err := pipeline.Analyze(ctx, &pipeline.Request{
				Header:        h,
				Dict:          dict,
				WorkerPattern: pattern,
				Jobs:          s.Jobs,
				Cache:         dc,
			})
			if err != nil {
				return err
			}

			re := &merge.RunError{Workers: len(timelines)}
			var all []flatten.Segment
			out := cmd.OutOrStdout()
			for _, tl := range timelines {
				if tl.Err != nil {
					re.Failures = append(re.Failures, merge.WorkerFailure{Worker: tl.Worker, Err: tl.Err})
					continue
				}
				all = append(all, tl.Segments...)
				if perWorker {
					fmt.Fprintf(out, "worker %d\n", tl.Worker)
					renderStats(out, stats.Compute(tl.Segments, dict))
				}
			}
			if len(re.Failures) > 0 {
				return re
			}
			if perWorker {
				fmt.Fprintln(out, "all workers")
			}
			renderStats(out, stats.Compute(all, dict))
			return nil
		})
	},
}

func init() {
	addInputFlags(statsCmd)
	statsCmd.Flags().IntP("jobs", "j", config.DefaultJobs, "parallel worker tasks (0 = GOMAXPROCS)")
	statsCmd.Flags().Bool("cache", config.DefaultCache, "cache decoded worker records")
	statsCmd.Flags().Bool("per-worker", false, "print a table per worker as well")
}

func renderStats(out io.Writer, r stats.Report) {
	if len(r.States) == 0 {
		fmt.Fprintln(out, "no state segments")
		return
	}
	rows := make([][]string, 0, len(r.States))
	for _, st := range r.ByTotal() {
		rows = append(rows, []string{
			st.Name,
			counts.Sprintf("%d", st.Count),
			counts.Sprintf("%d", st.Total),
			fmt.Sprintf("%.1f%%", st.Share*100),
			strconv.FormatFloat(st.Mean, 'f', 1, 64),
			strconv.FormatFloat(st.StdDev, 'f', 1, 64),
			strconv.FormatFloat(st.P95, 'f', 0, 64),
			counts.Sprintf("%d", st.Max),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STATE", "COUNT", "TOTAL", "SHARE", "MEAN", "STDDEV", "P95", "MAX").
		Rows(rows...)
	fmt.Fprintln(out, t.String())
	counts.Fprintf(out, "%d segments, %d time units\n", r.Segments, r.Total)
}
