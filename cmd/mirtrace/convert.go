package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mirtrace/internal/cache"
	"mirtrace/internal/config"
	"mirtrace/internal/legend"
	"mirtrace/internal/merge"
	"mirtrace/internal/observ"
	"mirtrace/internal/pipeline"
	"mirtrace/internal/record"
	"mirtrace/internal/trace"
)

var convertCmd = &cobra.Command{
	Use:   "convert <config.rec> [name]",
	Short: "Convert recorder traces to a Paraver trace",
	Long: `Convert reads the recorder configuration record and every worker record
next to it, and writes <name>.prv, <name>.pcf and, when tasks were tagged,
<name>.taskmetainfo into the output directory. The default name is the
configuration record prefix.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

func init() {
	addInputFlags(convertCmd)
	convertCmd.Flags().String("out-dir", config.DefaultOutDir, "output directory")
	convertCmd.Flags().IntP("jobs", "j", config.DefaultJobs, "parallel worker tasks (0 = GOMAXPROCS)")
	convertCmd.Flags().String("palette", legend.DefaultPalette, "state colour palette")
	convertCmd.Flags().Bool("keep-tmp", config.DefaultKeepTemp, "keep worker-local partial files")
	convertCmd.Flags().Bool("cache", config.DefaultCache, "cache decoded worker records")
	convertCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("worker-pattern", "", "worker record path pattern with one %d (default: <prefix>-%d.rec next to the config record)")
}

// conversion is everything runConversion needs, resolved from flags and
// the project file.
type conversion struct {
	ConfigPath string
	Name       string
	Settings   config.Settings
	Now        func() time.Time
	UseUI      bool
	Progress   pipeline.ProgressSink
	Log        io.Writer
	Timer      *observ.Timer
}

// conversionResult reports what runConversion produced.
type conversionResult struct {
	Header  record.Header
	PCFPath string
	Summary merge.Summary
	Result  *pipeline.Result
}

func runConvert(cmd *cobra.Command, args []string) error {
	return withRunEnv(cmd, "convert", func(ctx context.Context) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
		if err != nil {
			return fmt.Errorf("failed to get quiet flag: %w", err)
		}
		showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
		if err != nil {
			return fmt.Errorf("failed to get timings flag: %w", err)
		}
		uiValue, err := cmd.Flags().GetString("ui")
		if err != nil {
			return fmt.Errorf("failed to get ui flag: %w", err)
		}
		mode, err := readUIMode(uiValue)
		if err != nil {
			return err
		}
		now, err := headerClock()
		if err != nil {
			return err
		}

		conv := conversion{
			ConfigPath: args[0],
			Settings:   settings,
			Now:        now,
			UseUI:      shouldUseTUI(mode, quiet),
			Timer:      observ.NewTimer(),
		}
		if len(args) == 2 {
			conv.Name = args[1]
		}
		out := cmd.OutOrStdout()
		if !quiet {
			conv.Log = out
		}

		res, err := runConversion(ctx, &conv)
		if res != nil && res.Result != nil && !quiet {
			printWarnings(cmd.ErrOrStderr(), res.Result)
		}
		if showTimings {
			var pres *pipeline.Result
			if res != nil {
				pres = res.Result
			}
			printTimings(out, conv.Timer, pres)
		}
		if err != nil {
			return err
		}
		if !quiet {
			printSummary(out, res.Summary, res.PCFPath)
		}
		return nil
	})
}

// runConversion reads the header, builds the dictionaries from worker 0,
// runs the worker pipeline, merges the partials, and writes the legend.
// A failed run writes none of the three artifacts.
func runConversion(ctx context.Context, conv *conversion) (*conversionResult, error) {
	s := conv.Settings
	tm := conv.Timer
	if tm == nil {
		tm = observ.NewTimer()
	}
	res := &conversionResult{}

	idx := tm.Begin("header")
	h, err := record.ReadHeader(conv.ConfigPath)
	if err != nil {
		tm.End(idx, "failed")
		return nil, err
	}
	res.Header = h
	tm.End(idx, strconv.Itoa(h.Workers)+" workers")
	if conv.Log != nil {
		printHeader(conv.Log, conv.ConfigPath, h)
	}

	pattern := s.WorkerPattern
	if pattern == "" {
		pattern = record.DefaultWorkerPattern(conv.ConfigPath)
	}
	if err := record.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	name := conv.Name
	if name == "" {
		name = s.Name
	}
	if name == "" {
		name = record.Prefix(conv.ConfigPath)
	}
	base := filepath.Join(s.OutDir, name)

	idx = tm.Begin("legend")
	dict, err := buildDictionaries(pattern)
	if err != nil {
		tm.End(idx, "failed")
		return nil, err
	}
	palette, err := legend.PaletteByName(s.Palette)
	if err != nil {
		tm.End(idx, "failed")
		return nil, err
	}
	if err := os.MkdirAll(s.OutDir, 0o755); err != nil {
		tm.End(idx, "failed")
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	trace.Point(trace.FromContext(ctx), trace.ScopeStage, "legend",
		fmt.Sprintf("%d states, %d events", dict.NumStates(), dict.NumEvents()), trace.ParentID(ctx))
	tm.End(idx, fmt.Sprintf("%d states, %d events", dict.NumStates(), dict.NumEvents()))

	var dc *cache.Cache
	if s.Cache {
		if dc, err = cache.Open(s.CacheDir); err != nil {
			return nil, err
		}
	}
	req := &pipeline.Request{
		Header:        h,
		Dict:          dict,
		WorkerPattern: pattern,
		OutDir:        s.OutDir,
		Prefix:        name,
		Jobs:          s.Jobs,
		Cache:         dc,
		Progress:      conv.Progress,
	}

	idx = tm.Begin("workers")
	var pres *pipeline.Result
	if conv.UseUI {
		pres, err = runWorkersWithUI(ctx, "converting "+filepath.Base(conv.ConfigPath), req)
	} else {
		pres, err = pipeline.Run(ctx, req)
	}
	res.Result = pres
	if err != nil {
		tm.End(idx, "failed")
		if pres != nil && !s.KeepTemp {
			_ = merge.Cleanup(pres)
		}
		return res, err
	}
	tm.End(idx, fmt.Sprintf("%d failed", len(pres.Failed())))

	idx = tm.Begin("merge")
	sum, err := merge.Merge(ctx, &merge.Request{
		Now:      conv.Now,
		OutPath:  base + ".prv",
		TaskPath: base + ".taskmetainfo",
		KeepTemp: s.KeepTemp,
		Progress: conv.Progress,
	}, pres)
	if err != nil {
		tm.End(idx, "failed")
		return res, err
	}
	// A failed run must not replace the legend of an earlier trace.
	if err := legend.WriteFile(base+".pcf", dict, palette); err != nil {
		tm.End(idx, "failed")
		return res, err
	}
	res.PCFPath = base + ".pcf"
	tm.End(idx, strconv.FormatInt(sum.Bytes, 10)+" bytes")
	res.Summary = sum
	return res, nil
}

// buildDictionaries reads worker 0's name tables.
func buildDictionaries(pattern string) (legend.Dictionaries, error) {
	path := record.WorkerPath(pattern, 0)
	names, err := record.ReadNameTables(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return legend.Dictionaries{}, &record.MissingWorkerFileError{Worker: 0, Path: path, Err: err}
		}
		return legend.Dictionaries{}, err
	}
	return legend.Build(names), nil
}

// headerClock returns the clock stamping the trace header. SOURCE_DATE_EPOCH
// pins it for reproducible output.
func headerClock() (func() time.Time, error) {
	v, ok := os.LookupEnv("SOURCE_DATE_EPOCH")
	if !ok || v == "" {
		return time.Now, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_DATE_EPOCH %q: %w", v, err)
	}
	t := time.Unix(secs, 0).UTC()
	return func() time.Time { return t }, nil
}
