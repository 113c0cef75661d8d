package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"mirtrace/internal/merge"
	"mirtrace/internal/pipeline"
	"mirtrace/internal/record"
)

var (
	errorPrefix   = color.New(color.FgRed, color.Bold)
	warningPrefix = color.New(color.FgYellow, color.Bold)
	okPrefix      = color.New(color.FgGreen, color.Bold)
	pathColor     = color.New(color.FgCyan)
)

// counts groups digits in summary numbers.
var counts = message.NewPrinter(language.English)

// setupColor applies the --color flag.
func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(mode) {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "", "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

func printError(out io.Writer, err error) {
	var re *merge.RunError
	if errors.As(err, &re) {
		fmt.Fprintf(out, "%s %d of %d workers failed\n", errorPrefix.Sprint("error:"), len(re.Failures), re.Workers)
		for _, f := range re.Failures {
			fmt.Fprintf(out, "  worker %d: %v\n", f.Worker, f.Err)
		}
		return
	}
	fmt.Fprintf(out, "%s %v\n", errorPrefix.Sprint("error:"), err)
}

func printWarnings(out io.Writer, res *pipeline.Result) {
	for _, w := range res.Workers {
		for i := range w.Warnings {
			fmt.Fprintf(out, "%s %v\n", warningPrefix.Sprint("warning:"), &w.Warnings[i])
		}
		if extra := w.Unknown - len(w.Warnings); extra > 0 {
			fmt.Fprintf(out, "%s worker %d: %d more unknown happenings\n", warningPrefix.Sprint("warning:"), w.Worker, extra)
		}
	}
}

func printHeader(out io.Writer, path string, h record.Header) {
	fmt.Fprintf(out, "parsing %s\n", pathColor.Sprint(path))
	counts.Fprintf(out, "creation_time = %d, destruction_time = %d, workers = %d\n",
		h.CreationTime, h.DestructionTime, h.Workers)
}

func printSummary(out io.Writer, sum merge.Summary, pcfPath string) {
	t := sum.Totals
	fmt.Fprintf(out, "%s %s\n", okPrefix.Sprint("wrote"), pathColor.Sprint(sum.TracePath))
	fmt.Fprintf(out, "%s %s\n", okPrefix.Sprint("wrote"), pathColor.Sprint(pcfPath))
	if sum.TaskPath != "" {
		fmt.Fprintf(out, "%s %s\n", okPrefix.Sprint("wrote"), pathColor.Sprint(sum.TaskPath))
	}
	counts.Fprintf(out, "%d workers, %d segments, %d events, %d tagged segments, %d unknown happenings\n",
		sum.Workers, t.Segments, t.Events, t.Tasks, t.Unknown)
}
