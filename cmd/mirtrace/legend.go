package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mirtrace/internal/config"
	"mirtrace/internal/legend"
	"mirtrace/internal/record"
)

var legendCmd = &cobra.Command{
	Use:   "legend <config.rec> [name]",
	Short: "Write only the Paraver legend (.pcf)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunEnv(cmd, "legend", func(context.Context) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
			if err != nil {
				return fmt.Errorf("failed to get quiet flag: %w", err)
			}
			pattern := s.WorkerPattern
			if pattern == "" {
				pattern = record.DefaultWorkerPattern(args[0])
			}
			if err := record.ValidatePattern(pattern); err != nil {
				return err
			}
			name := s.Name
			if len(args) == 2 {
				name = args[1]
			}
			if name == "" {
				name = record.Prefix(args[0])
			}

			dict, err := buildDictionaries(pattern)
			if err != nil {
				return err
			}
			palette, err := legend.PaletteByName(s.Palette)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(s.OutDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			path := filepath.Join(s.OutDir, name+".pcf")
			if err := legend.WriteFile(path, dict, palette); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d states, %d events, palette %s)\n",
					okPrefix.Sprint("wrote"), pathColor.Sprint(path), dict.NumStates(), dict.NumEvents(), palette.Name)
			}
			return nil
		})
	},
}

func init() {
	addInputFlags(legendCmd)
	legendCmd.Flags().String("out-dir", config.DefaultOutDir, "output directory")
	legendCmd.Flags().String("palette", legend.DefaultPalette, "state colour palette")
}
