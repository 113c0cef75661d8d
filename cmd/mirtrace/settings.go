package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mirtrace/internal/config"
)

func configFileName() string { return config.FileName }

// loadSettings resolves the project file and then applies any flag the user
// set explicitly. Flags win over the file, the file over defaults.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	explicit, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	s, err := config.Discover(explicit, ".")
	if err != nil {
		return config.Settings{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("worker-pattern") {
		if s.WorkerPattern, err = flags.GetString("worker-pattern"); err != nil {
			return config.Settings{}, err
		}
	}
	if flags.Changed("out-dir") {
		if s.OutDir, err = flags.GetString("out-dir"); err != nil {
			return config.Settings{}, err
		}
	}
	if flags.Changed("palette") {
		if s.Palette, err = flags.GetString("palette"); err != nil {
			return config.Settings{}, err
		}
	}
	if flags.Changed("keep-tmp") {
		if s.KeepTemp, err = flags.GetBool("keep-tmp"); err != nil {
			return config.Settings{}, err
		}
	}
	if flags.Changed("jobs") {
		if s.Jobs, err = flags.GetInt("jobs"); err != nil {
			return config.Settings{}, err
		}
	}
	if flags.Changed("cache") {
		if s.Cache, err = flags.GetBool("cache"); err != nil {
			return config.Settings{}, err
		}
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}
