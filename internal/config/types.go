// Package config loads the optional mirtrace.toml project file and resolves
// it against built-in defaults.
package config

import "mirtrace/internal/legend"

// FileName is the project file searched for from the working directory up.
const FileName = "mirtrace.toml"

const (
	DefaultOutDir   = "."
	DefaultJobs     = 0
	DefaultKeepTemp = false
	DefaultCache    = false
)

// Raw mirrors the TOML file. Nil fields were not set.
type Raw struct {
	Input  *RawInput  `toml:"input"`
	Output *RawOutput `toml:"output"`
	Run    *RawRun    `toml:"run"`
}

type RawInput struct {
	WorkerPattern *string `toml:"worker_pattern"`
}

type RawOutput struct {
	Dir      *string `toml:"dir"`
	Name     *string `toml:"name"`
	Palette  *string `toml:"palette"`
	KeepTemp *bool   `toml:"keep_temp"`
}

type RawRun struct {
	Jobs     *int    `toml:"jobs"`
	Cache    *bool   `toml:"cache"`
	CacheDir *string `toml:"cache_dir"`
}

// Settings is the resolved configuration. Empty WorkerPattern and Name mean
// "derive from the configuration record path".
type Settings struct {
	WorkerPattern string
	OutDir        string
	Name          string
	Palette       string
	KeepTemp      bool
	Jobs          int
	Cache         bool
	CacheDir      string
	// Source is the file the settings were read from, "" for defaults.
	Source string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		OutDir:   DefaultOutDir,
		Palette:  legend.DefaultPalette,
		KeepTemp: DefaultKeepTemp,
		Jobs:     DefaultJobs,
		Cache:    DefaultCache,
	}
}
