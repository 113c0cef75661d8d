package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"mirtrace/internal/legend"
	"mirtrace/internal/record"
)

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadRaw parses path. Unknown keys are an error.
func LoadRaw(path string) (Raw, error) {
	var raw Raw
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Raw{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Raw{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return raw, nil
}

// Load reads path and resolves it against Defaults.
func Load(path string) (Settings, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return Settings{}, err
	}
	s, err := Resolve(raw)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// Discover loads the file at explicit, or the nearest FileName above
// startDir when explicit is empty. Without a file it returns Defaults.
func Discover(explicit, startDir string) (Settings, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return Defaults(), nil
	}
	return Load(path)
}

// Resolve applies raw on top of Defaults and validates the result.
// Relative paths in raw are kept as written.
func Resolve(raw Raw) (Settings, error) {
	s := Defaults()
	if raw.Input != nil {
		s.WorkerPattern = resolveString(raw.Input.WorkerPattern, s.WorkerPattern)
	}
	if raw.Output != nil {
		s.OutDir = resolveString(raw.Output.Dir, s.OutDir)
		s.Name = resolveString(raw.Output.Name, s.Name)
		s.Palette = resolveString(raw.Output.Palette, s.Palette)
		s.KeepTemp = resolveBool(raw.Output.KeepTemp, s.KeepTemp)
	}
	if raw.Run != nil {
		s.Jobs = resolveInt(raw.Run.Jobs, s.Jobs)
		s.Cache = resolveBool(raw.Run.Cache, s.Cache)
		s.CacheDir = resolveString(raw.Run.CacheDir, s.CacheDir)
	}
	return s, s.Validate()
}

// Validate checks value ranges and names.
func (s Settings) Validate() error {
	if s.Jobs < 0 {
		return fmt.Errorf("run.jobs must be >= 0, got %d", s.Jobs)
	}
	if _, err := legend.PaletteByName(s.Palette); err != nil {
		return fmt.Errorf("output.palette: %w", err)
	}
	if s.WorkerPattern != "" {
		if err := record.ValidatePattern(s.WorkerPattern); err != nil {
			return fmt.Errorf("input.worker_pattern: %w", err)
		}
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("output.name %q must not contain path separators", s.Name)
	}
	return nil
}

func resolveString(v *string, def string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return def
	}
	return strings.TrimSpace(*v)
}

func resolveBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func resolveInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
