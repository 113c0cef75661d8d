package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultPrefix is the file name prefix the recorder uses.
	DefaultPrefix = "mir-recorder-trace"

	configSuffix = "-config.rec"
)

// Prefix derives the trace prefix from a configuration record path:
// "dir/X-config.rec" yields "X". Unrecognized names fall back to
// DefaultPrefix.
func Prefix(configPath string) string {
	base := filepath.Base(configPath)
	if p, ok := strings.CutSuffix(base, configSuffix); ok && p != "" {
		return p
	}
	return DefaultPrefix
}

// DefaultWorkerPattern returns the worker record pattern that sits next to
// the configuration record.
func DefaultWorkerPattern(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), Prefix(configPath)+"-%d.rec")
}

// ValidatePattern checks that pattern contains exactly one %d verb.
func ValidatePattern(pattern string) error {
	if strings.Count(pattern, "%") != 1 || !strings.Contains(pattern, "%d") {
		return fmt.Errorf("worker pattern %q must contain exactly one %%d", pattern)
	}
	return nil
}

// WorkerPath expands pattern for worker.
func WorkerPath(pattern string, worker int) string {
	return fmt.Sprintf(pattern, worker)
}

// ReadWorkerFile loads a worker record, reporting a missing file as
// *MissingWorkerFileError.
func ReadWorkerFile(path string, worker int) ([]byte, error) {
	// #nosec G304 -- worker paths are derived from the config record
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingWorkerFileError{Worker: worker, Path: path, Err: err}
		}
		return nil, fmt.Errorf("worker %d: %w", worker, err)
	}
	return data, nil
}
