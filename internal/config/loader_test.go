package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, `
[input]
worker_pattern = "traces/run-%d.rec"

[output]
dir = "out"
palette = "paraver"
keep_temp = true

[run]
jobs = 4
cache = true
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Settings{
		WorkerPattern: "traces/run-%d.rec",
		OutDir:        "out",
		Palette:       "paraver",
		KeepTemp:      true,
		Jobs:          4,
		Cache:         true,
		Source:        path,
	}, s)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "[output]\nname = \"fib\"\n")
	s, err := Load(path)
	require.NoError(t, err)

	want := Defaults()
	want.Name = "fib"
	want.Source = path
	assert.Equal(t, want, s)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "[run]\nthreads = 3\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.threads")
}

func TestLoadValidates(t *testing.T) {
	cases := map[string]string{
		"jobs":    "[run]\njobs = -1\n",
		"palette": "[output]\npalette = \"neon\"\n",
		"pattern": "[input]\nworker_pattern = \"w.rec\"\n",
		"name":    "[output]\nname = \"a/b\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			writeFile(t, path, content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, FileName)
	writeFile(t, path, "")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok, err := Find(nested)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, got)
}

func TestDiscoverWithoutFile(t *testing.T) {
	s, err := Discover("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}
