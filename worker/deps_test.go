package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePython writes an executable shell script standing in for python
func fakePython(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a shell script")
	}
	path := filepath.Join(t.TempDir(), "python3")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestPythonPrefersBundledRuntime(t *testing.T) {
	folder := t.TempDir()
	m := &Manager{goos: "linux", lookPath: fakeLookPath(map[string]string{"python3": "/usr/bin/python3"})}

	python, err := m.Python(folder)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3", python)

	bundled := filepath.Join(folder, "conda", "envs", "linux", "bin", "python")
	touch(t, bundled)
	python, err = m.Python(folder)
	require.NoError(t, err)
	assert.Equal(t, bundled, python)

	win := &Manager{goos: "windows", lookPath: fakeLookPath(nil)}
	_, err = win.Python(folder)
	assert.Error(t, err)
}

func TestMissingModules(t *testing.T) {
	// Report the import names "torch" and "PIL" as missing
	python := fakePython(t, `for name in "$@"; do
  case "$name" in torch|PIL) echo "$name" ;; esac
done
`)
	m := &Manager{goos: "linux", lookPath: fakeLookPath(map[string]string{"python3": python})}

	missing, err := m.MissingModules(context.Background(), t.TempDir(), RequiredModules)
	require.NoError(t, err)
	assert.Equal(t, []Module{
		{Import: "PIL", Package: "pillow"},
		{Import: "torch", Package: "torch"},
	}, missing)
	assert.Equal(t, []string{"pillow", "torch"}, Packages(missing))

	none, err := m.MissingModules(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMissingModulesInterpreterFails(t *testing.T) {
	python := fakePython(t, "echo 'broken interpreter' >&2\nexit 1\n")
	m := &Manager{goos: "linux", lookPath: fakeLookPath(map[string]string{"python3": python})}

	_, err := m.MissingModules(context.Background(), t.TempDir(), RequiredModules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken interpreter")
}

func TestInstallModulesContinuesAfterFailure(t *testing.T) {
	record := filepath.Join(t.TempDir(), "pip.log")
	python := fakePython(t, `echo "$@" >> '`+record+`'
[ "$4" = torch ] && exit 1
exit 0
`)
	m := &Manager{goos: "linux", lookPath: fakeLookPath(map[string]string{"python3": python})}

	var out bytes.Buffer
	mods := []Module{{Import: "torch", Package: "torch"}, {Import: "yaml", Package: "pyyaml"}}
	err := m.InstallModules(context.Background(), t.TempDir(), mods, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "installing torch")
	assert.NotContains(t, err.Error(), "pyyaml")

	raw, readErr := os.ReadFile(record)
	require.NoError(t, readErr)
	assert.Equal(t, []string{"-m pip install torch", "-m pip install pyyaml"}, strings.Split(strings.TrimSpace(string(raw)), "\n"))
	assert.Contains(t, out.String(), "Successfully installed pyyaml")
	assert.Contains(t, out.String(), "Failed to install torch")
}

func TestInstallModulesStopsWhenCancelled(t *testing.T) {
	python := fakePython(t, "exit 0\n")
	m := &Manager{goos: "linux", lookPath: fakeLookPath(map[string]string{"python3": python})}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.InstallModules(ctx, t.TempDir(), RequiredModules, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
