package main

import (
	"bytes"
	"context"
	"hordegui/bridge"
	"hordegui/models"
	"hordegui/monitor"
	"hordegui/stats"
	"hordegui/storage"
	"hordegui/worker"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestSpinnerWriterSplitsLines(t *testing.T) {
	var out bytes.Buffer
	w := newSpinnerWriter("testing", &out)

	n, err := w.Write([]byte("Already up to date.\r\nFetching"))
	require.NoError(t, err)
	assert.Equal(t, 29, n)
	assert.Equal(t, "Fetching", string(w.buf))

	w.Finish()
	assert.Empty(t, w.buf)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, levelFor(monitor.Error))
	assert.Equal(t, logrus.WarnLevel, levelFor(monitor.Warning))
	assert.Equal(t, logrus.DebugLevel, levelFor(monitor.Info))
	assert.Equal(t, logrus.InfoLevel, levelFor(monitor.JobCompleted))
}

func TestPrintConfigMasksKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), models.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("horde_api_key: abcdefgh1234\ndreamer_name: test\nmax_power: 500\n"), 0644))
	doc, err := bridge.Load(path)
	require.NoError(t, err)

	var out bytes.Buffer
	printConfig(&out, doc)

	assert.Contains(t, out.String(), "********1234")
	assert.NotContains(t, out.String(), "abcdefgh")
	assert.Contains(t, out.String(), "max_power must be between 8 and 128")
	assert.Contains(t, out.String(), "(none)")
}

func TestPrintSnapshot(t *testing.T) {
	var out bytes.Buffer
	printSnapshot(&out, stats.Snapshot{JobsCompleted: 3, KudosEarned: 12.5, Uptime: 90 * time.Minute})
	assert.Contains(t, out.String(), "01:30:00")
	assert.Contains(t, out.String(), "Jobs completed:  3")
	assert.Contains(t, out.String(), "12.5")
}

func TestFindStoresInstallation(t *testing.T) {
	settingsDir := t.TempDir()
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "horde-bridge.sh"), []byte("#!/bin/bash\n"), 0755))

	require.NoError(t, app.Run([]string{"horde-worker-gui", "--settings-dir", settingsDir, "find", folder}))

	settings, err := storage.NewManager(settingsDir).LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, folder, settings.WorkerFolder)
	assert.Equal(t, filepath.Join(folder, models.ConfigFileName), settings.ConfigFile)
}

func TestRunWithoutFolder(t *testing.T) {
	err := app.Run([]string{"horde-worker-gui", "--settings-dir", t.TempDir(), "run"})
	assert.ErrorIs(t, err, errNoFolder)
}

func TestConfigRecreatesDeletedFile(t *testing.T) {
	settingsDir := t.TempDir()
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, bridge.TemplateFileName), []byte("dreamer_name: template\n"), 0644))

	store := storage.NewManager(settingsDir)
	settings := models.DefaultSettings()
	settings.SetWorkerFolder(folder)
	require.NoError(t, store.SaveSettings(settings))

	require.NoError(t, app.Run([]string{"horde-worker-gui", "--settings-dir", settingsDir, "config"}))
	assert.FileExists(t, filepath.Join(folder, models.ConfigFileName))
}

// fakeWorkerPython puts a python3 on PATH that reports torch as missing
// and accepts every pip install
func fakeWorkerPython(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a shell script")
	}
	dir := t.TempDir()
	record := filepath.Join(dir, "pip.log")
	script := "#!/bin/sh\nif [ \"$1\" = -c ]; then echo torch; exit 0; fi\necho \"$@\" >> '" + record + "'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "python3"), []byte(script), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return record
}

func TestRunStopsOnMissingDependencies(t *testing.T) {
	fakeWorkerPython(t)
	settingsDir := t.TempDir()
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "horde-bridge.sh"), []byte("exit 0\n"), 0755))
	require.NoError(t, app.Run([]string{"horde-worker-gui", "--settings-dir", settingsDir, "find", folder}))

	err := app.Run([]string{"horde-worker-gui", "--settings-dir", settingsDir, "run"})
	assert.ErrorIs(t, err, errMissingDeps)
	assert.Contains(t, err.Error(), "pip install torch")
}

func TestCheckDependenciesInstallsMissing(t *testing.T) {
	record := fakeWorkerPython(t)

	var out bytes.Buffer
	require.NoError(t, checkDependencies(context.Background(), worker.NewManager(), t.TempDir(), true, &out))
	assert.Contains(t, out.String(), "Missing worker dependencies: torch")
	assert.Contains(t, out.String(), "installed successfully")

	raw, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Equal(t, "-m pip install torch\n", string(raw))
}
