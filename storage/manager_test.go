package storage

import (
	"fmt"
	"hordegui/models"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsCreatesDefaultsOnFirstRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "settings")
	m := NewManager(dir)

	settings, err := m.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, models.LogSourceDirect, settings.Pref(models.PrefLogSource))
	assert.FileExists(t, filepath.Join(dir, "gui_settings.json"))
}

func TestSettingsRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())
	worker := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(worker, models.ConfigFileName), []byte("nsfw: false\n"), 0644))

	in := models.DefaultSettings()
	in.SetWorkerFolder(worker)
	in.SetPref("custom_key", "kept")
	require.NoError(t, m.SaveSettings(in))

	out, err := m.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, worker, out.WorkerFolder)
	assert.Equal(t, filepath.Join(worker, models.ConfigFileName), out.ConfigFile)
	assert.Equal(t, "kept", out.Pref("custom_key"))
}

func TestLoadSettingsClearsMissingPaths(t *testing.T) {
	m := NewManager(t.TempDir())
	worker := t.TempDir()

	in := models.DefaultSettings()
	in.SetWorkerFolder(worker) // config file is never created
	require.NoError(t, m.SaveSettings(in))

	out, err := m.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, worker, out.WorkerFolder)
	assert.Equal(t, filepath.Join(worker, models.ConfigFileName), out.ConfigFile)

	require.NoError(t, os.RemoveAll(worker))
	out, err = m.LoadSettings()
	require.NoError(t, err)
	assert.Empty(t, out.WorkerFolder)
}

func TestLoadSettingsRederivesDeletedConfig(t *testing.T) {
	m := NewManager(t.TempDir())
	worker := t.TempDir()
	config := filepath.Join(worker, models.ConfigFileName)
	require.NoError(t, os.WriteFile(filepath.Join(worker, "bridgeData_template.yaml"), []byte("nsfw: false\n"), 0644))
	require.NoError(t, os.WriteFile(config, []byte("nsfw: true\n"), 0644))

	in := models.DefaultSettings()
	in.SetWorkerFolder(worker)
	require.NoError(t, m.SaveSettings(in))
	require.NoError(t, os.Remove(config))

	out, err := m.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, worker, out.WorkerFolder)
	assert.Equal(t, config, out.ConfigFile)

	// A stale config path without a folder is still dropped
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "gui_settings.json"),
		[]byte(`{"worker_folder":"","config_file":"/nowhere/bridgeData.yaml"}`), 0644))
	out, err = m.LoadSettings()
	require.NoError(t, err)
	assert.Empty(t, out.ConfigFile)
}

func TestLoadSettingsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gui_settings.json"), []byte("{not json"), 0644))

	_, err := NewManager(dir).LoadSettings()
	assert.Error(t, err)
}

func TestLoadSettingsFillsMissingPreferences(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gui_settings.json"),
		[]byte(`{"worker_folder":"","config_file":"","ui_preferences":{"theme":"dark"}}`), 0644))

	settings, err := NewManager(dir).LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "dark", settings.Pref(models.PrefTheme))
	assert.True(t, settings.BoolPref(models.PrefAutoScroll))
}

func TestJobHistoryIsCapped(t *testing.T) {
	m := NewManager(t.TempDir())

	jobs, err := m.LoadJobs()
	require.NoError(t, err)
	assert.Empty(t, jobs)

	now := time.Now()
	for i := 0; i < MaxJobHistory+10; i++ {
		jobs = append(jobs, models.NewJobRecord(fmt.Sprintf("job %d", i), 1.5, now))
	}
	require.NoError(t, m.SaveJobs(jobs))

	loaded, err := m.LoadJobs()
	require.NoError(t, err)
	require.Len(t, loaded, MaxJobHistory)
	assert.Equal(t, "job 0", loaded[0].Details)
	assert.Equal(t, jobs[0].ID, loaded[0].ID)
}

func TestFilesAreWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.SaveSettings(models.DefaultSettings()))
	require.NoError(t, m.SaveJobs([]*models.JobRecord{models.NewJobRecord("job", 1, time.Now())}))

	for _, name := range []string{"gui_settings.json", "jobs.json"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm(), name)
	}
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "", cleanPath(""))
	assert.Equal(t, filepath.Clean("/opt/worker"), cleanPath(`"/opt/worker/"`))
}
