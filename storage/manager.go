package storage

import (
	"encoding/json"
	"fmt"
	"hordegui/logger"
	"hordegui/models"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	settingsFile = "gui_settings.json"
	jobsFile     = "jobs.json"

	// MaxJobHistory is the number of completed jobs kept on disk.
	MaxJobHistory = 50
)

// Manager handles data persistence in the settings directory
type Manager struct {
	mu       sync.Mutex
	dataPath string
}

// NewManager creates a storage manager rooted at dir. An empty dir selects
// the "settings" directory next to the executable, or one under the user's
// home directory when that is not writable.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = defaultDir()
	}
	dir = cleanPath(dir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Log.WithError(err).Warnf("Could not create settings directory %s, using current directory", dir)
		dir = "."
	}

	return &Manager{
		dataPath: dir,
	}
}

// Dir returns the directory the manager writes to
func (m *Manager) Dir() string {
	return m.dataPath
}

// defaultDir picks the settings directory for a fresh manager
func defaultDir() string {
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Join(filepath.Dir(exe), "settings")
		if writable(dir) {
			return dir
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".horde-worker-gui", "settings")
}

// writable reports whether dir exists or can be created, and accepts files
func writable(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// LoadSettings loads the settings from disk. On first launch the default
// settings are written and returned. Paths that no longer exist are cleared.
func (m *Manager) LoadSettings() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filePath := filepath.Join(m.dataPath, settingsFile)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Log.Debugf("Settings file %s does not exist, creating defaults", filePath)
			settings := models.DefaultSettings()
			if err := m.writeJSON(settingsFile, settings); err != nil {
				return settings, err
			}
			return settings, nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	var settings models.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", filePath, err)
	}
	settings.FillDefaults()

	settings.WorkerFolder = cleanPath(settings.WorkerFolder)
	settings.ConfigFile = cleanPath(settings.ConfigFile)

	if settings.WorkerFolder != "" && !exists(settings.WorkerFolder) {
		logger.Log.Warnf("Saved worker folder %s no longer exists", settings.WorkerFolder)
		settings.WorkerFolder = ""
	}
	if settings.ConfigFile != "" && !exists(settings.ConfigFile) {
		logger.Log.Warnf("Saved config file %s no longer exists", settings.ConfigFile)
		settings.ConfigFile = ""
	}
	// The config always lives in the worker folder; a missing one is
	// recreated from the template when it is loaded
	if settings.WorkerFolder != "" {
		settings.SetWorkerFolder(settings.WorkerFolder)
	}

	return &settings, nil
}

// SaveSettings saves the settings to disk
func (m *Manager) SaveSettings(settings *models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeJSON(settingsFile, settings)
}

// SaveJobs saves the job history, keeping only the newest MaxJobHistory
// entries. The slice is expected newest first.
func (m *Manager) SaveJobs(jobs []*models.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(jobs) > MaxJobHistory {
		jobs = jobs[:MaxJobHistory]
	}
	logger.Log.Debugf("Saving %d jobs", len(jobs))
	return m.writeJSON(jobsFile, jobs)
}

// LoadJobs loads the job history from disk
func (m *Manager) LoadJobs() ([]*models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.dataPath, jobsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.JobRecord{}, nil
		}
		return nil, err
	}

	var jobs []*models.JobRecord
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing job history: %w", err)
	}
	return jobs, nil
}

// writeJSON marshals v into name, replacing the file atomically
func (m *Manager) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	filePath := filepath.Join(m.dataPath, name)
	tmp, err := os.CreateTemp(m.dataPath, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	// CreateTemp makes 0600 files
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// cleanPath cleans and normalizes a file path
func cleanPath(path string) string {
	// Remove surrounding quotes
	path = strings.Trim(path, `"'`)
	if path == "" {
		return ""
	}

	return filepath.Clean(path)
}
