package models

import (
	"path/filepath"
	"strconv"
)

// ConfigFileName is the worker configuration file inside the worker folder.
const ConfigFileName = "bridgeData.yaml"

// UI preference keys
const (
	PrefLogSource     = "log_source"
	PrefAutoScroll    = "auto_scroll"
	PrefAutoRestart   = "auto_restart"
	PrefTheme         = "theme"
	PrefLastBrowseDir = "last_browse_dir"
)

// LogSourceDirect selects live worker output instead of a log file.
const LogSourceDirect = "Direct Output"

// Settings represents the GUI's own persisted state
type Settings struct {
	WorkerFolder  string            `json:"worker_folder"`
	ConfigFile    string            `json:"config_file"`
	UIPreferences map[string]string `json:"ui_preferences"`
}

// DefaultSettings returns the settings written on first launch
func DefaultSettings() *Settings {
	return &Settings{
		UIPreferences: map[string]string{
			PrefLogSource:   LogSourceDirect,
			PrefAutoScroll:  "true",
			PrefAutoRestart: "false",
			PrefTheme:       "system",
		},
	}
}

// ConfigPath returns the worker config location, deriving it from the
// worker folder when none is recorded
func (s *Settings) ConfigPath() string {
	if s.ConfigFile == "" && s.WorkerFolder != "" {
		return filepath.Join(s.WorkerFolder, ConfigFileName)
	}
	return s.ConfigFile
}

// SetWorkerFolder points the settings at a worker installation and derives
// the config file location from it.
func (s *Settings) SetWorkerFolder(dir string) {
	s.WorkerFolder = dir
	if dir == "" {
		s.ConfigFile = ""
		return
	}
	s.ConfigFile = filepath.Join(dir, ConfigFileName)
}

// Pref returns a UI preference, falling back to the default value.
func (s *Settings) Pref(key string) string {
	if v, ok := s.UIPreferences[key]; ok {
		return v
	}
	return DefaultSettings().UIPreferences[key]
}

// BoolPref returns a UI preference parsed as a bool.
func (s *Settings) BoolPref(key string) bool {
	b, err := strconv.ParseBool(s.Pref(key))
	return err == nil && b
}

// SetPref stores a UI preference.
func (s *Settings) SetPref(key, value string) {
	if s.UIPreferences == nil {
		s.UIPreferences = make(map[string]string)
	}
	s.UIPreferences[key] = value
}

// SetBoolPref stores a bool UI preference.
func (s *Settings) SetBoolPref(key string, value bool) {
	s.SetPref(key, strconv.FormatBool(value))
}

// FillDefaults adds any missing default preference without touching
// values the user already has.
func (s *Settings) FillDefaults() {
	for k, v := range DefaultSettings().UIPreferences {
		if _, ok := s.UIPreferences[k]; !ok {
			s.SetPref(k, v)
		}
	}
}
