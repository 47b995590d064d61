package worker

import (
	"errors"
	"fmt"
	"hordegui/logger"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrScriptNotFound is returned when no launch or update script exists in
// the worker folder.
var ErrScriptNotFound = errors.New("worker script not found")

// moduleDir is the package directory of a source checkout of the worker
const moduleDir = "horde_worker_regen"

// markerFiles identify a worker installation
var markerFiles = []string{
	"horde-bridge.cmd",
	"horde-bridge.sh",
	"bridgeData_template.yaml",
	"run_worker.py",
}

// Manager handles worker installation lookups
type Manager struct {
	goos     string
	lookPath func(string) (string, error)
}

// NewManager creates a new worker manager for the running platform
func NewManager() *Manager {
	return &Manager{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
}

// DefaultCandidates lists the folders searched for an installation
func (m *Manager) DefaultCandidates() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	paths := []string{
		filepath.Join(home, "horde-worker-reGen"),
		filepath.Join(home, "Downloads", "horde-worker-reGen"),
	}

	if m.goos == "windows" {
		paths = append(paths,
			"C:/horde-worker-reGen",
			"D:/horde-worker-reGen",
		)
	} else {
		paths = append(paths,
			filepath.Join(home, "projects", "horde-worker-reGen"),
			"/opt/horde-worker-reGen",
		)
	}

	return append(paths, filepath.Join(home, "horde-worker-reGen-main"))
}

// IsInstallation checks if a folder contains a worker installation
func (m *Manager) IsInstallation(folder string) bool {
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return false
	}

	for _, name := range markerFiles {
		if _, err := os.Stat(filepath.Join(folder, name)); err == nil {
			return true
		}
	}
	return false
}

// FindInstallation returns the first candidate holding an installation
func (m *Manager) FindInstallation(candidates []string) (string, bool) {
	for _, path := range candidates {
		path = m.cleanPath(path)
		if m.IsInstallation(path) {
			logger.Log.Infof("Found worker installation at: %s", path)
			return path, true
		}
	}
	return "", false
}

// scriptCandidates returns the launch scripts to try, in order
func (m *Manager) scriptCandidates(folder string) []string {
	var names []string
	if m.goos == "windows" {
		names = []string{"horde-bridge.cmd", "horde-bridge-directml.cmd", "run_worker.py"}
	} else {
		names = []string{"horde-bridge.sh", "horde-bridge-rocm.sh", "run_worker.py"}
	}

	paths := make([]string, 0, len(names)+1)
	for _, name := range names {
		paths = append(paths, filepath.Join(folder, name))
	}
	return append(paths, filepath.Join(folder, moduleDir, "run_worker.py"))
}

// ResolveScript finds the script used to launch the worker
func (m *Manager) ResolveScript(folder string) (string, error) {
	if folder == "" {
		return "", fmt.Errorf("worker folder not set: %w", ErrScriptNotFound)
	}
	folder = m.cleanPath(folder)

	candidates := m.scriptCandidates(folder)
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", candidates[len(candidates)-1], ErrScriptNotFound)
}

// Command builds the process used to run script
func (m *Manager) Command(script string) (*exec.Cmd, error) {
	script = m.cleanPath(script)

	// Set working directory to the worker folder
	dir := filepath.Dir(script)
	if filepath.Base(dir) == moduleDir {
		dir = filepath.Dir(dir)
	}

	var name string
	var args []string
	var interpreter string

	switch strings.ToLower(filepath.Ext(script)) {
	case ".cmd", ".bat":
		name = script
	case ".sh":
		bash, err := m.lookPath("bash")
		if err != nil {
			return nil, fmt.Errorf("bash is required to run %s: %w", filepath.Base(script), err)
		}
		name, args, interpreter = bash, []string{script}, bash
	case ".py":
		python, err := m.findPython()
		if err != nil {
			return nil, err
		}
		name, args, interpreter = python, []string{script}, python
	default:
		name = script
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = m.environment(interpreter)
	return cmd, nil
}

// findPython locates a Python interpreter on PATH
func (m *Manager) findPython() (string, error) {
	for _, name := range []string{"python3", "python"} {
		if path, err := m.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no python interpreter found on PATH")
}

// environment copies the current environment with the interpreter's
// directory placed first on PATH
func (m *Manager) environment(interpreter string) []string {
	env := os.Environ()
	if interpreter == "" {
		return env
	}

	dir := filepath.Dir(interpreter)
	for i, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(key, "PATH") {
			env[i] = key + "=" + dir + string(os.PathListSeparator) + value
			return env
		}
	}
	return append(env, "PATH="+dir)
}

// cleanPath cleans and normalizes a file path
func (m *Manager) cleanPath(path string) string {
	// Remove surrounding quotes
	path = strings.Trim(path, `"'`)

	// Normalize path separators
	path = filepath.Clean(path)

	// Convert to absolute path if it's not already
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err == nil {
			path = absPath
		}
	}

	return path
}
