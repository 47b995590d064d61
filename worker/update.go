package worker

import (
	"context"
	"errors"
	"fmt"
	"hordegui/logger"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// ArchiveURL is offered for installations that are not git checkouts
const ArchiveURL = "https://github.com/Haidra-Org/horde-worker-reGen/archive/main.zip"

// ErrNotGitCheckout is returned by UpdateWorker for installations that
// were not cloned with git
var ErrNotGitCheckout = errors.New("installation is not a git checkout")

// UpdateWorker pulls the latest worker code into folder
func (m *Manager) UpdateWorker(ctx context.Context, folder string, out io.Writer) error {
	if folder == "" {
		return errors.New("worker folder not set")
	}
	folder = m.cleanPath(folder)

	if _, err := os.Stat(filepath.Join(folder, ".git")); err != nil {
		if os.IsNotExist(err) {
			return ErrNotGitCheckout
		}
		return err
	}

	git, err := m.lookPath("git")
	if err != nil {
		return fmt.Errorf("git is required to update the worker: %w", err)
	}

	logger.Log.WithField("folder", folder).Info("Updating worker with git pull")
	return m.runTool(ctx, folder, out, git, "pull")
}

// UpdateRuntime runs the worker's runtime update script
func (m *Manager) UpdateRuntime(ctx context.Context, folder string, out io.Writer) error {
	if folder == "" {
		return errors.New("worker folder not set")
	}
	folder = m.cleanPath(folder)

	name := "update-runtime.sh"
	if m.goos == "windows" {
		name = "update-runtime.cmd"
	}
	script := filepath.Join(folder, name)
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("%s: %w", script, ErrScriptNotFound)
	}

	logger.Log.WithField("script", script).Info("Updating worker runtime")
	if m.goos == "windows" {
		return m.runTool(ctx, folder, out, script)
	}

	bash, err := m.lookPath("bash")
	if err != nil {
		return fmt.Errorf("bash is required to run %s: %w", name, err)
	}
	return m.runTool(ctx, folder, out, bash, script)
}

func (m *Manager) runTool(ctx context.Context, dir string, out io.Writer, name string, args ...string) error {
	if out == nil {
		out = io.Discard
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", filepath.Base(name), err)
	}
	return nil
}
