package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hordegui/logger"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Module is a Python module the worker imports together with the pip
// package that provides it
type Module struct {
	Import  string
	Package string
}

// RequiredModules are checked before the worker is started
var RequiredModules = []Module{
	{Import: "loguru", Package: "loguru"},
	{Import: "yaml", Package: "pyyaml"},
	{Import: "requests", Package: "requests"},
	{Import: "tqdm", Package: "tqdm"},
	{Import: "PIL", Package: "pillow"},
	{Import: "numpy", Package: "numpy"},
	{Import: "torch", Package: "torch"},
	{Import: "transformers", Package: "transformers"},
	{Import: "diffusers", Package: "diffusers"},
}

// findSpec prints every module name from argv that cannot be found. Modules
// are located without importing them, so torch is not loaded.
const findSpec = `import importlib.util, sys
for name in sys.argv[1:]:
    try:
        found = importlib.util.find_spec(name) is not None
    except (ImportError, ValueError):
        found = False
    if not found:
        print(name)
`

// Packages lists the pip package names of mods
func Packages(mods []Module) []string {
	names := make([]string, len(mods))
	for i, mod := range mods {
		names[i] = mod.Package
	}
	return names
}

// Python returns the interpreter the worker in folder runs with. The
// runtime bundled with the worker is preferred over one on PATH.
func (m *Manager) Python(folder string) (string, error) {
	if folder != "" {
		folder = m.cleanPath(folder)
		bundled := filepath.Join(folder, "conda", "envs", "linux", "bin", "python")
		if m.goos == "windows" {
			bundled = filepath.Join(folder, "conda", "envs", "windows", "python.exe")
		}
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			return bundled, nil
		}
	}
	return m.findPython()
}

// MissingModules returns the modules of mods the worker's interpreter
// cannot import
func (m *Manager) MissingModules(ctx context.Context, folder string, mods []Module) ([]Module, error) {
	if len(mods) == 0 {
		return nil, nil
	}
	python, err := m.Python(folder)
	if err != nil {
		return nil, err
	}

	args := []string{"-c", findSpec}
	for _, mod := range mods {
		args = append(args, mod.Import)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, args...)
	if folder != "" {
		cmd.Dir = m.cleanPath(folder)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("checking python modules: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("checking python modules: %w", err)
	}

	missing := make(map[string]bool)
	for _, name := range strings.Fields(stdout.String()) {
		missing[name] = true
	}

	var out []Module
	for _, mod := range mods {
		if missing[mod.Import] {
			out = append(out, mod)
		}
	}
	logger.Log.WithField("python", python).Debugf("%d of %d worker modules missing", len(out), len(mods))
	return out, nil
}

// InstallModules installs the packages of mods with pip, writing the pip
// output to out. Every package is attempted; the failures are returned
// together.
func (m *Manager) InstallModules(ctx context.Context, folder string, mods []Module, out io.Writer) error {
	python, err := m.Python(folder)
	if err != nil {
		return err
	}
	if out == nil {
		out = io.Discard
	}
	dir := ""
	if folder != "" {
		dir = m.cleanPath(folder)
	}

	var errs []error
	for _, mod := range mods {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(out, "Installing %s...\n", mod.Package)
		logger.Log.WithField("package", mod.Package).Info("Installing worker dependency")
		if err := m.runTool(ctx, dir, out, python, "-m", "pip", "install", mod.Package); err != nil {
			fmt.Fprintf(out, "Failed to install %s: %v\n", mod.Package, err)
			errs = append(errs, fmt.Errorf("installing %s: %w", mod.Package, err))
			continue
		}
		fmt.Fprintf(out, "Successfully installed %s\n", mod.Package)
	}
	return errors.Join(errs...)
}
