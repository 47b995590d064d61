package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateWorkerRequiresGitCheckout(t *testing.T) {
	m := NewManager()
	err := m.UpdateWorker(context.Background(), t.TempDir(), nil)
	assert.True(t, errors.Is(err, ErrNotGitCheckout))

	err = m.UpdateWorker(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestUpdateRuntimeMissingScript(t *testing.T) {
	m := NewManager()
	err := m.UpdateRuntime(context.Background(), t.TempDir(), nil)
	assert.True(t, errors.Is(err, ErrScriptNotFound))
}

func TestUpdateRuntimeRunsScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("runs a bash script")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "update-runtime.sh"), []byte("echo updated from $(pwd)\n"), 0755))

	var out bytes.Buffer
	require.NoError(t, NewManager().UpdateRuntime(context.Background(), dir, &out))
	assert.Contains(t, out.String(), "updated from")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "update-runtime.sh"), []byte("exit 2\n"), 0755))
	assert.Error(t, NewManager().UpdateRuntime(context.Background(), dir, &out))
}
