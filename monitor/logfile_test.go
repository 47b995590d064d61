package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	var sb strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&sb, "line %d\r\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))

	lines, total, err := ReadTail(path, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Equal(t, []string{"line 8", "line 9", "line 10", "line 11", "line 12"}, lines)

	lines, total, err = ReadTail(path, 50)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Len(t, lines, 12)
	assert.Equal(t, "line 1", lines[0])
}

func TestReadTailLongLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	long := strings.Repeat("x", MaxLineBytes+100000)
	require.NoError(t, os.WriteFile(path, []byte("first\n"+long+"\nlast\n"), 0644))

	lines, total, err := ReadTail(path, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, lines, 3)
	assert.Equal(t, "first", lines[0])
	assert.Len(t, lines[1], MaxLineBytes)
	assert.Equal(t, "last", lines[2])
}

func TestReadLines(t *testing.T) {
	var got []string
	collect := func(l string) { got = append(got, l) }

	require.NoError(t, ReadLines(strings.NewReader("a\r\n\nb\nno newline"), collect))
	assert.Equal(t, []string{"a", "", "b", "no newline"}, got)

	got = nil
	long := strings.Repeat("y", 3*MaxLineBytes)
	require.NoError(t, ReadLines(strings.NewReader(long+"\nafter\n"+long), collect))
	require.Len(t, got, 3)
	assert.Len(t, got[0], MaxLineBytes)
	assert.Equal(t, "after", got[1])
	assert.Len(t, got[2], MaxLineBytes)

	got = nil
	require.NoError(t, ReadLines(strings.NewReader(""), collect))
	assert.Empty(t, got)
}

func TestReadTailMissingFile(t *testing.T) {
	_, _, err := ReadTail(filepath.Join(t.TempDir(), "trace.log"), 0)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStamp(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 5, 1, 0, time.UTC)
	assert.Equal(t, "[2026-10-18 09:05:01] hello", Stamp("hello", now))
	assert.Equal(t, "[2025-01-01 00:00:00] kept", Stamp("[2025-01-01 00:00:00] kept", now))
	assert.Equal(t, "--- separator", Stamp("--- separator", now))
}

func TestLogBufferBounded(t *testing.T) {
	b := NewLogBuffer(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		b.AppendRaw(fmt.Sprintf("l%d", i))
	}
	assert.Equal(t, []string{"l2", "l3", "l4"}, b.Lines())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, "l2", b.Line(0))
	assert.Equal(t, "", b.Line(3))

	stamped := b.Append("new", now)
	assert.True(t, strings.HasSuffix(stamped, "] new"))
	assert.Equal(t, stamped, b.Line(2))

	b.Clear()
	assert.Zero(t, b.Len())
}

func TestFolderOpener(t *testing.T) {
	assert.Equal(t, "explorer", folderOpener("windows"))
	assert.Equal(t, "open", folderOpener("darwin"))
	assert.Equal(t, "xdg-open", folderOpener("linux"))
}

func TestLogsDir(t *testing.T) {
	assert.Equal(t, filepath.Join("worker", "logs"), LogsDir("worker"))
	assert.Equal(t, SourceDirect, Sources[0])
}
