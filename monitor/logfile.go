package monitor

import (
	"bufio"
	"fmt"
	"hordegui/logger"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTailLines is how many lines of a log file are shown
	DefaultTailLines = 500
	// DefaultBufferLines is how many display lines the log view keeps
	DefaultBufferLines = 5000

	timestampLayout = "2006-01-02 15:04:05"
)

// SourceDirect is the live worker output
const SourceDirect = "Direct Output"

// Sources lists the selectable log sources. "bridge*" files contain all
// output; "trace*" files only errors and warnings.
var Sources = []string{
	SourceDirect,
	"bridge.log",
	"bridge_1.log",
	"bridge_2.log",
	"trace.log",
	"trace_1.log",
	"trace_2.log",
}

// LogsDir returns the worker's log directory
func LogsDir(workerFolder string) string {
	return filepath.Join(workerFolder, "logs")
}

// MaxLineBytes caps the length of a single output line
const MaxLineBytes = 1 << 20

// ReadLines calls fn for every line of r until EOF. Line endings are
// stripped. A line longer than MaxLineBytes is cut at the cap and the
// rest of it is skipped, so reading continues with the next line.
func ReadLines(r io.Reader, fn func(string)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	line := make([]byte, 0, 4096)
	truncated := false

	for {
		chunk, err := br.ReadSlice('\n')
		if !truncated {
			if room := MaxLineBytes - len(line); len(chunk) > room {
				line = append(line, chunk[:room]...)
				truncated = true
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return err
		}
		if err == nil || len(line) > 0 {
			fn(strings.TrimRight(string(line), "\r\n"))
		}
		if err == io.EOF {
			return nil
		}
		line = line[:0]
		truncated = false
	}
}

// ReadTail returns the last n lines of the file at path together with the
// total number of lines in it.
func ReadTail(path string, n int) ([]string, int, error) {
	if n <= 0 {
		n = DefaultTailLines
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	ring := make([]string, n)
	total := 0

	err = ReadLines(f, func(line string) {
		ring[total%n] = strings.ToValidUTF8(line, "\uFFFD")
		total++
	})
	if err != nil {
		return nil, total, fmt.Errorf("reading log file: %w", err)
	}

	if total <= n {
		return ring[:total], total, nil
	}

	start := total % n
	lines := make([]string, 0, n)
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return lines, total, nil
}

// LogBuffer holds the lines shown in the log view
type LogBuffer struct {
	mu    sync.RWMutex
	lines []string
	max   int
}

// NewLogBuffer creates a buffer that keeps the newest max lines
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultBufferLines
	}
	return &LogBuffer{max: max}
}

// Stamp prefixes line with a timestamp unless it already carries one
func Stamp(line string, now time.Time) string {
	if strings.HasPrefix(line, "[20") || strings.HasPrefix(line, "---") {
		return line
	}
	return fmt.Sprintf("[%s] %s", now.Format(timestampLayout), line)
}

// Append adds a timestamped line and returns it
func (b *LogBuffer) Append(line string, now time.Time) string {
	line = Stamp(line, now)
	b.AppendRaw(line)
	return line
}

// AppendRaw adds a line as is
func (b *LogBuffer) AppendRaw(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

// Len returns the number of buffered lines
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Line returns the i-th buffered line, or "" when out of range
func (b *LogBuffer) Line(i int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.lines) {
		return ""
	}
	return b.lines[i]
}

// Lines returns a copy of the buffered lines
func (b *LogBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.lines...)
}

// Clear empties the buffer
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// folderOpener returns the file browser command for goos
func folderOpener(goos string) string {
	switch goos {
	case "windows":
		return "explorer"
	case "darwin":
		return "open"
	default:
		return "xdg-open"
	}
}

// OpenFolder creates dir if needed and shows it in the system file browser
func OpenFolder(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create folder: %w", err)
	}

	cmd := exec.Command(folderOpener(runtime.GOOS), dir)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not open folder: %w", err)
	}
	go cmd.Wait()

	logger.Log.Debugf("Opened folder: %s", dir)
	return nil
}
