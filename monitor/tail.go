package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"hordegui/logger"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultPollInterval = time.Second

// Tailer follows a log file from its current end, like tail -f. Write
// notifications come from fsnotify; a slow poll covers filesystems where
// those are not delivered.
type Tailer struct {
	path    string
	lines   chan string
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	watcher *fsnotify.Watcher
	poll    time.Duration

	f       *os.File
	offset  int64
	pending []byte
}

// NewTailer starts following path. The file is created when missing.
func NewTailer(path string) (*Tailer, error) {
	return newTailer(path, defaultPollInterval)
}

func newTailer(path string, poll time.Duration) (*Tailer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &Tailer{
		path:   path,
		lines:  make(chan string, 256),
		done:   make(chan struct{}),
		poll:   poll,
		f:      f,
		offset: offset,
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory so rotated and recreated files are noticed
		err = watcher.Add(filepath.Dir(path))
		if err != nil {
			watcher.Close()
		}
	}
	if err != nil {
		logger.Log.WithError(err).Debug("File notifications unavailable, polling log file")
	} else {
		t.watcher = watcher
	}

	t.wg.Add(1)
	go t.loop()
	return t, nil
}

// Lines delivers complete lines appended to the file. It is closed by Close.
func (t *Tailer) Lines() <-chan string {
	return t.lines
}

// Path returns the followed file
func (t *Tailer) Path() string {
	return t.path
}

// Close stops following the file
func (t *Tailer) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		t.wg.Wait()
		if t.watcher != nil {
			err = t.watcher.Close()
		}
		if cerr := t.f.Close(); err == nil {
			err = cerr
		}
		close(t.lines)
	})
	return err
}

func (t *Tailer) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if t.watcher != nil {
		events = t.watcher.Events
		errs = t.watcher.Errors
	}

	for {
		select {
		case <-t.done:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(t.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.readAvailable()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Log.WithError(err).Debug("Log watcher error")
		case <-ticker.C:
			t.readAvailable()
		}
	}
}

// reopenIfReplaced starts over when the file was truncated or replaced
func (t *Tailer) reopenIfReplaced() {
	onDisk, err := os.Stat(t.path)
	if err != nil {
		return
	}
	current, err := t.f.Stat()
	if err != nil {
		return
	}

	if !os.SameFile(onDisk, current) {
		f, err := os.Open(t.path)
		if err != nil {
			return
		}
		t.f.Close()
		t.f = f
		t.offset = 0
		t.pending = nil
		return
	}

	if onDisk.Size() < t.offset {
		t.offset = 0
		t.pending = nil
	}
}

func (t *Tailer) readAvailable() {
	t.reopenIfReplaced()

	buf := make([]byte, 32*1024)
	for {
		n, err := t.f.ReadAt(buf, t.offset)
		if n > 0 {
			t.offset += int64(n)
			t.pending = append(t.pending, buf[:n]...)
			if !t.emit() {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Log.WithError(err).Debug("Error reading log file")
			}
			return
		}
	}
}

// emit sends every complete pending line; false means the tailer closed
func (t *Tailer) emit() bool {
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			return true
		}
		line := strings.TrimRight(string(t.pending[:i]), "\r")
		t.pending = t.pending[i+1:]

		select {
		case t.lines <- line:
		case <-t.done:
			return false
		}
	}
}
