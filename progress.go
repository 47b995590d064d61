package main

import (
	"bytes"
	"io"
	"strings"

	"github.com/schollz/progressbar/v3"
)

const maxDescription = 60

// spinnerWriter shows command output as a spinner whose description is
// the most recent output line. Full lines are also logged at debug level.
type spinnerWriter struct {
	bar *progressbar.ProgressBar
	buf []byte
}

func newSpinnerWriter(desc string, out io.Writer) *spinnerWriter {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	_ = bar.RenderBlank()
	return &spinnerWriter{bar: bar}
}

func (w *spinnerWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.line(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *spinnerWriter) line(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	log.Debug(s)
	w.bar.Describe(truncate(s, maxDescription))
	_ = w.bar.Add(1)
}

// Finish flushes a trailing partial line and stops the spinner
func (w *spinnerWriter) Finish() {
	if len(w.buf) > 0 {
		w.line(string(w.buf))
		w.buf = nil
	}
	_ = w.bar.Finish()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
