package ui

import (
	"errors"
	"fmt"
	"hordegui/logger"
	"hordegui/models"
	"hordegui/monitor"
	"os"
	"path/filepath"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const logHelp = "Direct Output shows the live worker output. bridge*.log files contain " +
	"all output, trace*.log files only errors and warnings."

// logsTab shows the live worker output or one of its log files
type logsTab struct {
	mw      *MainWindow
	content fyne.CanvasObject

	mu      sync.RWMutex
	current string

	list       *widget.List
	autoScroll *widget.Check
	info       *widget.Label
}

func newLogsTab(mw *MainWindow) *logsTab {
	t := &logsTab{mw: mw, current: mw.settings.Pref(models.PrefLogSource)}

	t.list = widget.NewList(
		func() int {
			return mw.logBuffer.Len()
		},
		func() fyne.CanvasObject {
			l := widget.NewLabel("")
			l.TextStyle = fyne.TextStyle{Monospace: true}
			return l
		},
		func(id widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(mw.logBuffer.Line(id))
		},
	)

	sourceSelect := widget.NewSelect(monitor.Sources, t.selectSource)

	t.autoScroll = widget.NewCheck("Auto-scroll", func(on bool) {
		mw.settings.SetBoolPref(models.PrefAutoScroll, on)
		mw.saveSettings()
	})
	t.autoScroll.Checked = mw.settings.BoolPref(models.PrefAutoScroll)

	clearBtn := widget.NewButtonWithIcon("Clear", theme.ContentClearIcon(), func() {
		mw.logBuffer.Clear()
		t.refresh()
	})
	openBtn := widget.NewButtonWithIcon("Open Logs Folder", theme.FolderOpenIcon(), mw.openLogsFolder)

	t.info = widget.NewLabel("")
	help := widget.NewLabel(logHelp)
	help.Wrapping = fyne.TextWrapWord

	toolbar := container.NewHBox(
		widget.NewLabel("Source:"), sourceSelect,
		t.autoScroll, clearBtn, openBtn,
	)

	t.content = container.NewBorder(
		container.NewVBox(toolbar, help),
		t.info,
		nil, nil,
		t.list,
	)

	// Selecting fires the callback and loads the source
	if t.current == "" {
		t.current = monitor.SourceDirect
	}
	sourceSelect.SetSelected(t.current)
	return t
}

// source returns the selected log source
func (t *logsTab) source() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// refresh redraws the list and follows the end when auto-scroll is on
func (t *logsTab) refresh() {
	t.list.Refresh()
	if t.autoScroll.Checked {
		t.list.ScrollToBottom()
	}
}

// selectSource switches the view to a new source
func (t *logsTab) selectSource(source string) {
	t.mu.Lock()
	changed := t.current != source
	t.current = source
	t.mu.Unlock()

	if changed {
		t.mw.settings.SetPref(models.PrefLogSource, source)
		t.mw.saveSettings()
	}

	t.mw.stopTail()
	t.mw.logBuffer.Clear()

	if source == monitor.SourceDirect {
		t.info.SetText("Showing live worker output")
		t.mw.logDirty.Store(true)
		return
	}

	folder := t.mw.settings.WorkerFolder
	if folder == "" {
		t.info.SetText("Select the worker folder to read its log files")
		t.mw.logDirty.Store(true)
		return
	}

	path := filepath.Join(monitor.LogsDir(folder), source)
	lines, total, err := monitor.ReadTail(path, monitor.DefaultTailLines)
	switch {
	case errors.Is(err, os.ErrNotExist):
		t.info.SetText(fmt.Sprintf("%s does not exist yet", path))
	case err != nil:
		logger.Log.WithError(err).Warnf("Could not read %s", path)
		t.info.SetText(fmt.Sprintf("Could not read %s: %v", path, err))
	default:
		for _, line := range lines {
			t.mw.logBuffer.AppendRaw(line)
		}
		if total > len(lines) {
			t.info.SetText(fmt.Sprintf("Showing last %d of %d lines of %s", len(lines), total, path))
		} else {
			t.info.SetText(fmt.Sprintf("Showing %s", path))
		}
	}
	t.mw.logDirty.Store(true)

	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.mw.startTail(path)
	}
}

// startTail follows path, appending new lines to the log view
func (mw *MainWindow) startTail(path string) {
	tailer, err := monitor.NewTailer(path)
	if err != nil {
		logger.Log.WithError(err).Warnf("Could not follow %s", path)
		return
	}

	mw.tailMu.Lock()
	mw.tailer = tailer
	gen := mw.tailGen
	mw.tailMu.Unlock()

	go func() {
		for line := range tailer.Lines() {
			mw.appendTailLine(gen, line)
		}
	}()
}

// appendTailLine shows a followed line unless its tailer has been stopped
// since. Lines still buffered in a closed tailer are dropped this way.
func (mw *MainWindow) appendTailLine(gen uint64, line string) bool {
	mw.tailMu.Lock()
	defer mw.tailMu.Unlock()
	if gen != mw.tailGen {
		return false
	}
	mw.logBuffer.AppendRaw(line)
	mw.logDirty.Store(true)
	return true
}

func (mw *MainWindow) stopTail() {
	mw.tailMu.Lock()
	tailer := mw.tailer
	mw.tailer = nil
	mw.tailGen++
	mw.tailMu.Unlock()

	if tailer != nil {
		tailer.Close()
	}
}

func (mw *MainWindow) openLogsFolder() {
	if mw.settings.WorkerFolder == "" {
		dialog.ShowError(errors.New("please select the worker folder first"), mw.window)
		return
	}
	if err := monitor.OpenFolder(monitor.LogsDir(mw.settings.WorkerFolder)); err != nil {
		dialog.ShowError(err, mw.window)
	}
}
