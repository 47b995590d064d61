package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hordegui/logger"
	"hordegui/models"
	"hordegui/monitor"
	"hordegui/stats"
	"hordegui/worker"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// dashboardTab shows the session statistics and the maintenance actions
type dashboardTab struct {
	mw      *MainWindow
	content fyne.CanvasObject

	uptime     *widget.Label
	currentJob *widget.Label
	kudosRate  *widget.Label
	modelsLoad *widget.Label
	cpu        *widget.Label
	memory     *widget.Label

	jobsMu  sync.RWMutex
	jobs    []*models.JobRecord
	jobList *widget.List

	actions []*widget.Button
}

func newDashboardTab(mw *MainWindow) *dashboardTab {
	t := &dashboardTab{
		mw:         mw,
		uptime:     widget.NewLabel("00:00:00"),
		currentJob: widget.NewLabel("None"),
		kudosRate:  widget.NewLabel("0.0"),
		modelsLoad: widget.NewLabel("0"),
		cpu:        widget.NewLabel("-"),
		memory:     widget.NewLabel("-"),
	}
	t.currentJob.Wrapping = fyne.TextWrapWord

	statsForm := widget.NewForm(
		widget.NewFormItem("Uptime", t.uptime),
		widget.NewFormItem("Current job", t.currentJob),
		widget.NewFormItem("Kudos per hour", t.kudosRate),
		widget.NewFormItem("Models loaded", t.modelsLoad),
		widget.NewFormItem("CPU", t.cpu),
		widget.NewFormItem("Memory", t.memory),
	)

	t.jobList = widget.NewList(
		func() int {
			t.jobsMu.RLock()
			defer t.jobsMu.RUnlock()
			return len(t.jobs)
		},
		func() fyne.CanvasObject {
			return container.NewBorder(nil, nil, widget.NewLabel("00:00:00"), widget.NewLabel("0.0 kudos"), widget.NewLabel("details"))
		},
		func(id widget.ListItemID, o fyne.CanvasObject) {
			t.jobsMu.RLock()
			if id >= len(t.jobs) {
				t.jobsMu.RUnlock()
				return
			}
			job := t.jobs[id]
			t.jobsMu.RUnlock()

			row := o.(*fyne.Container)
			row.Objects[0].(*widget.Label).SetText(job.Details)
			row.Objects[1].(*widget.Label).SetText(job.Timestamp.Local().Format("15:04:05"))
			row.Objects[2].(*widget.Label).SetText(formatKudos(job.Kudos) + " kudos")
		},
	)

	updateWorker := widget.NewButtonWithIcon("Update Worker", theme.DownloadIcon(), func() {
		t.runAction("Update Worker", mw.workers.UpdateWorker)
	})
	updateRuntime := widget.NewButtonWithIcon("Update Runtime", theme.ViewRefreshIcon(), func() {
		t.runAction("Update Runtime", mw.workers.UpdateRuntime)
	})
	openLogs := widget.NewButtonWithIcon("Open Logs Folder", theme.FolderOpenIcon(), mw.openLogsFolder)
	checkRelease := widget.NewButtonWithIcon("Check for Release", theme.SearchIcon(), t.checkRelease)
	t.actions = []*widget.Button{updateWorker, updateRuntime}

	left := container.NewVBox(
		widget.NewCard("Statistics", "", statsForm),
		widget.NewCard("Actions", "", container.NewGridWithColumns(2, updateWorker, updateRuntime, openLogs, checkRelease)),
	)
	right := widget.NewCard("Recent Jobs", "", t.jobList)

	t.content = container.NewHSplit(container.NewVScroll(left), right)
	return t
}

// update shows snap
func (t *dashboardTab) update(snap stats.Snapshot) {
	t.uptime.SetText(stats.FormatUptime(snap.Uptime))
	if snap.CurrentJob == "" {
		t.currentJob.SetText("None")
	} else {
		t.currentJob.SetText(snap.CurrentJob)
	}
	t.kudosRate.SetText(formatKudos(snap.KudosPerHour))
	t.modelsLoad.SetText(itoa(snap.ModelsLoaded))

	if snap.Process.Available {
		t.cpu.SetText(fmt.Sprintf("%.1f%%", snap.Process.CPUPercent))
		t.memory.SetText(snap.Process.MemoryLabel())
	} else {
		t.cpu.SetText("-")
		t.memory.SetText("-")
	}

	t.jobsMu.Lock()
	t.jobs = snap.RecentJobs
	t.jobsMu.Unlock()
	t.jobList.Refresh()
}

// runAction runs an update action in the background and streams its
// output into the log view
func (t *dashboardTab) runAction(name string, action func(context.Context, string, io.Writer) error) {
	mw := t.mw
	if mw.supervising() {
		dialog.ShowError(errors.New("stop the worker before updating it"), mw.window)
		return
	}
	if mw.settings.WorkerFolder == "" {
		dialog.ShowError(errors.New("please select the worker folder first"), mw.window)
		return
	}

	for _, b := range t.actions {
		b.Disable()
	}
	progress := dialog.NewCustomWithoutButtons(name, widget.NewProgressBarInfinite(), mw.window)
	progress.Show()

	go func() {
		defer func() {
			progress.Hide()
			for _, b := range t.actions {
				b.Enable()
			}
		}()

		out := &logWriter{mw: mw}
		err := action(context.Background(), mw.settings.WorkerFolder, out)
		out.Flush()

		if errors.Is(err, worker.ErrNotGitCheckout) {
			archive, _ := url.Parse(worker.ArchiveURL)
			dialog.ShowCustom(name, "Close", container.NewVBox(
				widget.NewLabel("This installation is not a git checkout and cannot be updated in place.\nDownload the latest version instead:"),
				widget.NewHyperlink(worker.ArchiveURL, archive),
			), mw.window)
			return
		}
		if err != nil {
			logger.Log.WithError(err).Errorf("%s failed", name)
			dialog.ShowError(fmt.Errorf("%s failed: %w", name, err), mw.window)
			return
		}
		dialog.ShowInformation(name, name+" finished. See the Logs tab (Direct Output) for details.", mw.window)
	}()
}

func (t *dashboardTab) checkRelease() {
	mw := t.mw
	go func() {
		info, err := mw.release.Latest()
		if err != nil {
			dialog.ShowError(fmt.Errorf("could not check for releases: %w", err), mw.window)
			return
		}

		link, _ := url.Parse(info.URL)
		content := container.NewVBox(
			widget.NewLabel(fmt.Sprintf("The latest worker release is %s (checked %s).",
				info.Tag, info.CheckedAt.Local().Format(time.Kitchen))),
			widget.NewHyperlink("Open release page", link),
		)
		dialog.ShowCustom("Latest Release", "Close", content, mw.window)
	}()
}

// logWriter feeds command output into the log view line by line
type logWriter struct {
	mw  *MainWindow
	buf []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing partial line
func (w *logWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *logWriter) emit(line string) {
	if line == "" {
		return
	}
	if w.mw.logs.source() == monitor.SourceDirect {
		w.mw.logBuffer.Append(line, time.Now())
		w.mw.logDirty.Store(true)
	}
	logger.Log.WithField("source", "update").Debug(line)
}

func formatKudos(k float64) string {
	return strconv.FormatFloat(k, 'f', 1, 64)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
