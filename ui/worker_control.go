package ui

import (
	"context"
	"errors"
	"fmt"
	"hordegui/logger"
	"hordegui/models"
	"hordegui/monitor"
	"hordegui/worker"
	"os/exec"
	"strings"
	"time"

	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// workerStatus returns the status of the current supervisor, or the
// stopped state when the worker was never started
func (mw *MainWindow) workerStatus() worker.Status {
	mw.supMu.Lock()
	sup := mw.supervisor
	mw.supMu.Unlock()

	if sup == nil {
		return worker.Status{State: worker.Stopped}
	}
	return sup.Status()
}

// supervising reports whether the worker runs or waits to be restarted
func (mw *MainWindow) supervising() bool {
	mw.supMu.Lock()
	sup := mw.supervisor
	mw.supMu.Unlock()
	return sup != nil && sup.Supervising()
}

func (mw *MainWindow) toggleWorker() {
	if mw.supervising() {
		mw.toggleBtn.Disable()
		go func() {
			if err := mw.stopWorker(); err != nil {
				dialog.ShowError(err, mw.window)
			}
			mw.toggleBtn.Enable()
		}()
		return
	}

	mw.toggleBtn.Disable()
	go func() {
		defer mw.toggleBtn.Enable()
		if !mw.ensureDependencies(context.Background()) {
			return
		}
		if err := mw.startWorker(); err != nil {
			logger.Log.WithError(err).Error("Could not start worker")
			dialog.ShowError(err, mw.window)
		}
	}()
}

// ensureDependencies checks the worker's python packages and offers to
// install the missing ones. It reports whether the worker may start.
func (mw *MainWindow) ensureDependencies(ctx context.Context) bool {
	folder := mw.settings.WorkerFolder
	if folder == "" {
		return true
	}

	progress := dialog.NewCustomWithoutButtons("Checking Dependencies", widget.NewProgressBarInfinite(), mw.window)
	progress.Show()
	missing, err := mw.workers.MissingModules(ctx, folder, worker.RequiredModules)
	progress.Hide()
	if err != nil {
		logger.Log.WithError(err).Warn("Could not check worker dependencies")
		return true
	}
	if len(missing) == 0 {
		return true
	}

	packages := strings.Join(worker.Packages(missing), ", ")
	answer := make(chan bool, 1)
	dialog.ShowConfirm("Missing Dependencies",
		fmt.Sprintf("The following required packages are missing:\n%s\n\nWould you like to install them now?", packages),
		func(ok bool) { answer <- ok }, mw.window)
	if !<-answer {
		mw.appendDirect("Worker not started due to missing dependencies: " + packages)
		return false
	}

	progress = dialog.NewCustomWithoutButtons("Installing Dependencies", widget.NewProgressBarInfinite(), mw.window)
	progress.Show()
	out := &logWriter{mw: mw}
	err = mw.workers.InstallModules(ctx, folder, missing, out)
	out.Flush()
	progress.Hide()

	if err != nil {
		logger.Log.WithError(err).Error("Installing worker dependencies failed")
		dialog.ShowError(fmt.Errorf("failed to install some dependencies, please install them manually: %w", err), mw.window)
		return false
	}
	logger.Log.Infof("Installed worker dependencies: %s", packages)
	return true
}

// appendDirect adds a message to the Direct Output view
func (mw *MainWindow) appendDirect(msg string) {
	if mw.logs.source() == monitor.SourceDirect {
		mw.logBuffer.Append(msg, time.Now())
		mw.logDirty.Store(true)
	}
	logger.Log.Info(msg)
}

// startWorker saves the configuration and launches the worker script
func (mw *MainWindow) startWorker() error {
	folder := mw.settings.WorkerFolder
	if folder == "" {
		return errors.New("please select the worker folder on the Configuration tab first")
	}

	script, err := mw.workers.ResolveScript(folder)
	if err != nil {
		return err
	}

	if err := mw.config.save(); err != nil {
		return err
	}

	sup := worker.NewSupervisor(func() (*exec.Cmd, error) {
		return mw.workers.Command(script)
	})
	sup.SetAutoRestart(mw.settings.BoolPref(models.PrefAutoRestart))
	sup.OnLine = mw.handleLine
	sup.OnState = mw.handleState

	mw.logBuffer.Clear()
	mw.logDirty.Store(true)
	mw.tracker.Reset(time.Now())

	mw.supMu.Lock()
	mw.supervisor = sup
	mw.supMu.Unlock()

	if err := sup.Start(context.Background()); err != nil {
		mw.tracker.Stopped()
		return err
	}

	logger.Log.WithField("script", script).Info("Worker started")
	mw.refreshStats()
	return nil
}

// stopWorker stops the running worker, if any
func (mw *MainWindow) stopWorker() error {
	mw.supMu.Lock()
	sup := mw.supervisor
	mw.supMu.Unlock()

	if sup == nil || !sup.Supervising() {
		return nil
	}
	return sup.Stop()
}

// setAutoRestart applies the preference to a running supervisor
func (mw *MainWindow) setAutoRestart(on bool) {
	mw.supMu.Lock()
	sup := mw.supervisor
	mw.supMu.Unlock()

	if sup != nil {
		sup.SetAutoRestart(on)
	}
}

// handleLine is called for every line the worker prints
func (mw *MainWindow) handleLine(line string) {
	now := time.Now()
	ev := monitor.Classify(line)

	if rec := mw.tracker.Observe(ev, now); rec != nil {
		mw.saveJobs()
		mw.refreshStats()
	}
	if text := ev.StatusText(); text != "" {
		mw.statusBadge.SetDetail(text)
	}
	if ev.Kind == monitor.Error {
		logger.Log.WithField("source", "worker").Warn(line)
	}

	if mw.logs.source() == monitor.SourceDirect {
		mw.logBuffer.Append(ev.Display(), now)
		mw.logDirty.Store(true)
	}
}

// handleState follows the supervisor's state changes
func (mw *MainWindow) handleState(st worker.Status) {
	mw.statusBadge.SetState(st.State)

	if st.State.Active() || (st.State == worker.Crashed && mw.supervising()) {
		mw.toggleBtn.SetText("Stop Worker")
		mw.toggleBtn.SetIcon(theme.MediaStopIcon())
		return
	}

	mw.toggleBtn.SetText("Start Worker")
	mw.toggleBtn.SetIcon(theme.MediaPlayIcon())
	mw.tracker.Stopped()
	mw.saveJobs()
	mw.refreshStats()

	if st.State == worker.Crashed {
		msg := "Worker process stopped unexpectedly"
		if st.LastError != nil {
			msg += ": " + st.LastError.Error()
			mw.statusBadge.SetDetail(st.LastError.Error())
		}
		mw.logBuffer.Append("ERROR: "+msg, time.Now())
		mw.logDirty.Store(true)
	}
}
