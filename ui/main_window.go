package ui

import (
	"hordegui/catalog"
	"hordegui/logger"
	"hordegui/models"
	"hordegui/monitor"
	"hordegui/stats"
	"hordegui/storage"
	"hordegui/worker"
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const (
	windowTitle     = "AI Horde Worker reGen - GUI"
	statsInterval   = 5 * time.Second
	logRefreshDelay = 250 * time.Millisecond
)

// MainWindow represents the main application window
type MainWindow struct {
	app     fyne.App
	window  fyne.Window
	storage *storage.Manager
	workers *worker.Manager
	catalog *catalog.Manager
	release *monitor.ReleaseChecker
	tracker *stats.Tracker

	settings *models.Settings

	supMu      sync.Mutex
	supervisor *worker.Supervisor

	logBuffer *monitor.LogBuffer
	logDirty  atomic.Bool
	tailMu    sync.Mutex
	tailer    *monitor.Tailer
	tailGen   uint64 // bumped by stopTail, guarded by tailMu

	quit     chan struct{}
	quitOnce sync.Once

	// top bar
	statusBadge *StatusBadge
	kudosLabel  *widget.Label
	jobsLabel   *widget.Label

	// bottom bar
	toggleBtn *widget.Button

	dash   *dashboardTab
	config *configTab
	logs   *logsTab
	models *modelsTab
}

// NewMainWindow creates a new main window backed by store
func NewMainWindow(store *storage.Manager) *MainWindow {
	myApp := app.NewWithID("net.aihorde.worker-gui")
	myApp.SetIcon(theme.ComputerIcon())

	window := myApp.NewWindow(windowTitle)
	window.Resize(fyne.NewSize(1200, 800))

	mw := &MainWindow{
		app:       myApp,
		window:    window,
		storage:   store,
		workers:   worker.NewManager(),
		catalog:   catalog.NewManager(),
		release:   monitor.NewReleaseChecker(),
		logBuffer: monitor.NewLogBuffer(monitor.DefaultBufferLines),
		quit:      make(chan struct{}),
	}

	mw.loadData()
	mw.applyTheme()
	mw.setupUI()
	mw.startTickers()

	window.SetCloseIntercept(mw.onClose)
	return mw
}

// ShowAndRun shows the window and runs the application
func (mw *MainWindow) ShowAndRun() {
	mw.window.ShowAndRun()
}

// loadData loads settings and job history from storage
func (mw *MainWindow) loadData() {
	var err error

	mw.settings, err = mw.storage.LoadSettings()
	if err != nil {
		logger.Log.WithError(err).Error("Could not load settings, using defaults")
		mw.settings = models.DefaultSettings()
	}

	jobs, err := mw.storage.LoadJobs()
	if err != nil {
		logger.Log.WithError(err).Warn("Could not load job history")
	}
	mw.tracker = stats.NewTracker(jobs)

	if mw.settings.WorkerFolder == "" {
		if folder, ok := mw.workers.FindInstallation(mw.workers.DefaultCandidates()); ok {
			logger.Log.Infof("Found worker installation at %s", folder)
			mw.settings.SetWorkerFolder(folder)
			mw.saveSettings()
		}
	}
}

func (mw *MainWindow) applyTheme() {
	switch mw.settings.Pref(models.PrefTheme) {
	case "dark":
		mw.app.Settings().SetTheme(theme.DarkTheme())
	case "light":
		mw.app.Settings().SetTheme(theme.LightTheme())
	}
}

// setupUI sets up the user interface
func (mw *MainWindow) setupUI() {
	mw.statusBadge = NewStatusBadge()
	mw.kudosLabel = widget.NewLabel("Kudos: 0")
	mw.jobsLabel = widget.NewLabel("Jobs: 0")
	topBar := container.NewHBox(
		widget.NewLabelWithStyle("Status:", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		mw.statusBadge,
		widget.NewSeparator(),
		mw.kudosLabel,
		mw.jobsLabel,
	)

	mw.dash = newDashboardTab(mw)
	mw.config = newConfigTab(mw)
	mw.logs = newLogsTab(mw)
	mw.models = newModelsTab(mw)

	tabs := container.NewAppTabs(
		container.NewTabItemWithIcon("Dashboard", theme.HomeIcon(), mw.dash.content),
		container.NewTabItemWithIcon("Configuration", theme.SettingsIcon(), mw.config.content),
		container.NewTabItemWithIcon("Logs", theme.ListIcon(), mw.logs.content),
		container.NewTabItemWithIcon("Models", theme.StorageIcon(), mw.models.content),
		container.NewTabItemWithIcon("About", theme.InfoIcon(), aboutTab()),
	)

	mw.toggleBtn = widget.NewButtonWithIcon("Start Worker", theme.MediaPlayIcon(), mw.toggleWorker)
	mw.toggleBtn.Importance = widget.HighImportance
	saveBtn := widget.NewButtonWithIcon("Save Configuration", theme.DocumentSaveIcon(), func() {
		if err := mw.config.save(); err != nil {
			dialog.ShowError(err, mw.window)
			return
		}
		dialog.ShowInformation("Saved", "Configuration saved.", mw.window)
	})
	bottomBar := container.NewHBox(mw.toggleBtn, saveBtn)

	mw.window.SetContent(container.NewBorder(
		container.NewVBox(topBar, widget.NewSeparator()),
		container.NewVBox(widget.NewSeparator(), bottomBar),
		nil, nil,
		tabs,
	))

	mw.config.load()
	mw.models.refresh()
	mw.refreshStats()
}

// startTickers refreshes the statistics and flushes pending log lines
// until the window closes
func (mw *MainWindow) startTickers() {
	go func() {
		statsTicker := time.NewTicker(statsInterval)
		logTicker := time.NewTicker(logRefreshDelay)
		defer statsTicker.Stop()
		defer logTicker.Stop()

		for {
			select {
			case <-mw.quit:
				return
			case <-statsTicker.C:
				if mw.workerStatus().State.Active() {
					mw.refreshStats()
				}
			case <-logTicker.C:
				if mw.logDirty.Swap(false) {
					mw.logs.refresh()
				}
			}
		}
	}()
}

// refreshStats updates the top bar and the dashboard
func (mw *MainWindow) refreshStats() {
	snap := mw.tracker.Snapshot(time.Now(), mw.workerStatus().PID)
	mw.kudosLabel.SetText("Kudos: " + formatKudos(snap.KudosEarned))
	mw.jobsLabel.SetText("Jobs: " + itoa(snap.JobsCompleted))
	mw.dash.update(snap)
}

// saveSettings saves the settings to storage
func (mw *MainWindow) saveSettings() {
	if err := mw.storage.SaveSettings(mw.settings); err != nil {
		logger.Log.WithError(err).Error("Could not save settings")
		if mw.window != nil {
			dialog.ShowError(err, mw.window)
		}
	}
}

// saveJobs saves the recent job list to storage
func (mw *MainWindow) saveJobs() {
	if err := mw.storage.SaveJobs(mw.tracker.RecentJobs()); err != nil {
		logger.Log.WithError(err).Error("Could not save job history")
	}
}

// onClose stops the worker, persists state and quits
func (mw *MainWindow) onClose() {
	if !mw.supervising() {
		mw.shutdown()
		return
	}

	dialog.ShowConfirm("Worker Running", "The worker is still running. Stop it and exit?", func(ok bool) {
		if !ok {
			return
		}
		mw.statusBadge.SetDetail("Shutting down")
		go mw.shutdown()
	}, mw.window)
}

func (mw *MainWindow) shutdown() {
	mw.quitOnce.Do(func() {
		if err := mw.stopWorker(); err != nil {
			logger.Log.WithError(err).Warn("Worker did not stop cleanly")
		}
		mw.stopTail()
		close(mw.quit)

		mw.saveSettings()
		mw.saveJobs()
		logger.Log.Info("Exiting")
		mw.window.Close()
		mw.app.Quit()
	})
}
