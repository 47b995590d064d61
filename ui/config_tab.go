package ui

import (
	"errors"
	"fmt"
	"hordegui/bridge"
	"hordegui/logger"
	"hordegui/models"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/ncruces/zenity"
)

var themeOptions = []string{"system", "light", "dark"}

// configTab edits the worker's bridgeData.yaml and the GUI preferences
type configTab struct {
	mw      *MainWindow
	doc     *bridge.Document
	content fyne.CanvasObject

	folderEntry *widget.Entry

	apiKey       *widget.Entry
	dreamerName  *widget.Entry
	modelsToLoad *widget.Entry
	modelsToSkip *widget.Entry
	nsfw         *widget.Check

	maxThreads *widget.Entry
	maxPower   *widget.Entry
	queueSize  *widget.Entry
	maxBatch   *widget.Entry

	safetyOnGPU    *widget.Check
	highMemoryMode *widget.Check
	allowLora      *widget.Check
	allowCN        *widget.Check
	allowSDXLCN    *widget.Check
	allowPostProc  *widget.Check

	autoRestart *widget.Check
	themeSelect *widget.Select
}

func newConfigTab(mw *MainWindow) *configTab {
	t := &configTab{mw: mw}

	t.folderEntry = widget.NewEntry()
	t.folderEntry.SetPlaceHolder("Path to the horde-worker-reGen folder")
	t.folderEntry.SetText(mw.settings.WorkerFolder)
	t.folderEntry.OnSubmitted = t.useFolder
	browseBtn := widget.NewButtonWithIcon("Browse...", theme.FolderOpenIcon(), t.browse)

	t.apiKey = widget.NewPasswordEntry()
	t.dreamerName = widget.NewEntry()
	t.modelsToLoad = widget.NewMultiLineEntry()
	t.modelsToLoad.SetPlaceHolder("One model per line, e.g. top 5 or AlbedoBase XL (SDXL)")
	t.modelsToLoad.SetMinRowsVisible(4)
	t.modelsToSkip = widget.NewMultiLineEntry()
	t.modelsToSkip.SetPlaceHolder("One model per line")
	t.modelsToSkip.SetMinRowsVisible(3)
	t.nsfw = widget.NewCheck("Allow NSFW content", nil)

	t.maxThreads = numberEntry()
	t.maxPower = numberEntry()
	t.queueSize = numberEntry()
	t.maxBatch = numberEntry()

	t.safetyOnGPU = widget.NewCheck("Run safety checker on GPU", nil)
	t.highMemoryMode = widget.NewCheck("High memory mode", nil)
	t.allowLora = widget.NewCheck("Allow LoRA", nil)
	t.allowCN = widget.NewCheck("Allow ControlNet", nil)
	t.allowSDXLCN = widget.NewCheck("Allow SDXL ControlNet", nil)
	t.allowPostProc = widget.NewCheck("Allow post-processing", nil)

	t.autoRestart = widget.NewCheck("Restart the worker when it crashes", nil)
	t.autoRestart.SetChecked(mw.settings.BoolPref(models.PrefAutoRestart))
	t.autoRestart.OnChanged = func(on bool) {
		mw.settings.SetBoolPref(models.PrefAutoRestart, on)
		mw.setAutoRestart(on)
		mw.saveSettings()
	}

	t.themeSelect = widget.NewSelect(themeOptions, func(choice string) {
		if choice == mw.settings.Pref(models.PrefTheme) {
			return
		}
		mw.settings.SetPref(models.PrefTheme, choice)
		mw.saveSettings()
		dialog.ShowInformation("Theme", "The theme is applied the next time the application starts.", mw.window)
	})
	t.themeSelect.SetSelected(mw.settings.Pref(models.PrefTheme))

	folderRow := container.NewBorder(nil, nil, nil, browseBtn, t.folderEntry)

	worker := widget.NewCard("Worker", "", widget.NewForm(
		widget.NewFormItem("Worker folder", folderRow),
		widget.NewFormItem("API key", t.apiKey),
		widget.NewFormItem("Worker name", t.dreamerName),
		widget.NewFormItem("Models to load", t.modelsToLoad),
		widget.NewFormItem("", t.nsfw),
	))

	performance := widget.NewCard("Performance", "", widget.NewForm(
		widget.NewFormItem("Max threads (1-8)", t.maxThreads),
		widget.NewFormItem("Max power (8-128)", t.maxPower),
		widget.NewFormItem("Queue size (0-4)", t.queueSize),
		widget.NewFormItem("Max batch (1-16)", t.maxBatch),
		widget.NewFormItem("", container.NewGridWithColumns(2, t.safetyOnGPU, t.highMemoryMode)),
	))

	features := widget.NewCard("Features", "", container.NewVBox(
		container.NewGridWithColumns(2, t.allowLora, t.allowCN, t.allowSDXLCN, t.allowPostProc),
		widget.NewLabel("Models to skip"),
		t.modelsToSkip,
	))

	gui := widget.NewCard("GUI", "", widget.NewForm(
		widget.NewFormItem("", t.autoRestart),
		widget.NewFormItem("Theme", t.themeSelect),
	))

	t.content = container.NewVScroll(container.NewVBox(worker, performance, features, gui))
	t.show(bridge.DefaultConfig())
	return t
}

func numberEntry() *widget.Entry {
	e := widget.NewEntry()
	e.Validator = func(s string) error {
		_, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.New("not a number")
		}
		return nil
	}
	return e
}

// load reads the configuration file named by the settings, creating it
// from the template when missing
func (t *configTab) load() {
	path := t.mw.settings.ConfigPath()
	if path == "" {
		t.doc = nil
		return
	}

	doc, created, err := bridge.LoadOrCreate(path)
	if err != nil {
		logger.Log.WithError(err).Warn("Could not load worker configuration")
		if errors.Is(err, bridge.ErrTemplateNotFound) {
			dialog.ShowError(fmt.Errorf("%s does not exist and no template was found to create it", path), t.mw.window)
		} else {
			dialog.ShowError(err, t.mw.window)
		}
		t.doc = nil
		return
	}
	if created {
		dialog.ShowInformation("Configuration Created",
			"A new bridgeData.yaml was created from the template. Please enter your API key and worker name.",
			t.mw.window)
	}

	t.mw.settings.ConfigFile = path
	t.doc = doc
	t.show(doc.Config)
}

// show copies cfg into the form
func (t *configTab) show(cfg bridge.Config) {
	t.apiKey.SetText(cfg.APIKey)
	t.dreamerName.SetText(cfg.DreamerName)
	t.modelsToLoad.SetText(bridge.FormatList(cfg.ModelsToLoad))
	t.modelsToSkip.SetText(bridge.FormatList(cfg.ModelsToSkip))
	t.nsfw.SetChecked(cfg.NSFW)

	t.maxThreads.SetText(strconv.Itoa(cfg.MaxThreads))
	t.maxPower.SetText(strconv.Itoa(cfg.MaxPower))
	t.queueSize.SetText(strconv.Itoa(cfg.QueueSize))
	t.maxBatch.SetText(strconv.Itoa(cfg.MaxBatch))

	t.safetyOnGPU.SetChecked(cfg.SafetyOnGPU)
	t.highMemoryMode.SetChecked(cfg.HighMemoryMode)
	t.allowLora.SetChecked(cfg.AllowLora)
	t.allowCN.SetChecked(cfg.AllowControlnet)
	t.allowSDXLCN.SetChecked(cfg.AllowSDXLControlnet)
	t.allowPostProc.SetChecked(cfg.AllowPostProcessing)
}

// collect reads the form into cfg and validates the result
func (t *configTab) collect(cfg *bridge.Config) error {
	var errs []error
	number := func(name string, e *widget.Entry, dst *int) {
		v, err := strconv.Atoi(strings.TrimSpace(e.Text))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a whole number", name))
			return
		}
		*dst = v
	}
	number("max_threads", t.maxThreads, &cfg.MaxThreads)
	number("max_power", t.maxPower, &cfg.MaxPower)
	number("queue_size", t.queueSize, &cfg.QueueSize)
	number("max_batch", t.maxBatch, &cfg.MaxBatch)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	cfg.APIKey = strings.TrimSpace(t.apiKey.Text)
	cfg.DreamerName = strings.TrimSpace(t.dreamerName.Text)
	cfg.ModelsToLoad = bridge.ParseList(t.modelsToLoad.Text)
	cfg.ModelsToSkip = bridge.ParseList(t.modelsToSkip.Text)
	cfg.NSFW = t.nsfw.Checked

	cfg.SafetyOnGPU = t.safetyOnGPU.Checked
	cfg.HighMemoryMode = t.highMemoryMode.Checked
	cfg.AllowLora = t.allowLora.Checked
	cfg.AllowControlnet = t.allowCN.Checked
	cfg.AllowSDXLControlnet = t.allowSDXLCN.Checked
	cfg.AllowPostProcessing = t.allowPostProc.Checked

	return cfg.Validate()
}

// save writes the form back to bridgeData.yaml. Nothing is written when
// validation fails.
func (t *configTab) save() error {
	if t.mw.settings.WorkerFolder == "" {
		return errors.New("please select the worker folder first")
	}
	if t.doc == nil {
		t.load()
		if t.doc == nil {
			return fmt.Errorf("no worker configuration loaded from %s", t.mw.settings.ConfigPath())
		}
	}

	cfg := t.doc.Config
	if err := t.collect(&cfg); err != nil {
		return err
	}
	t.doc.Config = cfg

	if err := t.doc.Save(); err != nil {
		return fmt.Errorf("saving %s: %w", t.doc.Path, err)
	}
	t.mw.saveSettings()
	t.mw.models.refresh()
	logger.Log.WithField("path", t.doc.Path).Info("Worker configuration saved")
	return nil
}

// browse asks for the worker folder with the native dialog, falling back to
// the Fyne one
func (t *configTab) browse() {
	start := t.mw.settings.Pref(models.PrefLastBrowseDir)
	if start == "" {
		start = t.mw.settings.WorkerFolder
	}
	if start == "" {
		if home, err := os.UserHomeDir(); err == nil {
			start = home
		}
	}

	go func() {
		dir, err := zenity.SelectFile(
			zenity.Title("Select Worker Folder"),
			zenity.Directory(),
			zenity.Filename(start),
		)
		switch {
		case err == nil:
			t.useFolder(dir)
		case errors.Is(err, zenity.ErrCanceled):
		default:
			logger.Log.WithError(err).Debug("Native folder dialog failed, using fallback")
			t.browseFallback(start)
		}
	}()
}

func (t *configTab) browseFallback(start string) {
	d := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			dialog.ShowError(err, t.mw.window)
			return
		}
		if uri == nil {
			return
		}
		t.useFolder(uri.Path())
	}, t.mw.window)

	if start != "" {
		if lister, err := fynestorage.ListerForURI(fynestorage.NewFileURI(start)); err == nil {
			d.SetLocation(lister)
		}
	}
	d.Resize(fyne.NewSize(800, 600))
	d.Show()
}

// useFolder switches to the worker installed in dir
func (t *configTab) useFolder(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	dir = filepath.Clean(dir)

	apply := func() {
		t.folderEntry.SetText(dir)
		t.mw.settings.SetWorkerFolder(dir)
		t.mw.settings.SetPref(models.PrefLastBrowseDir, filepath.Dir(dir))
		t.mw.saveSettings()
		t.load()
		t.mw.models.refresh()
		logger.Log.Infof("Worker folder set to %s", dir)
	}

	if t.mw.workers.IsInstallation(dir) {
		apply()
		return
	}
	dialog.ShowConfirm("Not a Worker Folder",
		"This folder does not look like a horde-worker-reGen installation. Use it anyway?",
		func(ok bool) {
			if ok {
				apply()
			}
		}, t.mw.window)
}
