package main

import (
	"context"
	"errors"
	"fmt"
	"hordegui/bridge"
	"hordegui/catalog"
	"hordegui/models"
	"hordegui/monitor"
	"hordegui/stats"
	"hordegui/storage"
	"hordegui/worker"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var errNoFolder = errors.New("no worker folder configured, run 'find' or choose one in the GUI")

var errMissingDeps = errors.New("worker python packages are missing")

// loadSettings opens the store and returns it with the saved settings
func loadSettings(c *cli.Context) (*storage.Manager, *models.Settings, error) {
	store := openStore(c)
	settings, err := store.LoadSettings()
	if err != nil {
		return nil, nil, err
	}
	return store, settings, nil
}

func showStatus(c *cli.Context) error {
	store, settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	mgr := worker.NewManager()
	fmt.Println("AI Horde Worker reGen GUI - Status")
	fmt.Println("==================================")
	fmt.Printf("Settings directory: %s\n", store.Dir())
	fmt.Printf("Worker folder:      %s\n", orNone(settings.WorkerFolder))
	fmt.Printf("Config file:        %s\n", orNone(settings.ConfigFile))

	if settings.WorkerFolder != "" {
		fmt.Printf("Valid installation: %t\n", mgr.IsInstallation(settings.WorkerFolder))
		if script, err := mgr.ResolveScript(settings.WorkerFolder); err != nil {
			fmt.Printf("Start script:       %v\n", err)
		} else {
			fmt.Printf("Start script:       %s\n", script)
		}
	}

	fmt.Println()
	fmt.Println("Preferences:")
	keys := make([]string, 0, len(settings.UIPreferences))
	for k := range settings.UIPreferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-16s %s\n", k, settings.UIPreferences[k])
	}
	return nil
}

func runHeadless(c *cli.Context) error {
	store, settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if settings.WorkerFolder == "" {
		return errNoFolder
	}

	mgr := worker.NewManager()
	script, err := mgr.ResolveScript(settings.WorkerFolder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !c.Bool("skip-deps") {
		if err := checkDependencies(ctx, mgr, settings.WorkerFolder, c.Bool("install-deps"), os.Stdout); err != nil {
			return err
		}
	}

	jobs, err := store.LoadJobs()
	if err != nil {
		log.WithError(err).Warn("Could not load job history")
	}
	tracker := stats.NewTracker(jobs)

	sup := worker.NewSupervisor(func() (*exec.Cmd, error) {
		return mgr.Command(script)
	})
	sup.SetAutoRestart(c.Bool("auto-restart") || settings.BoolPref(models.PrefAutoRestart))
	sup.OnLine = func(line string) {
		ev := monitor.Classify(line)
		log.WithField("kind", ev.Kind.String()).Log(levelFor(ev.Kind), line)
		if rec := tracker.Observe(ev, time.Now()); rec != nil {
			if err := store.SaveJobs(tracker.RecentJobs()); err != nil {
				log.WithError(err).Warn("Could not save job history")
			}
		}
	}
	sup.OnState = func(st worker.Status) {
		entry := log.WithField("state", st.State.String())
		if st.PID != 0 {
			entry = entry.WithField("pid", st.PID)
		}
		if st.LastError != nil {
			entry.WithError(st.LastError).Warn("Worker state changed")
			return
		}
		entry.Info("Worker state changed")
	}

	tracker.Reset(time.Now())
	if err := sup.Start(context.Background()); err != nil {
		return err
	}

	finished := make(chan struct{})
	go func() {
		sup.Wait()
		close(finished)
	}()

	select {
	case <-ctx.Done():
		log.Info("Interrupted, stopping worker")
		if err := sup.Stop(); err != nil {
			log.WithError(err).Warn("Worker did not stop cleanly")
		}
		<-finished
	case <-finished:
	}

	snap := tracker.Snapshot(time.Now(), 0)
	tracker.Stopped()
	if err := store.SaveJobs(tracker.RecentJobs()); err != nil {
		log.WithError(err).Warn("Could not save job history")
	}
	printSnapshot(os.Stdout, snap)

	if st := sup.Status(); st.State == worker.Crashed {
		if st.LastError == nil {
			return errors.New("worker crashed")
		}
		return fmt.Errorf("worker crashed: %w", st.LastError)
	}
	return nil
}

func checkDeps(c *cli.Context) error {
	_, settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if settings.WorkerFolder == "" {
		return errNoFolder
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return checkDependencies(ctx, worker.NewManager(), settings.WorkerFolder, c.Bool("install"), os.Stdout)
}

// checkDependencies reports the worker modules its interpreter cannot
// import and installs them when install is set. A check that cannot run
// is logged and does not stop the worker.
func checkDependencies(ctx context.Context, mgr *worker.Manager, folder string, install bool, w io.Writer) error {
	missing, err := mgr.MissingModules(ctx, folder, worker.RequiredModules)
	if err != nil {
		log.WithError(err).Warn("Could not check worker dependencies")
		return nil
	}
	if len(missing) == 0 {
		fmt.Fprintln(w, "All worker dependencies are installed.")
		return nil
	}

	packages := worker.Packages(missing)
	fmt.Fprintf(w, "Missing worker dependencies: %s\n", strings.Join(packages, ", "))
	if !install {
		return fmt.Errorf("%w; run 'deps --install' or 'pip install %s'", errMissingDeps, strings.Join(packages, " "))
	}

	out := newSpinnerWriter("Installing dependencies", os.Stderr)
	err = mgr.InstallModules(ctx, folder, missing, out)
	out.Finish()
	if err != nil {
		return fmt.Errorf("%w: %w", errMissingDeps, err)
	}
	fmt.Fprintln(w, "All dependencies installed successfully.")
	return nil
}

// levelFor maps an output classification to a log level
func levelFor(k monitor.Kind) logrus.Level {
	switch k {
	case monitor.Error:
		return logrus.ErrorLevel
	case monitor.Warning, monitor.Maintenance:
		return logrus.WarnLevel
	case monitor.Info:
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

func printSnapshot(w io.Writer, snap stats.Snapshot) {
	fmt.Fprintln(w, "Session summary")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Uptime:          %s\n", stats.FormatUptime(snap.Uptime))
	fmt.Fprintf(w, "Jobs completed:  %d\n", snap.JobsCompleted)
	fmt.Fprintf(w, "Kudos earned:    %.1f\n", snap.KudosEarned)
	fmt.Fprintf(w, "Kudos per hour:  %.1f\n", snap.KudosPerHour)
	fmt.Fprintf(w, "Models loaded:   %d\n", snap.ModelsLoaded)
}

func showConfig(c *cli.Context) error {
	_, settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	path := settings.ConfigPath()
	if path == "" {
		return errNoFolder
	}

	doc, created, err := bridge.LoadOrCreate(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created %s from the template. Set your API key and worker name.\n\n", path)
	}
	printConfig(os.Stdout, doc)
	return nil
}

func printConfig(w io.Writer, doc *bridge.Document) {
	cfg := doc.Config
	fmt.Fprintf(w, "Configuration: %s\n", doc.Path)
	fmt.Fprintln(w, "==============")
	fmt.Fprintf(w, "API key:          %s\n", cfg.MaskedAPIKey())
	fmt.Fprintf(w, "Worker name:      %s\n", orNone(cfg.DreamerName))
	fmt.Fprintf(w, "NSFW:             %t\n", cfg.NSFW)
	fmt.Fprintf(w, "Max threads:      %d\n", cfg.MaxThreads)
	fmt.Fprintf(w, "Max power:        %d\n", cfg.MaxPower)
	fmt.Fprintf(w, "Queue size:       %d\n", cfg.QueueSize)
	fmt.Fprintf(w, "Max batch:        %d\n", cfg.MaxBatch)
	fmt.Fprintf(w, "Safety on GPU:    %t\n", cfg.SafetyOnGPU)
	fmt.Fprintf(w, "High memory mode: %t\n", cfg.HighMemoryMode)
	fmt.Fprintf(w, "LoRA:             %t\n", cfg.AllowLora)
	fmt.Fprintf(w, "ControlNet:       %t\n", cfg.AllowControlnet)
	fmt.Fprintf(w, "SDXL ControlNet:  %t\n", cfg.AllowSDXLControlnet)
	fmt.Fprintf(w, "Post-processing:  %t\n", cfg.AllowPostProcessing)
	printList(w, "Models to load", cfg.ModelsToLoad)
	printList(w, "Models to skip", cfg.ModelsToSkip)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "\nWarning: %v\n", err)
	}
}

func printList(w io.Writer, title string, items []string) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func listModels(c *cli.Context) error {
	_, settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if settings.WorkerFolder == "" {
		return errNoFolder
	}

	list, err := catalog.NewManager().Load(settings.WorkerFolder)
	if err != nil {
		log.WithError(err).Warn("Some model sources could not be read")
	}
	if len(list) == 0 {
		fmt.Println("No models found. The worker writes models.json on its first run.")
		return nil
	}

	for _, g := range catalog.GroupByType(list) {
		fmt.Printf("%s (%d)\n", g.Type, len(g.Models))
		for _, m := range g.Models {
			fmt.Printf("  %-40s %-14s %s\n", m.Name, m.Status, catalog.SizeLabel(m))
		}
	}
	return nil
}

func updateWorker(c *cli.Context) error {
	return runUpdate(c, "Updating worker", worker.NewManager().UpdateWorker)
}

func updateRuntime(c *cli.Context) error {
	return runUpdate(c, "Updating runtime", worker.NewManager().UpdateRuntime)
}

func runUpdate(c *cli.Context, desc string, action func(context.Context, string, io.Writer) error) error {
	_, settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if settings.WorkerFolder == "" {
		return errNoFolder
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newSpinnerWriter(desc, os.Stderr)
	err = action(ctx, settings.WorkerFolder, out)
	out.Finish()
	if err != nil {
		if errors.Is(err, worker.ErrNotGitCheckout) {
			return fmt.Errorf("%w; download %s instead", err, worker.ArchiveURL)
		}
		return err
	}
	log.Info("Done")
	return nil
}

func showRelease(c *cli.Context) error {
	checker := monitor.NewReleaseChecker()

	current := c.String("current")
	if current == "" {
		info, err := checker.Latest()
		if err != nil {
			return err
		}
		fmt.Printf("Latest release: %s\n%s\n", info.Tag, info.URL)
		return nil
	}

	newer, info, err := checker.HasUpdate(current)
	if err != nil {
		return err
	}
	fmt.Printf("Latest release: %s\n%s\n", info.Tag, info.URL)
	if newer {
		fmt.Printf("A newer release than %s is available.\n", current)
	} else {
		fmt.Printf("%s is up to date.\n", current)
	}
	return nil
}

func findWorker(c *cli.Context) error {
	store, settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	mgr := worker.NewManager()
	candidates := append([]string(c.Args()), mgr.DefaultCandidates()...)
	folder, ok := mgr.FindInstallation(candidates)
	if !ok {
		fmt.Println("No worker installation found. Searched:")
		for _, dir := range candidates {
			fmt.Printf("  %s\n", dir)
		}
		return nil
	}

	settings.SetWorkerFolder(folder)
	if err := store.SaveSettings(settings); err != nil {
		return err
	}
	fmt.Printf("Found worker installation: %s\n", folder)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
