package main

import (
	"hordegui/logger"
	"hordegui/storage"
	"hordegui/ui"
	"os"

	"github.com/urfave/cli"
)

var app = cli.NewApp()
var log = logger.Log

func init() {
	app.Name = "horde-worker-gui"
	app.Usage = "Configure, run and monitor an AI Horde Worker reGen installation"
	app.UsageText = "horde-worker-gui [--settings-dir DIR] [--debug] [command]"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "settings-dir",
			Usage:  "directory holding gui_settings.json and jobs.json",
			EnvVar: "HORDE_GUI_SETTINGS_DIR",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			logger.SetDebug(true)
		}
		return nil
	}
	app.Action = runGUI
	app.Commands = []cli.Command{
		{
			Name:   "gui",
			Usage:  "Open the main window (default)",
			Action: runGUI,
		},
		{
			Name:   "status",
			Usage:  "Show the saved settings and the state of the worker installation",
			Action: showStatus,
		},
		{
			Name:  "run",
			Usage: "Run the worker without a window until interrupted",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "auto-restart",
					Usage: "restart the worker when it crashes, overriding the saved preference",
				},
				cli.BoolFlag{
					Name:  "install-deps",
					Usage: "install missing python packages before starting",
				},
				cli.BoolFlag{
					Name:  "skip-deps",
					Usage: "start without checking the python packages",
				},
			},
			Action: runHeadless,
		},
		{
			Name:  "deps",
			Usage: "Check the python packages the worker needs",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "install",
					Usage: "install the missing packages with pip",
				},
			},
			Action: checkDeps,
		},
		{
			Name:   "config",
			Usage:  "Show the worker configuration",
			Action: showConfig,
		},
		{
			Name:   "models",
			Usage:  "List the worker's models by type",
			Action: listModels,
		},
		{
			Name:   "update",
			Usage:  "Update the worker code with git pull",
			Action: updateWorker,
		},
		{
			Name:   "update-runtime",
			Usage:  "Run the worker's runtime update script",
			Action: updateRuntime,
		},
		{
			Name:  "release",
			Usage: "Show the latest worker release",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "current",
					Usage: "installed version to compare against, e.g. v9.0.2",
				},
			},
			Action: showRelease,
		},
		{
			Name:      "find",
			Usage:     "Look for a worker installation and remember it",
			ArgsUsage: "[folder...]",
			Action:    findWorker,
		},
	}
}

// openStore returns the storage manager selected by --settings-dir
func openStore(c *cli.Context) *storage.Manager {
	return storage.NewManager(c.GlobalString("settings-dir"))
}

func runGUI(c *cli.Context) error {
	log.Info("Starting AI Horde Worker reGen GUI...")
	ui.NewMainWindow(openStore(c)).ShowAndRun()
	return nil
}

func main() {
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
