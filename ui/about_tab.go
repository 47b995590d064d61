package ui

import (
	"net/url"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const aboutText = `## AI Horde Worker reGen GUI

A desktop companion for the **AI Horde Worker reGen**. It edits the worker's
bridgeData.yaml, starts and stops the worker, shows its output and log files
and keeps track of jobs and kudos.

The worker itself is a separate installation. This application only runs it.`

var aboutLinks = []struct{ title, link string }{
	{"AI Horde", "https://aihorde.net/"},
	{"Worker reGen on GitHub", "https://github.com/Haidra-Org/horde-worker-reGen"},
	{"Worker releases", "https://github.com/Haidra-Org/horde-worker-reGen/releases"},
	{"Register for an API key", "https://aihorde.net/register"},
}

func aboutTab() fyne.CanvasObject {
	text := widget.NewRichTextFromMarkdown(aboutText)
	text.Wrapping = fyne.TextWrapWord

	links := container.NewVBox()
	for _, l := range aboutLinks {
		u, err := url.Parse(l.link)
		if err != nil {
			continue
		}
		links.Add(widget.NewHyperlink(l.title, u))
	}

	return container.NewVScroll(container.NewVBox(text, widget.NewSeparator(), links))
}
