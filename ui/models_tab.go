package ui

import (
	"fmt"
	"hordegui/catalog"
	"hordegui/logger"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Tree node ids are "t/<group index>" for types and "m/<group>/<model>"
// for models.

// modelsTab lists the worker's models grouped by type
type modelsTab struct {
	mw      *MainWindow
	content fyne.CanvasObject

	mu     sync.RWMutex
	groups []catalog.Group

	tree    *widget.Tree
	summary *widget.Label
}

func newModelsTab(mw *MainWindow) *modelsTab {
	t := &modelsTab{mw: mw, summary: widget.NewLabel("")}

	t.tree = widget.NewTree(t.childUIDs, t.isBranch,
		func(branch bool) fyne.CanvasObject {
			if branch {
				return widget.NewLabelWithStyle("type", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
			}
			return container.NewGridWithColumns(4,
				widget.NewLabel("name"), widget.NewLabel("baseline"),
				widget.NewLabel("status"), widget.NewLabel("size"))
		},
		t.updateNode,
	)

	refreshBtn := widget.NewButtonWithIcon("Refresh", theme.ViewRefreshIcon(), t.refresh)
	addBtn := widget.NewButtonWithIcon("Add Custom Model", theme.ContentAddIcon(), func() {
		help := widget.NewLabel(catalog.CustomModelHelp)
		help.TextStyle = fyne.TextStyle{Monospace: true}
		dialog.ShowCustom("Add Custom Model", "Close", help, mw.window)
	})

	header := container.NewGridWithColumns(4,
		widget.NewLabelWithStyle("Name", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabelWithStyle("Baseline", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabelWithStyle("Status", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabelWithStyle("Size", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
	)

	t.content = container.NewBorder(
		container.NewVBox(container.NewHBox(refreshBtn, addBtn), header),
		t.summary, nil, nil,
		t.tree,
	)
	return t
}

func (t *modelsTab) childUIDs(id widget.TreeNodeID) []widget.TreeNodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id == "" {
		ids := make([]widget.TreeNodeID, len(t.groups))
		for i := range t.groups {
			ids[i] = "t/" + strconv.Itoa(i)
		}
		return ids
	}

	g, ok := parseGroupID(id)
	if !ok || g >= len(t.groups) {
		return nil
	}
	ids := make([]widget.TreeNodeID, len(t.groups[g].Models))
	for i := range t.groups[g].Models {
		ids[i] = fmt.Sprintf("m/%d/%d", g, i)
	}
	return ids
}

func (t *modelsTab) isBranch(id widget.TreeNodeID) bool {
	return id == "" || strings.HasPrefix(id, "t/")
}

func (t *modelsTab) updateNode(id widget.TreeNodeID, branch bool, o fyne.CanvasObject) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if branch {
		g, ok := parseGroupID(id)
		if !ok || g >= len(t.groups) {
			return
		}
		o.(*widget.Label).SetText(fmt.Sprintf("%s (%d)", t.groups[g].Type, len(t.groups[g].Models)))
		return
	}

	var g, m int
	if _, err := fmt.Sscanf(id, "m/%d/%d", &g, &m); err != nil {
		return
	}
	if g >= len(t.groups) || m >= len(t.groups[g].Models) {
		return
	}
	model := t.groups[g].Models[m]

	cells := o.(*fyne.Container).Objects
	cells[0].(*widget.Label).SetText(model.Name)
	cells[1].(*widget.Label).SetText(model.Baseline)
	cells[2].(*widget.Label).SetText(model.Status)
	cells[3].(*widget.Label).SetText(catalog.SizeLabel(model))
}

func parseGroupID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "t/")
	if !ok {
		return 0, false
	}
	g, err := strconv.Atoi(rest)
	return g, err == nil
}

// refresh reloads the model list from the worker folder
func (t *modelsTab) refresh() {
	folder := t.mw.settings.WorkerFolder
	if folder == "" {
		t.setGroups(nil)
		t.summary.SetText("Select the worker folder to list its models")
		return
	}

	list, err := t.mw.catalog.Load(folder)
	if err != nil {
		logger.Log.WithError(err).Warn("Some model sources could not be read")
		dialog.ShowError(err, t.mw.window)
	}
	groups := catalog.GroupByType(list)
	t.setGroups(groups)

	if len(list) == 0 {
		t.summary.SetText("No models found. The worker writes models.json on its first run.")
	} else {
		t.summary.SetText(fmt.Sprintf("%d models in %d groups", len(list), len(groups)))
	}
}

func (t *modelsTab) setGroups(groups []catalog.Group) {
	t.mu.Lock()
	t.groups = groups
	t.mu.Unlock()
	t.tree.Refresh()
}
