package ui

import (
	"hordegui/worker"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var (
	colorStopped  = color.NRGBA{R: 0x75, G: 0x75, B: 0x75, A: 0xff}
	colorStarting = color.NRGBA{R: 0xf5, G: 0xa6, B: 0x23, A: 0xff}
	colorRunning  = color.NRGBA{R: 0x2e, G: 0x9d, B: 0x4f, A: 0xff}
	colorCrashed  = color.NRGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff}
)

// stateColor maps a worker state to the badge background
func stateColor(s worker.State) color.Color {
	switch s {
	case worker.Starting, worker.Stopping:
		return colorStarting
	case worker.Running:
		return colorRunning
	case worker.Crashed:
		return colorCrashed
	}
	return colorStopped
}

// StatusBadge shows the worker state as white text on a coloured pill
type StatusBadge struct {
	widget.BaseWidget

	state  worker.State
	detail string

	text *canvas.Text
	bg   *canvas.Rectangle
}

// NewStatusBadge creates a badge showing the stopped state
func NewStatusBadge() *StatusBadge {
	b := &StatusBadge{state: worker.Stopped}
	b.ExtendBaseWidget(b)
	return b
}

// SetState changes the state and clears the detail text
func (b *StatusBadge) SetState(s worker.State) {
	b.state = s
	b.detail = ""
	b.Refresh()
}

// SetDetail shows text next to the state name, for example what the
// worker is doing right now
func (b *StatusBadge) SetDetail(detail string) {
	b.detail = detail
	b.Refresh()
}

func (b *StatusBadge) label() string {
	if b.detail == "" {
		return b.state.String()
	}
	return b.state.String() + ": " + b.detail
}

// CreateRenderer implements fyne.Widget
func (b *StatusBadge) CreateRenderer() fyne.WidgetRenderer {
	b.text = canvas.NewText(b.label(), color.White)
	b.text.TextStyle = fyne.TextStyle{Bold: true}
	b.bg = canvas.NewRectangle(stateColor(b.state))
	b.bg.CornerRadius = 6

	padded := container.NewPadded(b.text)
	return &statusBadgeRenderer{
		badge:   b,
		objects: container.NewStack(b.bg, padded),
	}
}

type statusBadgeRenderer struct {
	badge   *StatusBadge
	objects *fyne.Container
}

func (r *statusBadgeRenderer) MinSize() fyne.Size {
	return r.objects.MinSize()
}

func (r *statusBadgeRenderer) Layout(size fyne.Size) {
	r.objects.Resize(size)
}

func (r *statusBadgeRenderer) Refresh() {
	r.badge.text.Text = r.badge.label()
	r.badge.bg.FillColor = stateColor(r.badge.state)
	r.badge.text.Refresh()
	r.badge.bg.Refresh()
}

func (r *statusBadgeRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.objects}
}

func (r *statusBadgeRenderer) Destroy() {}
