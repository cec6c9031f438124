package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

// transferLog is the scrolling, colored record of transfers shown under the
// form.
type transferLog struct {
	output *fyne.Container
	scroll *container.Scroll
}

func newTransferLog() *transferLog {
	out := container.NewVBox()
	scroll := container.NewVScroll(out)
	scroll.SetMinSize(fyne.NewSize(600, 240))

	return &transferLog{output: out, scroll: scroll}
}

func (l *transferLog) printNormal(msg string) {
	l.print(msg, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
}

func (l *transferLog) printSuccess(msg string) {
	l.print(msg, color.NRGBA{R: 0, G: 200, B: 100, A: 255})
}

func (l *transferLog) printError(msg string) {
	l.print(msg, color.NRGBA{R: 220, G: 60, B: 60, A: 255})
}

func (l *transferLog) print(msg string, c color.Color) {
	text := canvas.NewText(msg, c)
	text.TextSize = 14
	l.output.Add(text)
	l.scroll.ScrollToBottom()
}
