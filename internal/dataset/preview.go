package dataset

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Preview displays capture progress. Show returns true when the operator
// asked to quit.
type Preview interface {
	Show(frame *gocv.Mat, text string) bool
	Close() error
}

// Window is a Preview backed by a HighGUI window; pressing q quits.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a preview window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Show draws text on frame, displays it and polls the keyboard.
func (w *Window) Show(frame *gocv.Mat, text string) bool {
	gocv.PutText(frame, text, image.Pt(10, 30), gocv.FontHersheySimplex, 1, color.RGBA{G: 255, A: 255}, 2)
	w.window.IMShow(*frame)
	return w.window.WaitKey(1) == 'q'
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}
