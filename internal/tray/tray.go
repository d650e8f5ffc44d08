// Package tray provides a system tray toggle for live gesture detection.
package tray

import (
	"context"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/pkg/logger"
)

// Toggler is the detection switch the tray drives.
type Toggler interface {
	Detecting() bool
	SetDetect(ctx context.Context, enabled bool) error
}

// Tray represents the system tray application.
type Tray struct {
	toggler Toggler
	log     logger.Logger
	onOpen  func()
	onQuit  func()
	mu      sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a tray that flips toggler.
func New(toggler Toggler, log logger.Logger) *Tray {
	if log == nil {
		log = logger.Nop()
	}
	return &Tray{toggler: toggler, log: log}
}

// OnOpen sets the callback for the "Open video feed" menu item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("mudra")
	systray.SetTooltip("mudra sign detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.toggler.Detecting()), "Toggle live detection")
	systray.AddSeparator()
	t.menuLast = systray.AddMenuItem(lastTitle(nil), "Last detected sign")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open video feed...", "Open the annotated stream in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit mudra")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle(context.Background())
			case <-menuOpen.ClickedCh:
				t.call(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// Toggle flips detection and returns the new state.
func (t *Tray) Toggle(ctx context.Context) bool {
	enabled := !t.toggler.Detecting()
	if err := t.toggler.SetDetect(ctx, enabled); err != nil {
		t.log.Warn(ctx, "failed to persist detection toggle", logger.Error(err))
	}

	t.mu.RLock()
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	t.mu.RUnlock()
	return enabled
}

// Follow shows each live prediction as the last detected sign until
// updates is closed or ctx ends.
func (t *Tray) Follow(ctx context.Context, updates <-chan app.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if !u.Hand {
				continue
			}
			t.mu.RLock()
			if t.menuLast != nil {
				t.menuLast.SetTitle(lastTitle(&u))
			}
			t.mu.RUnlock()
		}
	}
}

func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	fn := get()
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if fn != nil {
		fn()
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Detecting"
	}
	return "○ Paused"
}

func lastTitle(u *app.Update) string {
	if u == nil || u.Label == "" {
		return "Last: none"
	}
	return "Last: " + app.FormatPrediction(&inference.Prediction{Label: u.Label, Confidence: u.Confidence})
}
