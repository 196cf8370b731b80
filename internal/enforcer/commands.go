package enforcer

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
)

// ErrNoHistory means there is no entry to move to
var ErrNoHistory = errors.New("no history entry")

// Host commands are issued by the window chrome. They are gated by the same
// view as the engine events they cause, and never hold the window lock while
// calling the engine, which dispatches back synchronously.

func (w *Window) usable() error {
	switch w.State() {
	case StateActive, StateSuspended:
		return nil
	case StateClosed:
		return ErrWindowClosed
	default:
		return engine.ErrNotReady
	}
}

func (w *Window) require(c policy.Capability, detail string) error {
	if err := w.usable(); err != nil {
		return err
	}
	if !w.view.Allows(c) {
		w.deny(ViolationKind(c), detail, w.URL())
		return fmt.Errorf("%w: %s", ErrDenied, c)
	}
	return nil
}

// Load navigates to url on behalf of the host, e.g. the start URL. It is
// not subject to the address bar gate but still to the URL filter.
func (w *Window) Load(url string) error {
	if err := w.usable(); err != nil {
		return err
	}
	w.mu.Lock()
	w.hostNav = url
	w.mu.Unlock()
	return w.engine.Navigate(url)
}

// NavigateTo navigates to a URL entered in the address bar
func (w *Window) NavigateTo(url string) error {
	if err := w.require(policy.AddressBar, "address bar navigation is not allowed"); err != nil {
		return err
	}
	return w.engine.Navigate(url)
}

// NavigateBackwards moves one history entry back
func (w *Window) NavigateBackwards() error {
	return w.move(stepBack)
}

// NavigateForwards moves one history entry forward
func (w *Window) NavigateForwards() error {
	return w.move(stepForward)
}

func (w *Window) move(s step) error {
	c, detail := policy.BackNavigation, "backward navigation is not allowed"
	if s == stepForward {
		c, detail = policy.ForwardNavigation, "forward navigation is not allowed"
	}
	if err := w.require(c, detail); err != nil {
		return err
	}

	w.mu.Lock()
	ok := (s == stepBack && w.cursor > 0) || (s == stepForward && w.cursor+1 < len(w.history))
	if ok {
		w.hint = &s
	}
	w.mu.Unlock()
	if !ok {
		return ErrNoHistory
	}

	defer func() {
		w.mu.Lock()
		w.hint = nil
		w.mu.Unlock()
	}()

	if s == stepBack {
		return w.engine.GoBack()
	}
	return w.engine.GoForward()
}

// Reload reloads the current page
func (w *Window) Reload() error {
	if err := w.require(policy.Reload, "reloading is not allowed"); err != nil {
		return err
	}
	return w.engine.Reload()
}

// Zoom sets the page zoom level
func (w *Window) Zoom(level float64) error {
	if err := w.require(policy.Zoom, "page zoom is not allowed"); err != nil {
		return err
	}
	return w.engine.SetZoom(level)
}

// Find searches the page for term
func (w *Window) Find(term string, forward, matchCase bool) error {
	if err := w.require(policy.Find, "find is not allowed"); err != nil {
		return err
	}
	return w.engine.Find(term, forward, matchCase)
}

// ShowDeveloperConsole opens the engine's developer tools
func (w *Window) ShowDeveloperConsole() error {
	if err := w.require(policy.DeveloperTools, "developer tools are not allowed"); err != nil {
		return err
	}
	return w.engine.ShowDevTools()
}
