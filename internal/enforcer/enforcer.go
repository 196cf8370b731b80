// Package enforcer mediates every engine event of an exam session.
//
// Each browser surface gets a Window. The Window is the Dispatcher behind
// the surface's engine.Translator: every translated event is checked against
// the window's policy view and answered with a Verdict. Denied actions are
// reported to the Host as violations; approved state (integrity values,
// clipboard entries, the print override) is pushed into page contexts
// through the bridge injections.
package enforcer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/bridge"
	"github.com/GriffinCanCode/ExamShell/backend/internal/clipboard"
	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
	"github.com/GriffinCanCode/ExamShell/backend/internal/integrity"
	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
	"github.com/GriffinCanCode/ExamShell/backend/internal/shared/id"
)

var (
	ErrNoConfiguration = errors.New("enforcer requires a configuration")
	ErrWindowClosed    = errors.New("window closed")
	ErrDenied          = errors.New("action denied by policy")
)

// Surface is an engine that reports its callbacks to a Translator
type Surface interface {
	engine.Engine
	Attach(tr *engine.Translator)
}

// Options wires an Enforcer. Only Configuration is required.
type Options struct {
	Configuration *settings.Configuration
	Matrix        *policy.Matrix
	Clipboard     *clipboard.Mediator
	Bridge        *bridge.Bridge
	Host          Host
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics

	// NextNavigation returns the next value of the session's navigation
	// counter.
	NextNavigation func() uint64
}

// Enforcer holds the session-wide collaborators shared by all windows
type Enforcer struct {
	cfg       *settings.Configuration
	matrix    *policy.Matrix
	generator *integrity.Generator
	clipboard *clipboard.Mediator
	bridge    *bridge.Bridge
	host      Host
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	next      func() uint64

	mu      sync.RWMutex
	windows map[string]*Window
}

// New creates an enforcer
func New(opts Options) (*Enforcer, error) {
	if opts.Configuration == nil {
		return nil, ErrNoConfiguration
	}

	e := &Enforcer{
		cfg:       opts.Configuration,
		matrix:    opts.Matrix,
		generator: integrity.NewGenerator(opts.Configuration),
		clipboard: opts.Clipboard,
		bridge:    opts.Bridge,
		host:      opts.Host,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		next:      opts.NextNavigation,
		windows:   make(map[string]*Window),
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.matrix == nil {
		e.matrix = policy.FromConfiguration(opts.Configuration)
	}
	if e.clipboard == nil {
		e.clipboard = clipboard.NewMediator(e.logger, e.metrics)
	}
	if e.bridge == nil {
		e.bridge = bridge.New(bridge.DefaultLimits(), e.logger, e.metrics)
	}
	if e.host == nil {
		e.host = HostFuncs{}
	}
	if e.next == nil {
		var counter atomic.Uint64
		e.next = func() uint64 { return counter.Add(1) }
	}
	return e, nil
}

// Matrix returns the session's policy matrix
func (e *Enforcer) Matrix() *policy.Matrix { return e.matrix }

// Clipboard returns the session's clipboard mediator
func (e *Enforcer) Clipboard() *clipboard.Mediator { return e.clipboard }

// Open creates a window of the given class for surface, attaches its
// translator and activates it. The window stops dispatching when ctx ends
// or the window is closed.
func (e *Enforcer) Open(ctx context.Context, class policy.WindowClass, surface Surface) (*Window, error) {
	if surface == nil {
		return nil, fmt.Errorf("open %s window: %w", class, engine.ErrEngineUnavailable)
	}

	w := newWindow(ctx, e, class, surface)
	surface.Attach(engine.NewTranslator(w.ctx, w))

	if e.clipboard != nil && e.matrix.ClipboardPolicy() == settings.ClipboardIsolated {
		e.clipboard.Register(w.ID(), w.receiver)
	}

	e.mu.Lock()
	e.windows[w.ID()] = w
	e.mu.Unlock()

	if err := w.transition(StateActive); err != nil {
		w.Close()
		return nil, err
	}

	e.metrics.IncWindows()
	w.logger.Info("Window opened")
	return w, nil
}

// Window returns an open window by id
func (e *Enforcer) Window(windowID string) (*Window, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.windows[windowID]
	return w, ok
}

// Windows returns all open windows
func (e *Enforcer) Windows() []*Window {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Window, 0, len(e.windows))
	for _, w := range e.windows {
		out = append(out, w)
	}
	return out
}

// CloseAll closes every window
func (e *Enforcer) CloseAll() {
	for _, w := range e.Windows() {
		w.Close()
	}
}

func (e *Enforcer) forget(w *Window) {
	e.mu.Lock()
	_, ok := e.windows[w.ID()]
	delete(e.windows, w.ID())
	e.mu.Unlock()

	if !ok {
		return
	}
	e.clipboard.Unregister(w.ID())
	e.bridge.Forget(w.ID())
	e.metrics.DecWindows()
}

func newWindowID() string {
	return id.NewWindowID().String()
}
