package enforcer

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/bridge"
	"github.com/GriffinCanCode/ExamShell/backend/internal/clipboard"
	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
)

// step is how a completed navigation moves the history cursor
type step int

const (
	stepPush step = iota
	stepBack
	stepForward
	stepStay
)

type navigation struct {
	url    string
	origin engine.Origin
	step   step
}

// Window is one browser surface: the main exam window or an auxiliary
// window. It owns its history cursor and lifecycle state and reads its
// permissions from an immutable policy view.
type Window struct {
	id       string
	class    policy.WindowClass
	view     policy.View
	e        *Enforcer
	engine   engine.Engine
	logger   *zap.Logger
	receiver *clipboard.Receiver

	ctx    context.Context
	cancel context.CancelFunc

	// dispatchMu serializes event handling; mu guards the fields below and
	// is never held while calling the engine.
	dispatchMu sync.Mutex

	mu        sync.Mutex
	state     State
	url       string
	title     string
	history   []string
	cursor    int
	frames    map[string]string
	mainFrame string
	hostNav   string
	hint      *step
	pending   *navigation
}

// Info is a point-in-time description of a window
type Info struct {
	ID      string   `json:"id"`
	Class   string   `json:"class"`
	State   string   `json:"state"`
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	History []string `json:"history"`
	Cursor  int      `json:"cursor"`
	Frames  int      `json:"frames"`
}

func newWindow(parent context.Context, e *Enforcer, class policy.WindowClass, eng engine.Engine) *Window {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	w := &Window{
		id:     newWindowID(),
		class:  class,
		view:   e.matrix.View(class),
		e:      e,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
		state:  StateUninitialized,
		cursor: -1,
		frames: make(map[string]string),
	}
	w.logger = e.logger.With(zap.String("window_id", w.id), zap.String("class", class.String()))
	w.receiver = clipboard.NewReceiver(w.deliverClipboard)
	return w
}

// ID returns the window id
func (w *Window) ID() string { return w.id }

// Class returns the window class
func (w *Window) Class() policy.WindowClass { return w.class }

// View returns the window's policy view
func (w *Window) View() policy.View { return w.view }

// State returns the lifecycle state
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// URL returns the address of the last completed main frame navigation
func (w *Window) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

// Info returns a snapshot of the window
func (w *Window) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Info{
		ID:      w.id,
		Class:   w.class.String(),
		State:   w.state.String(),
		URL:     w.url,
		Title:   w.title,
		History: slices.Clone(w.history),
		Cursor:  w.cursor,
		Frames:  len(w.frames),
	}
}

func (w *Window) transition(to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transitionLocked(to)
}

func (w *Window) transitionLocked(to State) error {
	from := w.state
	if !canTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	w.state = to
	if from != to {
		w.logger.Debug("Window state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	return nil
}

// Close moves the window to its terminal state. Pending script callbacks
// are dropped and every later event is denied.
func (w *Window) Close() {
	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return
	}
	w.state = StateClosed
	w.frames = make(map[string]string)
	w.mainFrame = ""
	w.pending = nil
	w.mu.Unlock()

	w.cancel()
	w.e.forget(w)
	w.logger.Info("Window closed")
}

// Dispatch decides one engine event. It implements engine.Dispatcher.
func (w *Window) Dispatch(_ context.Context, ev engine.Event) engine.Verdict {
	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()

	v := w.decide(ev)
	w.e.metrics.RecordDecision(string(ev.Kind()), v.Action.String(), w.class.String())
	return v
}

func (w *Window) decide(ev engine.Event) engine.Verdict {
	switch state := w.State(); state {
	case StateActive, StateSuspended:
	default:
		return engine.Refuse("window is " + state.String())
	}

	switch ev := ev.(type) {
	case engine.NavigationRequested:
		return w.onNavigationRequested(ev)
	case engine.NavigationCompleted:
		w.onNavigationCompleted(ev)
	case engine.LoadFailed:
		w.onLoadFailed(ev)
	case engine.ContextCreated:
		w.onContextCreated(ev)
	case engine.ContextReleased:
		w.onContextReleased(ev)
	case engine.DownloadRequested:
		return w.onDownloadRequested(ev)
	case engine.FileDialogRequested:
		return w.onFileDialogRequested(ev)
	case engine.FilesSelected:
		return w.onFilesSelected(ev)
	case engine.KeyPressed:
		return w.onKeyPressed(ev)
	case engine.ScriptMessageReceived:
		return w.onScriptMessage(ev)
	case engine.UncaughtScriptError:
		w.e.metrics.RecordUncaughtError()
		w.logger.Debug("Uncaught page script error",
			zap.String("frame_id", ev.FrameID),
			zap.String("message", ev.Message),
			zap.String("source", ev.Source),
			zap.Int("line", ev.Line))
	case engine.TitleChanged:
		w.mu.Lock()
		w.title = ev.Title
		w.mu.Unlock()
		w.e.host.TitleChanged(w.id, ev.Title)
	case engine.LoadingStateChanged:
		w.e.host.LoadingStateChanged(w.id, ev.IsLoading)
	default:
		return engine.Refuse("unsupported event")
	}
	return engine.Permit()
}

// deny reports a violation and returns the matching verdict
func (w *Window) deny(kind ViolationKind, detail, url string) engine.Verdict {
	v := Violation{
		WindowID: w.id,
		Class:    w.class.String(),
		Kind:     kind,
		Detail:   detail,
		URL:      url,
		At:       time.Now(),
	}
	w.e.metrics.RecordViolation(string(kind))
	w.logger.Info("Action denied",
		zap.String("kind", string(kind)),
		zap.String("detail", detail),
		zap.String("url", url))
	w.e.host.PolicyViolation(v)
	return engine.Refuse(detail)
}

func (w *Window) onContextCreated(ev engine.ContextCreated) {
	w.mu.Lock()
	w.frames[ev.FrameID] = ev.URL
	if ev.IsMainFrame {
		w.mainFrame = ev.FrameID
	}
	w.mu.Unlock()

	// Tokens are derived for every new context, never reused from the
	// navigation that produced it.
	tok, err := w.e.generator.Derive(ev.URL)
	w.e.metrics.RecordDerivation(err == nil)
	if err != nil {
		w.logger.Warn("Integrity derivation failed", zap.String("url", ev.URL), zap.Error(err))
	} else {
		w.inject(ev.FrameID, bridge.IntegrityAPI(tok, w.e.cfg.BuildVersion()))
	}

	if w.isolatedClipboard() {
		entry, _ := w.e.clipboard.Current()
		w.inject(ev.FrameID, bridge.ClipboardIsolation(entry.ID, entry.Content))
	}

	if !w.view.Allows(policy.Print) {
		w.inject(ev.FrameID, bridge.PrintOverride(w.e.cfg.PrintNotAllowedNotice()))
	}
}

func (w *Window) onContextReleased(ev engine.ContextReleased) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.frames, ev.FrameID)
	if ev.IsMainFrame {
		w.mainFrame = ""
	}
}

func (w *Window) inject(frameID string, inj bridge.Injection) {
	w.ExecuteScript(frameID, inj.Script, func(r engine.ScriptResult) {
		if !r.Success {
			w.logger.Debug("Injection failed",
				zap.String("kind", string(inj.Kind)),
				zap.String("frame_id", frameID),
				zap.String("message", r.Message))
			return
		}
		w.e.metrics.RecordInjection(string(inj.Kind))
	})
}

// ExecuteScript evaluates code in a frame without blocking. cb receives the
// result exactly once unless the window closes first, in which case pending
// callbacks are dropped. A frame without a live context fails immediately
// with engine.ErrNotReady.
func (w *Window) ExecuteScript(frameID, code string, cb engine.ScriptCallback) {
	if cb == nil {
		cb = func(engine.ScriptResult) {}
	}

	w.mu.Lock()
	closed := w.state == StateClosed
	ready := w.readyLocked(frameID)
	w.mu.Unlock()

	switch {
	case closed || w.engine == nil || w.ctx.Err() != nil:
		w.e.metrics.RecordScript(false)
		cb(engine.Failed(engine.ErrEngineUnavailable))
		return
	case !ready:
		w.e.metrics.RecordScript(false)
		cb(engine.Failed(engine.ErrNotReady))
		return
	}

	ctx := w.ctx
	w.engine.EvaluateScript(frameID, code, func(r engine.ScriptResult) {
		if ctx.Err() != nil {
			return
		}
		w.e.metrics.RecordScript(r.Success)
		cb(r)
	})
}

func (w *Window) readyLocked(frameID string) bool {
	if frameID == engine.MainFrame {
		return w.mainFrame != ""
	}
	_, ok := w.frames[frameID]
	return ok
}

func (w *Window) readyFrames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.frames))
	for fid := range w.frames {
		out = append(out, fid)
	}
	return out
}

func (w *Window) deliverClipboard(_ context.Context, e clipboard.Entry) error {
	if w.State() == StateClosed {
		return ErrWindowClosed
	}
	inj := bridge.ClipboardUpdate(e.ID, e.Content)
	for _, fid := range w.readyFrames() {
		w.inject(fid, inj)
	}
	return nil
}
