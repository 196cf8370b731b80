// Package sandbox is a headless engine built on goja.
//
// Each frame gets its own JavaScript VM with a minimal window surface
// (print, alert, document.title, location.href and the host message
// channel). Navigation, history and key input are simulated and reported
// through an engine.Translator exactly as a real embedding would report
// them, which makes the package suitable both for the command-line host and
// for exercising the policy layer end to end.
package sandbox

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
	"github.com/GriffinCanCode/ExamShell/backend/internal/shared/id"
)

// Browser is one simulated browser surface
type Browser struct {
	config   Config
	resolver Resolver
	logger   *zap.Logger
	mainID   string

	mu       sync.Mutex
	tr       *engine.Translator
	main     *Page
	frames   map[string]*Page
	history  []string
	cursor   int
	zoom     float64
	devtools bool
	finds    []string
	prints   int
	alerts   []string
	popups   []string
	headers  http.Header
	closed   bool
}

// New creates a browser. A nil resolver serves blank documents.
func New(config Config, resolver Resolver, logger *zap.Logger) *Browser {
	if resolver == nil {
		resolver = BlankResolver
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{
		config:   config,
		resolver: resolver,
		logger:   logger,
		mainID:   id.NewFrameID().String(),
		frames:   make(map[string]*Page),
		cursor:   -1,
		zoom:     1.0,
	}
}

// Attach connects the browser to the translator of its window
func (b *Browser) Attach(tr *engine.Translator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tr = tr
}

// MainFrameID returns the id of the top-level frame
func (b *Browser) MainFrameID() string { return b.mainID }

func (b *Browser) translator() (*engine.Translator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.tr == nil {
		return nil, engine.ErrEngineUnavailable
	}
	return b.tr, nil
}

// Navigate loads url as if typed into the address bar
func (b *Browser) Navigate(url string) error {
	return b.load(url, engine.TransitionExplicit, true, 1)
}

// Click follows a link with a user gesture
func (b *Browser) Click(url string) error {
	return b.load(url, engine.TransitionLink, true, 1)
}

// ScriptNavigate navigates without a user gesture, as location.assign would
func (b *Browser) ScriptNavigate(url string) error {
	return b.load(url, engine.TransitionLink, false, 1)
}

// GoBack navigates one history entry back
func (b *Browser) GoBack() error {
	target, err := b.historyEntry(-1)
	if err != nil {
		return err
	}
	return b.load(target, engine.TransitionLink|engine.TransitionForwardBackFlag, true, -1)
}

// GoForward navigates one history entry forward
func (b *Browser) GoForward() error {
	target, err := b.historyEntry(1)
	if err != nil {
		return err
	}
	return b.load(target, engine.TransitionLink|engine.TransitionForwardBackFlag, true, 0)
}

// Reload reloads the current entry
func (b *Browser) Reload() error {
	target, err := b.historyEntry(0)
	if err != nil {
		return err
	}
	return b.load(target, engine.TransitionReload, true, 0)
}

func (b *Browser) historyEntry(offset int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.cursor + offset
	if i < 0 || i >= len(b.history) {
		return "", ErrNoHistory
	}
	return b.history[i], nil
}

// load runs one main frame navigation. move is 1 to push a history entry,
// -1 to step back, 0 to step forward or stay (depending on the transition).
func (b *Browser) load(url string, transition engine.Transition, gesture bool, move int) error {
	tr, err := b.translator()
	if err != nil {
		return err
	}

	cancel, headers := tr.OnBeforeBrowse(b.mainID, true, url, transition, gesture)
	if cancel {
		return ErrNavigationCancelled
	}

	b.mu.Lock()
	b.headers = headers
	canBack, canFwd := b.historyStateLocked()
	b.mu.Unlock()
	tr.OnLoadingStateChange(true, canBack, canFwd)

	doc, err := b.resolver(url, headers.Clone())
	if err != nil {
		tr.OnLoadError(true, -105, err.Error(), url)
		tr.OnLoadingStateChange(false, canBack, canFwd)
		return err
	}

	b.releaseAll(tr)

	page, err := newPage(b.mainID, url, doc, b.config, b)
	if err != nil {
		tr.OnLoadError(true, -2, err.Error(), url)
		tr.OnLoadingStateChange(false, canBack, canFwd)
		return err
	}

	b.mu.Lock()
	b.main = page
	b.recordLocked(url, transition, move)
	canBack, canFwd = b.historyStateLocked()
	b.mu.Unlock()

	tr.OnContextCreated(b.mainID, true, url)
	if doc.Script != "" {
		page.enqueue(job{code: doc.Script, uncaught: true})
	}

	status := doc.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	tr.OnTitleChange(doc.Title)
	tr.OnLoadEnd(b.mainID, true, url, status)
	tr.OnLoadingStateChange(false, canBack, canFwd)

	b.logger.Debug("Sandbox navigation complete", zap.String("url", url), zap.Int("status", status))
	return nil
}

func (b *Browser) recordLocked(url string, transition engine.Transition, move int) {
	switch {
	case transition.Is(engine.TransitionForwardBackFlag) && move < 0:
		b.cursor--
	case transition.Is(engine.TransitionForwardBackFlag):
		b.cursor++
	case transition.Source() == engine.TransitionReload:
	default:
		b.history = append(b.history[:b.cursor+1], url)
		b.cursor = len(b.history) - 1
	}
}

func (b *Browser) historyStateLocked() (canBack, canForward bool) {
	return b.cursor > 0, b.cursor >= 0 && b.cursor < len(b.history)-1
}

// releaseAll destroys the main frame and every sub frame context
func (b *Browser) releaseAll(tr *engine.Translator) {
	b.mu.Lock()
	old := b.main
	b.main = nil
	frames := b.frames
	b.frames = make(map[string]*Page)
	b.mu.Unlock()

	for fid, p := range frames {
		p.Release()
		tr.OnContextReleased(fid, false)
	}
	if old != nil {
		old.Release()
		tr.OnContextReleased(old.ID(), true)
	}
}

// LoadFrame loads url into a new sub frame of the current page
func (b *Browser) LoadFrame(url string) (string, error) {
	tr, err := b.translator()
	if err != nil {
		return "", err
	}

	frameID := id.NewFrameID().String()
	cancel, headers := tr.OnBeforeBrowse(frameID, false, url, engine.TransitionAutoSubframe, false)
	if cancel {
		return "", ErrNavigationCancelled
	}

	doc, err := b.resolver(url, headers)
	if err != nil {
		tr.OnLoadError(false, -105, err.Error(), url)
		return "", err
	}

	page, err := newPage(frameID, url, doc, b.config, b)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.frames[frameID] = page
	b.mu.Unlock()

	tr.OnContextCreated(frameID, false, url)
	if doc.Script != "" {
		page.enqueue(job{code: doc.Script, uncaught: true})
	}
	tr.OnLoadEnd(frameID, false, url, http.StatusOK)
	return frameID, nil
}

// OpenPopup simulates window.open. It returns whether a new window opened.
func (b *Browser) OpenPopup(url string, gesture bool) (bool, error) {
	tr, err := b.translator()
	if err != nil {
		return false, err
	}

	cancel, sameWindow := tr.OnOpenURLFromTab(url, gesture)
	if sameWindow != "" {
		return false, b.load(sameWindow, engine.TransitionLink, gesture, 1)
	}
	if cancel {
		return false, nil
	}

	b.mu.Lock()
	b.popups = append(b.popups, url)
	b.mu.Unlock()
	return true, nil
}

// Press simulates a key down. It returns whether the page received the key.
func (b *Browser) Press(key string, mods engine.Modifiers) bool {
	tr, err := b.translator()
	if err != nil {
		return false
	}
	return !tr.OnPreKeyEvent(key, mods)
}

// Download simulates a download request and returns the approved path
func (b *Browser) Download(url, suggestedName, mimeType, targetPath string) (string, error) {
	tr, err := b.translator()
	if err != nil {
		return "", err
	}
	cancel, path := tr.OnBeforeDownload(url, suggestedName, mimeType, targetPath)
	if cancel {
		return "", ErrNavigationCancelled
	}
	return path, nil
}

// ChooseFile simulates a page opening a file chooser and the user picking
// selection. It reports whether the files reach the page.
func (b *Browser) ChooseFile(mode engine.FileDialogMode, defaultPath string, selection ...string) bool {
	tr, err := b.translator()
	if err != nil {
		return false
	}
	if tr.OnFileDialog(mode, defaultPath, nil) {
		return false
	}
	if len(selection) == 0 {
		return true
	}
	return !tr.OnFileDialogResult(mode, selection)
}

// RunPageScript runs code as the page's own script; uncaught exceptions are
// reported to the translator.
func (b *Browser) RunPageScript(frameID, code string) error {
	p := b.page(frameID)
	if p == nil {
		return engine.ErrNotReady
	}
	p.enqueue(job{code: code, uncaught: true})
	return nil
}

// EvaluateScript runs code in the given frame and reports through cb
func (b *Browser) EvaluateScript(frameID, code string, cb engine.ScriptCallback) {
	if cb == nil {
		cb = func(engine.ScriptResult) {}
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		cb(engine.Failed(engine.ErrEngineUnavailable))
		return
	}

	p := b.page(frameID)
	if p == nil {
		cb(engine.Failed(engine.ErrNotReady))
		return
	}
	p.enqueue(job{code: code, cb: cb})
}

// Eval evaluates code and waits for the result. Intended for hosts and tests
// that are not on the engine's event thread.
func (b *Browser) Eval(ctx context.Context, frameID, code string) engine.ScriptResult {
	ch := make(chan engine.ScriptResult, 1)
	b.EvaluateScript(frameID, code, func(r engine.ScriptResult) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return engine.Failed(ctx.Err())
	}
}

func (b *Browser) page(frameID string) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	if frameID == engine.MainFrame || frameID == b.mainID {
		return b.main
	}
	return b.frames[frameID]
}

// Sync waits until every page has drained its queue, including work queued
// by the work itself.
func (b *Browser) Sync(ctx context.Context) error {
	for {
		b.mu.Lock()
		pages := make([]*Page, 0, len(b.frames)+1)
		if b.main != nil {
			pages = append(pages, b.main)
		}
		for _, p := range b.frames {
			pages = append(pages, p)
		}
		b.mu.Unlock()

		idle := true
		for _, p := range pages {
			if !p.idle() {
				idle = false
				break
			}
		}
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// SetZoom sets the page zoom level
func (b *Browser) SetZoom(level float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.zoom = level
	return nil
}

// ShowDevTools opens the developer console
func (b *Browser) ShowDevTools() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.devtools = true
	return nil
}

// Find searches the page for term
func (b *Browser) Find(term string, forward, matchCase bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.finds = append(b.finds, term)
	return nil
}

func (b *Browser) pageMessage(frameID string, payload []byte) {
	if tr, err := b.translator(); err == nil {
		tr.OnProcessMessageReceived(frameID, payload)
	}
}

func (b *Browser) pagePrint(string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prints++
}

func (b *Browser) pageAlert(_, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, message)
}

func (b *Browser) pageUncaught(frameID, message, source string) {
	if tr, err := b.translator(); err == nil {
		tr.OnUncaughtException(frameID, message, source, 0)
	}
}

// State is a snapshot of the simulated browser, for hosts and tests
type State struct {
	URL            string
	History        []string
	Cursor         int
	Zoom           float64
	DevToolsOpen   bool
	Finds          []string
	PrintCount     int
	Alerts         []string
	Popups         []string
	RequestHeaders http.Header
}

// State returns a snapshot of the browser
func (b *Browser) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := State{
		History:        append([]string(nil), b.history...),
		Cursor:         b.cursor,
		Zoom:           b.zoom,
		DevToolsOpen:   b.devtools,
		Finds:          append([]string(nil), b.finds...),
		PrintCount:     b.prints,
		Alerts:         append([]string(nil), b.alerts...),
		Popups:         append([]string(nil), b.popups...),
		RequestHeaders: b.headers.Clone(),
	}
	if b.main != nil {
		s.URL = b.main.URL()
	}
	return s
}

// Close releases every context. Pending evaluations are dropped.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	main := b.main
	frames := b.frames
	b.main = nil
	b.frames = nil
	b.mu.Unlock()

	for _, p := range frames {
		p.Close()
	}
	if main != nil {
		main.Close()
	}
	return nil
}

var _ engine.Engine = (*Browser)(nil)
