package engine

import (
	"context"
	"net/http"
	"strings"
)

// Dispatcher consumes translated events. Dispatch must not block on script
// evaluation and must always return a verdict.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) Verdict
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, ev Event) Verdict

// Dispatch calls f
func (f DispatcherFunc) Dispatch(ctx context.Context, ev Event) Verdict {
	return f(ctx, ev)
}

// Transition is the engine's classification of a navigation
type Transition uint32

const (
	TransitionLink Transition = iota
	TransitionExplicit
	TransitionAutoSubframe
	TransitionManualSubframe
	TransitionFormSubmit
	TransitionReload

	transitionSourceMask Transition = 0xFF
)

// Transition qualifiers, combined with a core type
const (
	TransitionForwardBackFlag    Transition = 0x01000000
	TransitionClientRedirectFlag Transition = 0x40000000
	TransitionServerRedirectFlag Transition = 0x80000000
)

// Source returns the core transition type without qualifiers
func (t Transition) Source() Transition { return t & transitionSourceMask }

// Is reports whether flag is set
func (t Transition) Is(flag Transition) bool { return t&flag != 0 }

// Translator maps engine callbacks onto events for one browser surface.
// The On* methods mirror the engine's delegate surface and are safe to call
// from the engine's event thread.
type Translator struct {
	ctx  context.Context
	next Dispatcher
}

// NewTranslator creates a translator feeding d. ctx bounds every dispatch
// and is normally the session's context.
func NewTranslator(ctx context.Context, d Dispatcher) *Translator {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Translator{ctx: ctx, next: d}
}

func (t *Translator) dispatch(ev Event) Verdict {
	if err := t.ctx.Err(); err != nil {
		return Refuse("session ended")
	}
	return t.next.Dispatch(t.ctx, ev)
}

// OnBeforeBrowse is called before a frame navigates. It returns whether to
// cancel and any extra request headers to attach.
func (t *Translator) OnBeforeBrowse(frameID string, isMainFrame bool, url string, transition Transition, userGesture bool) (cancel bool, headers http.Header) {
	v := t.dispatch(NavigationRequested{
		FrameID:     frameID,
		URL:         url,
		Origin:      originOf(transition, userGesture),
		IsMainFrame: isMainFrame,
		UserGesture: userGesture,
	})
	if !v.Allowed() {
		return true, nil
	}
	return false, v.Headers
}

func originOf(transition Transition, userGesture bool) Origin {
	switch {
	case transition.Is(TransitionForwardBackFlag):
		return OriginBackForward
	case transition.Is(TransitionServerRedirectFlag), transition.Is(TransitionClientRedirectFlag):
		return OriginRedirect
	}

	switch transition.Source() {
	case TransitionExplicit:
		return OriginAddressBar
	case TransitionReload:
		return OriginReload
	case TransitionLink, TransitionManualSubframe, TransitionFormSubmit:
		if userGesture {
			return OriginLinkClick
		}
		return OriginScript
	default:
		return OriginScript
	}
}

// OnOpenURLFromTab is called when a page asks for a new window. When
// sameWindowURL is not empty the content should be loaded into the current
// window instead.
func (t *Translator) OnOpenURLFromTab(url string, userGesture bool) (cancel bool, sameWindowURL string) {
	v := t.dispatch(NavigationRequested{
		FrameID:     MainFrame,
		URL:         url,
		Origin:      OriginPopup,
		IsMainFrame: true,
		UserGesture: userGesture,
	})
	switch {
	case v.Action == Rewrite && v.SameWindow:
		return true, v.URL
	case v.Allowed():
		return false, ""
	default:
		return true, ""
	}
}

// OnLoadEnd is called when a frame finished loading
func (t *Translator) OnLoadEnd(frameID string, isMainFrame bool, url string, statusCode int) {
	t.dispatch(NavigationCompleted{FrameID: frameID, URL: url, IsMainFrame: isMainFrame, StatusCode: statusCode})
}

// OnLoadError is called when a load failed
func (t *Translator) OnLoadError(isMainFrame bool, code int, message, failedURL string) {
	t.dispatch(LoadFailed{Code: code, Message: message, URL: failedURL, IsMainFrame: isMainFrame})
}

// OnContextCreated is called when a frame's script context is ready
func (t *Translator) OnContextCreated(frameID string, isMainFrame bool, url string) {
	t.dispatch(ContextCreated{FrameID: frameID, URL: url, IsMainFrame: isMainFrame})
}

// OnContextReleased is called when a frame's script context is destroyed
func (t *Translator) OnContextReleased(frameID string, isMainFrame bool) {
	t.dispatch(ContextReleased{FrameID: frameID, IsMainFrame: isMainFrame})
}

// OnBeforeDownload is called before a download starts. It returns whether
// to cancel and the path to save to.
func (t *Translator) OnBeforeDownload(url, suggestedName, mimeType, targetPath string) (cancel bool, path string) {
	v := t.dispatch(DownloadRequested{
		URL:           url,
		SuggestedName: suggestedName,
		MimeType:      strings.ToLower(mimeType),
		TargetPath:    targetPath,
	})
	if !v.Allowed() {
		return true, ""
	}
	if v.Path != "" {
		return false, v.Path
	}
	return false, targetPath
}

// OnFileDialog is called when a page opens a file chooser
func (t *Translator) OnFileDialog(mode FileDialogMode, defaultPath string, accept []string) (cancel bool) {
	v := t.dispatch(FileDialogRequested{Mode: mode, DefaultPath: defaultPath, Accept: accept})
	return !v.Allowed()
}

// OnFileDialogResult is called with the paths the user picked. cancel means
// none of them may be handed to the page.
func (t *Translator) OnFileDialogResult(mode FileDialogMode, paths []string) (cancel bool) {
	v := t.dispatch(FilesSelected{Mode: mode, Paths: append([]string(nil), paths...)})
	return !v.Allowed()
}

// OnPreKeyEvent is called for key downs. handled means the page must not
// receive the key.
func (t *Translator) OnPreKeyEvent(key string, mods Modifiers) (handled bool) {
	v := t.dispatch(KeyPressed{Key: key, Modifiers: mods})
	return !v.Allowed()
}

// OnProcessMessageReceived is called for bridge messages posted by pages
func (t *Translator) OnProcessMessageReceived(frameID string, payload []byte) {
	t.dispatch(ScriptMessageReceived{FrameID: frameID, Payload: payload})
}

// OnUncaughtException is called for unhandled script exceptions
func (t *Translator) OnUncaughtException(frameID, message, source string, line int) {
	t.dispatch(UncaughtScriptError{FrameID: frameID, Message: message, Source: source, Line: line})
}

// OnTitleChange is called when the document title changes
func (t *Translator) OnTitleChange(title string) {
	t.dispatch(TitleChanged{Title: title})
}

// OnLoadingStateChange is called when loading starts or stops
func (t *Translator) OnLoadingStateChange(isLoading, canGoBack, canGoForward bool) {
	t.dispatch(LoadingStateChanged{IsLoading: isLoading, CanGoBack: canGoBack, CanGoForward: canGoForward})
}
