package engine

import "net/http"

// Kind identifies an event variant
type Kind string

const (
	KindNavigationRequested   Kind = "navigation_requested"
	KindNavigationCompleted   Kind = "navigation_completed"
	KindContextCreated        Kind = "context_created"
	KindContextReleased       Kind = "context_released"
	KindDownloadRequested     Kind = "download_requested"
	KindFileDialogRequested   Kind = "file_dialog_requested"
	KindFilesSelected         Kind = "files_selected"
	KindKeyPressed            Kind = "key_pressed"
	KindScriptMessageReceived Kind = "script_message_received"
	KindUncaughtScriptError   Kind = "uncaught_script_error"
	KindTitleChanged          Kind = "title_changed"
	KindLoadingStateChanged   Kind = "loading_state_changed"
	KindLoadFailed            Kind = "load_failed"
)

// Event is the closed set of engine events. Only types in this package
// implement it.
type Event interface {
	Kind() Kind
	event()
}

// Origin is what started a navigation
type Origin int

const (
	OriginLinkClick Origin = iota
	OriginAddressBar
	OriginScript
	OriginRedirect
	OriginBackForward
	OriginReload
	OriginPopup
	OriginHost
)

func (o Origin) String() string {
	switch o {
	case OriginLinkClick:
		return "link"
	case OriginAddressBar:
		return "address_bar"
	case OriginScript:
		return "script"
	case OriginRedirect:
		return "redirect"
	case OriginBackForward:
		return "back_forward"
	case OriginReload:
		return "reload"
	case OriginPopup:
		return "popup"
	case OriginHost:
		return "host"
	default:
		return "unknown"
	}
}

// NavigationRequested is raised before any load starts
type NavigationRequested struct {
	FrameID     string
	URL         string
	Origin      Origin
	IsMainFrame bool
	UserGesture bool
}

// NavigationCompleted is raised when a frame finished loading
type NavigationCompleted struct {
	FrameID     string
	URL         string
	IsMainFrame bool
	StatusCode  int
}

// ContextCreated is raised when a frame obtains a fresh script context
type ContextCreated struct {
	FrameID     string
	URL         string
	IsMainFrame bool
}

// ContextReleased is raised when a frame's script context goes away
type ContextReleased struct {
	FrameID     string
	IsMainFrame bool
}

// DownloadRequested is raised before a download writes anything
type DownloadRequested struct {
	URL           string
	SuggestedName string
	MimeType      string
	TargetPath    string
}

// FileDialogMode is the kind of file chooser a page opened
type FileDialogMode int

const (
	FileDialogOpen FileDialogMode = iota
	FileDialogOpenMultiple
	FileDialogOpenFolder
	FileDialogSave
)

// FileDialogRequested is raised when a page asks for a file chooser
type FileDialogRequested struct {
	Mode        FileDialogMode
	DefaultPath string
	Accept      []string
}

// FilesSelected is raised when the user confirms a file chooser, before the
// engine hands the paths to the page
type FilesSelected struct {
	Mode  FileDialogMode
	Paths []string
}

// Modifiers are the keyboard modifiers held during a key press
type Modifiers struct {
	Ctrl  bool
	Shift bool
	Alt   bool
}

// KeyPressed is raised for every key down before the page sees it.
// Key is the key name, e.g. "P", "F12", "Left", "Plus", "0".
type KeyPressed struct {
	Key       string
	Modifiers Modifiers
}

// ScriptMessageReceived carries a raw bridge message posted by a page
type ScriptMessageReceived struct {
	FrameID string
	Payload []byte
}

// UncaughtScriptError reports an exception no page handler caught
type UncaughtScriptError struct {
	FrameID string
	Message string
	Source  string
	Line    int
}

// TitleChanged reports a new document title
type TitleChanged struct {
	Title string
}

// LoadingStateChanged reports the loading indicator and history availability
type LoadingStateChanged struct {
	IsLoading    bool
	CanGoBack    bool
	CanGoForward bool
}

// LoadFailed reports a failed load
type LoadFailed struct {
	Code        int
	Message     string
	URL         string
	IsMainFrame bool
}

func (NavigationRequested) Kind() Kind   { return KindNavigationRequested }
func (NavigationCompleted) Kind() Kind   { return KindNavigationCompleted }
func (ContextCreated) Kind() Kind        { return KindContextCreated }
func (ContextReleased) Kind() Kind       { return KindContextReleased }
func (DownloadRequested) Kind() Kind     { return KindDownloadRequested }
func (FileDialogRequested) Kind() Kind   { return KindFileDialogRequested }
func (FilesSelected) Kind() Kind         { return KindFilesSelected }
func (KeyPressed) Kind() Kind            { return KindKeyPressed }
func (ScriptMessageReceived) Kind() Kind { return KindScriptMessageReceived }
func (UncaughtScriptError) Kind() Kind   { return KindUncaughtScriptError }
func (TitleChanged) Kind() Kind          { return KindTitleChanged }
func (LoadingStateChanged) Kind() Kind   { return KindLoadingStateChanged }
func (LoadFailed) Kind() Kind            { return KindLoadFailed }

func (NavigationRequested) event()   {}
func (NavigationCompleted) event()   {}
func (ContextCreated) event()        {}
func (ContextReleased) event()       {}
func (DownloadRequested) event()     {}
func (FileDialogRequested) event()   {}
func (FilesSelected) event()         {}
func (KeyPressed) event()            {}
func (ScriptMessageReceived) event() {}
func (UncaughtScriptError) event()   {}
func (TitleChanged) event()          {}
func (LoadingStateChanged) event()   {}
func (LoadFailed) event()            {}

// Action is the decision taken on an event
type Action int

const (
	Allow Action = iota
	Deny
	Rewrite
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Rewrite:
		return "rewrite"
	default:
		return "unknown"
	}
}

// Verdict is the dispatcher's answer to an event.
// For Rewrite, URL and SameWindow describe the replacement; Headers are
// extra request headers for an allowed navigation; Path is the approved
// download target.
type Verdict struct {
	Action     Action
	Reason     string
	URL        string
	SameWindow bool
	Headers    http.Header
	Path       string
}

// Allowed reports whether the engine may proceed, possibly rewritten
func (v Verdict) Allowed() bool {
	return v.Action == Allow || v.Action == Rewrite
}

// Permit is an allow verdict
func Permit() Verdict { return Verdict{Action: Allow} }

// Refuse is a deny verdict with a reason
func Refuse(reason string) Verdict { return Verdict{Action: Deny, Reason: reason} }
