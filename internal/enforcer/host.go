package enforcer

import (
	"time"

	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
)

// ViolationKind names the kind of denied action
type ViolationKind string

const (
	ViolationAddressBar            = ViolationKind(policy.AddressBar)
	ViolationBackNavigation        = ViolationKind(policy.BackNavigation)
	ViolationForwardNavigation     = ViolationKind(policy.ForwardNavigation)
	ViolationReload                = ViolationKind(policy.Reload)
	ViolationPrint                 = ViolationKind(policy.Print)
	ViolationFind                  = ViolationKind(policy.Find)
	ViolationZoom                  = ViolationKind(policy.Zoom)
	ViolationDeveloperTools        = ViolationKind(policy.DeveloperTools)
	ViolationDownload              = ViolationKind(policy.Download)
	ViolationConfigurationDownload = ViolationKind(policy.ConfigurationDownload)
	ViolationUpload                = ViolationKind(policy.Upload)
	ViolationClipboard             = ViolationKind(policy.Clipboard)

	ViolationURLFilter  ViolationKind = "url-filter"
	ViolationPopup      ViolationKind = "popup"
	ViolationInvalidURL ViolationKind = "invalid-url"
	ViolationHistory    ViolationKind = "history"
)

// Violation describes one denied action. It is an event for the host, not
// an error.
type Violation struct {
	WindowID string        `json:"window_id"`
	Class    string        `json:"class"`
	Kind     ViolationKind `json:"kind"`
	Detail   string        `json:"detail"`
	URL      string        `json:"url,omitempty"`
	At       time.Time     `json:"at"`
}

// Host receives the events the window manager and navigation bar act on.
// Calls arrive on the engine's event thread and must not block.
type Host interface {
	AddressChanged(windowID, url string)
	TitleChanged(windowID, title string)
	LoadFailed(windowID string, code int, message string, isMainFrame bool, url string)
	LoadingStateChanged(windowID string, isLoading bool)
	PolicyViolation(v Violation)
}

// HostFuncs adapts plain functions to Host. Nil fields are ignored.
type HostFuncs struct {
	OnAddressChanged      func(windowID, url string)
	OnTitleChanged        func(windowID, title string)
	OnLoadFailed          func(windowID string, code int, message string, isMainFrame bool, url string)
	OnLoadingStateChanged func(windowID string, isLoading bool)
	OnPolicyViolation     func(v Violation)
}

func (h HostFuncs) AddressChanged(windowID, url string) {
	if h.OnAddressChanged != nil {
		h.OnAddressChanged(windowID, url)
	}
}

func (h HostFuncs) TitleChanged(windowID, title string) {
	if h.OnTitleChanged != nil {
		h.OnTitleChanged(windowID, title)
	}
}

func (h HostFuncs) LoadFailed(windowID string, code int, message string, isMainFrame bool, url string) {
	if h.OnLoadFailed != nil {
		h.OnLoadFailed(windowID, code, message, isMainFrame, url)
	}
}

func (h HostFuncs) LoadingStateChanged(windowID string, isLoading bool) {
	if h.OnLoadingStateChanged != nil {
		h.OnLoadingStateChanged(windowID, isLoading)
	}
}

func (h HostFuncs) PolicyViolation(v Violation) {
	if h.OnPolicyViolation != nil {
		h.OnPolicyViolation(v)
	}
}

// Hosts fans every event out to several hosts in order
type Hosts []Host

func (hs Hosts) AddressChanged(windowID, url string) {
	for _, h := range hs {
		h.AddressChanged(windowID, url)
	}
}

func (hs Hosts) TitleChanged(windowID, title string) {
	for _, h := range hs {
		h.TitleChanged(windowID, title)
	}
}

func (hs Hosts) LoadFailed(windowID string, code int, message string, isMainFrame bool, url string) {
	for _, h := range hs {
		h.LoadFailed(windowID, code, message, isMainFrame, url)
	}
}

func (hs Hosts) LoadingStateChanged(windowID string, isLoading bool) {
	for _, h := range hs {
		h.LoadingStateChanged(windowID, isLoading)
	}
}

func (hs Hosts) PolicyViolation(v Violation) {
	for _, h := range hs {
		h.PolicyViolation(v)
	}
}
