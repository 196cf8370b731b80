// Package settings holds the exam configuration consumed by the policy layer.
//
// Settings is the plain, already-parsed settings object handed over by the
// configuration loader. Configuration is the immutable snapshot built from it
// once per session: it is validated, deep-copied, and never changed afterwards.
// Reconfiguration means building a new Configuration.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ClipboardPolicy controls how copy and paste interact with the platform clipboard.
type ClipboardPolicy string

const (
	ClipboardAllow    ClipboardPolicy = "allow"
	ClipboardBlock    ClipboardPolicy = "block"
	ClipboardIsolated ClipboardPolicy = "isolated"
)

// PopupPolicy controls requests to open content in a new window.
type PopupPolicy string

const (
	PopupAllow                  PopupPolicy = "allow"
	PopupAllowSameHost          PopupPolicy = "allow_same_host"
	PopupAllowSameHostAndWindow PopupPolicy = "allow_same_host_and_window"
	PopupBlock                  PopupPolicy = "block"
)

// FilterResult is the outcome of a URL filter rule.
type FilterResult string

const (
	FilterAllow FilterResult = "allow"
	FilterBlock FilterResult = "block"
)

// FilterRule matches URLs by host+path glob, e.g. "*.example.org/exam/**".
type FilterRule struct {
	Pattern string
	Result  FilterResult
}

// URLFilterSettings restricts which URLs may be loaded at all.
// When enabled, URLs not matched by any rule are blocked.
type URLFilterSettings struct {
	Enabled bool
	Rules   []FilterRule
}

// WindowSettings are the per-window-class permissions.
// The optional pointers narrow a global flag for one window class; they can
// only restrict, never widen, what the global flag allows.
type WindowSettings struct {
	AllowAddressBar         bool
	AllowBackwardNavigation bool
	AllowForwardNavigation  bool
	AllowDeveloperConsole   bool
	AllowReloading          bool

	AllowPrint    *bool
	AllowFind     *bool
	AllowPageZoom *bool
}

// Settings is the read-only settings object supplied by the host.
type Settings struct {
	ConfigurationKey   string
	BrowserExamKeySalt string

	StartURL            string
	ProgramBuildVersion string

	AllowPrint                  bool
	AllowFind                   bool
	AllowPageZoom               bool
	AllowDownloads              bool
	AllowUploads                bool
	AllowConfigurationDownloads bool

	DownloadDirectory string
	DownloadAllowList []string
	UploadAllowList   []string

	ClipboardPolicy ClipboardPolicy
	PopupPolicy     PopupPolicy

	MainWindow       WindowSettings
	AdditionalWindow WindowSettings

	URLFilter URLFilterSettings

	SendBrowserExamKey   bool
	SendConfigurationKey bool

	PrintNotAllowedNotice string
}

var (
	ErrMissingSecret = errors.New("settings: configuration key is required")
	ErrMissingSalt   = errors.New("settings: browser exam key salt is required")
)

// Defaults returns the browser defaults of a fresh installation.
// The secret and salt are left empty and must be supplied by the caller.
func Defaults() Settings {
	return Settings{
		StartURL:                    "https://www.safeexambrowser.org/start",
		AllowPrint:                  true,
		AllowFind:                   true,
		AllowPageZoom:               true,
		AllowDownloads:              true,
		AllowUploads:                true,
		AllowConfigurationDownloads: true,
		ClipboardPolicy:             ClipboardIsolated,
		PopupPolicy:                 PopupAllow,
		MainWindow: WindowSettings{
			AllowAddressBar:         true,
			AllowBackwardNavigation: true,
			AllowForwardNavigation:  true,
			AllowDeveloperConsole:   true,
			AllowReloading:          true,
		},
		AdditionalWindow: WindowSettings{
			AllowAddressBar:         true,
			AllowBackwardNavigation: true,
			AllowForwardNavigation:  true,
			AllowDeveloperConsole:   true,
			AllowReloading:          true,
		},
		PrintNotAllowedNotice: "Printing is not allowed during this exam.",
	}
}

// Validate checks the settings for values the policy layer cannot interpret.
// Unknown enum values are reported here; the policy layer would otherwise
// treat them as deny.
func (s Settings) Validate() error {
	var errs []error

	if s.ConfigurationKey == "" {
		errs = append(errs, ErrMissingSecret)
	}
	if s.BrowserExamKeySalt == "" {
		errs = append(errs, ErrMissingSalt)
	}

	switch s.ClipboardPolicy {
	case ClipboardAllow, ClipboardBlock, ClipboardIsolated:
	default:
		errs = append(errs, fmt.Errorf("settings: unknown clipboard policy %q", s.ClipboardPolicy))
	}

	switch s.PopupPolicy {
	case PopupAllow, PopupAllowSameHost, PopupAllowSameHostAndWindow, PopupBlock:
	default:
		errs = append(errs, fmt.Errorf("settings: unknown popup policy %q", s.PopupPolicy))
	}

	for i, rule := range s.URLFilter.Rules {
		if strings.TrimSpace(rule.Pattern) == "" {
			errs = append(errs, fmt.Errorf("settings: url filter rule %d has an empty pattern", i))
		}
		if rule.Result != FilterAllow && rule.Result != FilterBlock {
			errs = append(errs, fmt.Errorf("settings: url filter rule %d has unknown result %q", i, rule.Result))
		}
	}

	if s.StartURL != "" {
		if u, err := url.Parse(s.StartURL); err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Errorf("settings: invalid start url %q", s.StartURL))
		}
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	c := s
	c.DownloadAllowList = slices.Clone(s.DownloadAllowList)
	c.UploadAllowList = slices.Clone(s.UploadAllowList)
	c.URLFilter.Rules = slices.Clone(s.URLFilter.Rules)
	c.MainWindow = s.MainWindow.clone()
	c.AdditionalWindow = s.AdditionalWindow.clone()
	return c
}

func (w WindowSettings) clone() WindowSettings {
	c := w
	c.AllowPrint = cloneBool(w.AllowPrint)
	c.AllowFind = cloneBool(w.AllowFind)
	c.AllowPageZoom = cloneBool(w.AllowPageZoom)
	return c
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Bool returns a pointer to b, for the optional window overrides.
func Bool(b bool) *bool {
	return &b
}
