// Package policy turns exam settings into an immutable capability matrix.
//
// A Matrix holds two layers of entries: a global layer and one layer per
// window class. A capability is granted to a window only when both layers
// grant it (deny-overrides). An entry that is missing or holds an undefined
// Permission value is read as Deny.
package policy

import (
	"maps"

	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

type layer map[Capability]Permission

// Matrix is the capability-to-permission mapping of one session. It is never
// mutated after construction.
type Matrix struct {
	global  layer
	windows map[WindowClass]layer

	urls      *URLFilter
	downloads *PathFilter
	uploads   *PathFilter

	clipboard settings.ClipboardPolicy
	popups    settings.PopupPolicy
}

// Option configures the non-capability parts of a Matrix
type Option func(*Matrix)

// WithURLFilter sets the navigation URL filter
func WithURLFilter(f *URLFilter) Option {
	return func(m *Matrix) { m.urls = f }
}

// WithDownloadFilter sets the download path allow-list
func WithDownloadFilter(f *PathFilter) Option {
	return func(m *Matrix) { m.downloads = f }
}

// WithUploadFilter sets the upload path allow-list
func WithUploadFilter(f *PathFilter) Option {
	return func(m *Matrix) { m.uploads = f }
}

// WithClipboardPolicy sets the clipboard mode
func WithClipboardPolicy(p settings.ClipboardPolicy) Option {
	return func(m *Matrix) { m.clipboard = p }
}

// WithPopupPolicy sets the popup mode
func WithPopupPolicy(p settings.PopupPolicy) Option {
	return func(m *Matrix) { m.popups = p }
}

// NewMatrix builds a matrix from explicit layers. The maps are copied.
func NewMatrix(global map[Capability]Permission, windows map[WindowClass]map[Capability]Permission, opts ...Option) *Matrix {
	m := &Matrix{
		global:    maps.Clone(global),
		windows:   make(map[WindowClass]layer, len(windows)),
		urls:      NewURLFilter(false, nil),
		downloads: NewPathFilter(nil),
		uploads:   NewPathFilter(nil),
		clipboard: settings.ClipboardBlock,
		popups:    settings.PopupBlock,
	}
	if m.global == nil {
		m.global = layer{}
	}
	for class, entries := range windows {
		m.windows[class] = maps.Clone(entries)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromEntries builds a matrix from loosely typed entries, as found in a
// settings dump. Unknown capability names are ignored; unparsable values
// become Deny.
func FromEntries(global map[string]string, windows map[string]map[string]string, opts ...Option) *Matrix {
	g := make(map[Capability]Permission, len(global))
	for name, value := range global {
		if c := Capability(name); c.Known() {
			g[c] = ParsePermission(value)
		}
	}

	w := make(map[WindowClass]map[Capability]Permission, len(windows))
	for className, entries := range windows {
		class, err := ParseWindowClass(className)
		if err != nil {
			continue
		}
		l := make(map[Capability]Permission, len(entries))
		for name, value := range entries {
			if c := Capability(name); c.Known() {
				l[c] = ParsePermission(value)
			}
		}
		w[class] = l
	}

	return NewMatrix(g, w, opts...)
}

// FromConfiguration derives the session matrix from a configuration snapshot
func FromConfiguration(cfg *settings.Configuration) *Matrix {
	s := cfg.Settings()

	global := map[Capability]Permission{
		Print:                 FromBool(s.AllowPrint),
		Find:                  FromBool(s.AllowFind),
		Zoom:                  FromBool(s.AllowPageZoom),
		Download:              FromBool(s.AllowDownloads),
		Upload:                FromBool(s.AllowUploads),
		ConfigurationDownload: FromBool(s.AllowConfigurationDownloads),
		Clipboard:             FromBool(s.ClipboardPolicy != settings.ClipboardBlock),

		// Navigation and tooling flags exist only per window class.
		BackNavigation:    Allow,
		ForwardNavigation: Allow,
		DeveloperTools:    Allow,
		AddressBar:        Allow,
		Reload:            Allow,
	}

	windows := map[WindowClass]map[Capability]Permission{
		MainWindow:      windowLayer(s.MainWindow),
		AuxiliaryWindow: windowLayer(s.AdditionalWindow),
	}

	return NewMatrix(global, windows,
		WithURLFilter(NewURLFilterFromSettings(s.URLFilter, s.StartURL)),
		WithDownloadFilter(NewPathFilter(s.DownloadAllowList)),
		WithUploadFilter(NewPathFilter(s.UploadAllowList)),
		WithClipboardPolicy(s.ClipboardPolicy),
		WithPopupPolicy(s.PopupPolicy),
	)
}

func windowLayer(w settings.WindowSettings) map[Capability]Permission {
	return map[Capability]Permission{
		BackNavigation:    FromBool(w.AllowBackwardNavigation),
		ForwardNavigation: FromBool(w.AllowForwardNavigation),
		DeveloperTools:    FromBool(w.AllowDeveloperConsole),
		AddressBar:        FromBool(w.AllowAddressBar),
		Reload:            FromBool(w.AllowReloading),

		Print: override(w.AllowPrint),
		Find:  override(w.AllowFind),
		Zoom:  override(w.AllowPageZoom),

		Download:              Allow,
		Upload:                Allow,
		ConfigurationDownload: Allow,
		Clipboard:             Allow,
	}
}

// override maps an optional window flag; absent means no narrowing.
func override(b *bool) Permission {
	if b == nil {
		return Allow
	}
	return FromBool(*b)
}

// Permission returns the effective permission of c for a window class.
// The result is always Allow or Deny.
func (m *Matrix) Permission(class WindowClass, c Capability) Permission {
	if !c.Known() {
		return Deny
	}
	if !grants(m.global[c], class) {
		return Deny
	}
	l, ok := m.windows[class]
	if !ok {
		return Deny
	}
	entry, ok := l[c]
	if !ok || !grants(entry, class) {
		return Deny
	}
	return Allow
}

func grants(p Permission, class WindowClass) bool {
	switch p {
	case Allow:
		return true
	case MainWindowOnly:
		return class == MainWindow
	default:
		return false
	}
}

// View returns the read-only view of the matrix for one window class
func (m *Matrix) View(class WindowClass) View {
	return View{matrix: m, class: class}
}

// URLFilter returns the navigation URL filter
func (m *Matrix) URLFilter() *URLFilter { return m.urls }

// Downloads returns the download path allow-list
func (m *Matrix) Downloads() *PathFilter { return m.downloads }

// Uploads returns the upload path allow-list
func (m *Matrix) Uploads() *PathFilter { return m.uploads }

// ClipboardPolicy returns the clipboard mode
func (m *Matrix) ClipboardPolicy() settings.ClipboardPolicy { return m.clipboard }

// PopupPolicy returns the popup mode
func (m *Matrix) PopupPolicy() settings.PopupPolicy { return m.popups }

// Snapshot returns the effective permissions per window class, keyed by
// name, for diagnostics output.
func (m *Matrix) Snapshot() map[string]map[string]string {
	out := make(map[string]map[string]string, 2)
	for _, class := range []WindowClass{MainWindow, AuxiliaryWindow} {
		entries := make(map[string]string, len(allCapabilities))
		for _, c := range allCapabilities {
			entries[string(c)] = m.Permission(class, c).String()
		}
		out[class.String()] = entries
	}
	return out
}

// View is one window class's effective permissions
type View struct {
	matrix *Matrix
	class  WindowClass
}

// Class returns the window class of the view
func (v View) Class() WindowClass { return v.class }

// Allows reports whether the capability is granted. A zero View allows nothing.
func (v View) Allows(c Capability) bool {
	if v.matrix == nil {
		return false
	}
	return v.matrix.Permission(v.class, c) == Allow
}

// Matrix returns the matrix backing the view
func (v View) Matrix() *Matrix { return v.matrix }
