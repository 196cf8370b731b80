package policy

import (
	"fmt"
	"strings"
)

// Capability names one gated browser action
type Capability string

const (
	Print                 Capability = "print"
	Find                  Capability = "find"
	Zoom                  Capability = "zoom"
	BackNavigation        Capability = "back-navigation"
	ForwardNavigation     Capability = "forward-navigation"
	Download              Capability = "download"
	Upload                Capability = "upload"
	DeveloperTools        Capability = "developer-tools"
	Clipboard             Capability = "clipboard"
	AddressBar            Capability = "address-bar"
	Reload                Capability = "reload"
	ConfigurationDownload Capability = "configuration-download"
)

var allCapabilities = []Capability{
	Print,
	Find,
	Zoom,
	BackNavigation,
	ForwardNavigation,
	Download,
	Upload,
	DeveloperTools,
	Clipboard,
	AddressBar,
	Reload,
	ConfigurationDownload,
}

// Capabilities returns every known capability in a stable order
func Capabilities() []Capability {
	out := make([]Capability, len(allCapabilities))
	copy(out, allCapabilities)
	return out
}

// Known reports whether c is a recognized capability
func (c Capability) Known() bool {
	for _, k := range allCapabilities {
		if k == c {
			return true
		}
	}
	return false
}

// Permission is the value a matrix entry holds.
// The zero value is Deny so that an unset entry never grants anything.
type Permission int

const (
	Deny Permission = iota
	Allow
	MainWindowOnly
)

func (p Permission) String() string {
	switch p {
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	case MainWindowOnly:
		return "main-window-only"
	default:
		return fmt.Sprintf("invalid(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined permissions
func (p Permission) Valid() bool {
	return p == Deny || p == Allow || p == MainWindowOnly
}

// ParsePermission parses a permission name. Anything unrecognized is Deny.
func ParsePermission(s string) Permission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "enabled", "true":
		return Allow
	case "main-window-only", "main_window_only", "main":
		return MainWindowOnly
	default:
		return Deny
	}
}

// FromBool maps a settings flag to a permission
func FromBool(allowed bool) Permission {
	if allowed {
		return Allow
	}
	return Deny
}

// WindowClass distinguishes the main exam window from auxiliary popups
type WindowClass int

const (
	MainWindow WindowClass = iota
	AuxiliaryWindow
)

func (w WindowClass) String() string {
	switch w {
	case MainWindow:
		return "main"
	case AuxiliaryWindow:
		return "auxiliary"
	default:
		return "unknown"
	}
}

// ParseWindowClass parses "main" or "auxiliary"
func ParseWindowClass(s string) (WindowClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "main":
		return MainWindow, nil
	case "auxiliary", "additional":
		return AuxiliaryWindow, nil
	default:
		return 0, fmt.Errorf("unknown window class %q", s)
	}
}
