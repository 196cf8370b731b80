package settings

import "fmt"

// Configuration is the immutable per-session snapshot of Settings.
type Configuration struct {
	s Settings
}

// New validates s and returns a snapshot that shares no memory with it.
func New(s Settings) (*Configuration, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Configuration{s: s.Clone()}, nil
}

// Settings returns a copy of the snapshot's settings.
func (c *Configuration) Settings() Settings {
	return c.s.Clone()
}

// Secret returns the configuration key used for integrity derivation.
// It must never leave the host process.
func (c *Configuration) Secret() []byte {
	return []byte(c.s.ConfigurationKey)
}

// Salt returns the browser exam key salt.
func (c *Configuration) Salt() []byte {
	return []byte(c.s.BrowserExamKeySalt)
}

// StartURL returns the exam start page.
func (c *Configuration) StartURL() string { return c.s.StartURL }

// BuildVersion returns the program build version exposed to pages.
func (c *Configuration) BuildVersion() string { return c.s.ProgramBuildVersion }

// ClipboardPolicy returns the clipboard mode.
func (c *Configuration) ClipboardPolicy() ClipboardPolicy { return c.s.ClipboardPolicy }

// PopupPolicy returns the popup mode.
func (c *Configuration) PopupPolicy() PopupPolicy { return c.s.PopupPolicy }

// SendBrowserExamKey reports whether requests carry the exam key hash header.
func (c *Configuration) SendBrowserExamKey() bool { return c.s.SendBrowserExamKey }

// SendConfigurationKey reports whether requests carry the config key hash header.
func (c *Configuration) SendConfigurationKey() bool { return c.s.SendConfigurationKey }

// PrintNotAllowedNotice returns the text shown when a page tries to print.
func (c *Configuration) PrintNotAllowedNotice() string { return c.s.PrintNotAllowedNotice }

// DownloadDirectory returns the directory downloads are written to.
func (c *Configuration) DownloadDirectory() string { return c.s.DownloadDirectory }
