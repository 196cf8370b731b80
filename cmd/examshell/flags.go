package main

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

// settingsFlags binds exam settings to command line flags
type settingsFlags struct {
	s         settings.Settings
	clipboard string
	popups    string
	allowURLs []string
	blockURLs []string

	auxDevTools bool
	auxBack     bool
	auxForward  bool
	auxReload   bool
	auxAddress  bool
}

func newSettingsFlags(fs *pflag.FlagSet) *settingsFlags {
	f := &settingsFlags{s: settings.Defaults()}
	d := f.s

	fs.StringVar(&f.s.ConfigurationKey, "secret", "", "configuration key (secret)")
	fs.StringVar(&f.s.BrowserExamKeySalt, "salt", "", "browser exam key salt")
	fs.StringVar(&f.s.StartURL, "start-url", d.StartURL, "URL loaded when the session starts")
	fs.StringVar(&f.s.ProgramBuildVersion, "build-version", "dev", "program build version reported to pages")

	fs.BoolVar(&f.s.AllowPrint, "allow-print", d.AllowPrint, "allow printing")
	fs.BoolVar(&f.s.AllowFind, "allow-find", d.AllowFind, "allow find in page")
	fs.BoolVar(&f.s.AllowPageZoom, "allow-zoom", d.AllowPageZoom, "allow page zoom")
	fs.BoolVar(&f.s.AllowDownloads, "allow-downloads", d.AllowDownloads, "allow downloads")
	fs.BoolVar(&f.s.AllowUploads, "allow-uploads", d.AllowUploads, "allow uploads")
	fs.BoolVar(&f.s.AllowConfigurationDownloads, "allow-config-downloads", d.AllowConfigurationDownloads, "allow downloading configuration files")
	fs.StringVar(&f.s.DownloadDirectory, "download-dir", "", "directory downloads are saved to")
	fs.StringSliceVar(&f.s.DownloadAllowList, "download-allow", nil, "glob of permitted download paths (repeatable)")
	fs.StringSliceVar(&f.s.UploadAllowList, "upload-allow", nil, "glob of permitted upload paths (repeatable)")

	fs.StringVar(&f.clipboard, "clipboard", string(d.ClipboardPolicy), "clipboard policy (allow|block|isolated)")
	fs.StringVar(&f.popups, "popups", string(d.PopupPolicy), "popup policy (allow|allow_same_host|allow_same_host_and_window|block)")

	fs.BoolVar(&f.s.MainWindow.AllowAddressBar, "main-address-bar", d.MainWindow.AllowAddressBar, "main window: allow the address bar")
	fs.BoolVar(&f.s.MainWindow.AllowBackwardNavigation, "main-back", d.MainWindow.AllowBackwardNavigation, "main window: allow backward navigation")
	fs.BoolVar(&f.s.MainWindow.AllowForwardNavigation, "main-forward", d.MainWindow.AllowForwardNavigation, "main window: allow forward navigation")
	fs.BoolVar(&f.s.MainWindow.AllowDeveloperConsole, "main-devtools", d.MainWindow.AllowDeveloperConsole, "main window: allow developer tools")
	fs.BoolVar(&f.s.MainWindow.AllowReloading, "main-reload", d.MainWindow.AllowReloading, "main window: allow reloading")

	fs.BoolVar(&f.auxAddress, "aux-address-bar", d.AdditionalWindow.AllowAddressBar, "additional windows: allow the address bar")
	fs.BoolVar(&f.auxBack, "aux-back", d.AdditionalWindow.AllowBackwardNavigation, "additional windows: allow backward navigation")
	fs.BoolVar(&f.auxForward, "aux-forward", d.AdditionalWindow.AllowForwardNavigation, "additional windows: allow forward navigation")
	fs.BoolVar(&f.auxDevTools, "aux-devtools", d.AdditionalWindow.AllowDeveloperConsole, "additional windows: allow developer tools")
	fs.BoolVar(&f.auxReload, "aux-reload", d.AdditionalWindow.AllowReloading, "additional windows: allow reloading")

	fs.StringArrayVar(&f.allowURLs, "url-allow", nil, "URL filter allow rule, host+path glob (repeatable, enables the filter)")
	fs.StringArrayVar(&f.blockURLs, "url-block", nil, "URL filter block rule, host+path glob (repeatable, enables the filter)")

	fs.BoolVar(&f.s.SendBrowserExamKey, "send-bek", false, "send the browser exam key request header")
	fs.BoolVar(&f.s.SendConfigurationKey, "send-ck", false, "send the configuration key request header")
	fs.StringVar(&f.s.PrintNotAllowedNotice, "print-notice", d.PrintNotAllowedNotice, "notice shown when printing is blocked")

	return f
}

// settings returns the settings the flags describe. Block rules are
// evaluated before allow rules.
func (f *settingsFlags) settings() settings.Settings {
	s := f.s.Clone()
	s.ClipboardPolicy = settings.ClipboardPolicy(strings.ToLower(f.clipboard))
	s.PopupPolicy = settings.PopupPolicy(strings.ToLower(f.popups))
	s.AdditionalWindow.AllowAddressBar = f.auxAddress
	s.AdditionalWindow.AllowBackwardNavigation = f.auxBack
	s.AdditionalWindow.AllowForwardNavigation = f.auxForward
	s.AdditionalWindow.AllowDeveloperConsole = f.auxDevTools
	s.AdditionalWindow.AllowReloading = f.auxReload

	if len(f.allowURLs)+len(f.blockURLs) > 0 {
		s.URLFilter.Enabled = true
		for _, p := range f.blockURLs {
			s.URLFilter.Rules = append(s.URLFilter.Rules, settings.FilterRule{Pattern: p, Result: settings.FilterBlock})
		}
		for _, p := range f.allowURLs {
			s.URLFilter.Rules = append(s.URLFilter.Rules, settings.FilterRule{Pattern: p, Result: settings.FilterAllow})
		}
	}
	return s
}

// configuration builds the immutable session configuration
func (f *settingsFlags) configuration() (*settings.Configuration, error) {
	return settings.New(f.settings())
}
