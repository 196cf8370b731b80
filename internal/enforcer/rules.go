package enforcer

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/bridge"
	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
	"github.com/GriffinCanCode/ExamShell/backend/internal/integrity"
	"github.com/GriffinCanCode/ExamShell/backend/internal/logging"
	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

// Chromium's ERR_ABORTED; raised when a load is replaced and not worth
// reporting.
const errAborted = -3

func (w *Window) onNavigationRequested(ev engine.NavigationRequested) engine.Verdict {
	if ev.Origin == engine.OriginPopup {
		return w.onPopup(ev)
	}

	st := stepPush
	if ev.IsMainFrame {
		origin := ev.Origin
		if w.consumeHostNavigation(ev.URL) && origin == engine.OriginAddressBar {
			origin = engine.OriginHost
		}

		// Script and redirect navigations are left to the URL filter.
		switch origin {
		case engine.OriginAddressBar:
			if !w.view.Allows(policy.AddressBar) {
				return w.deny(ViolationAddressBar, "address bar navigation is not allowed", ev.URL)
			}
		case engine.OriginBackForward:
			s, ok := w.historyStep(ev.URL)
			switch {
			case !ok:
				return w.deny(ViolationHistory, "history entry unknown", ev.URL)
			case s == stepBack && !w.view.Allows(policy.BackNavigation):
				return w.deny(ViolationBackNavigation, "backward navigation is not allowed", ev.URL)
			case s == stepForward && !w.view.Allows(policy.ForwardNavigation):
				return w.deny(ViolationForwardNavigation, "forward navigation is not allowed", ev.URL)
			}
			st = s
		case engine.OriginReload:
			if !w.view.Allows(policy.Reload) {
				return w.deny(ViolationReload, "reloading is not allowed", ev.URL)
			}
			st = stepStay
		}
	}

	if !w.e.matrix.URLFilter().Allows(ev.URL) {
		return w.deny(ViolationURLFilter, "blocked by URL filter", ev.URL)
	}
	if !ev.IsMainFrame {
		return engine.Permit()
	}

	tok, err := w.e.generator.Derive(ev.URL)
	w.e.metrics.RecordDerivation(err == nil)
	if err != nil {
		return w.deny(ViolationInvalidURL, "URL cannot be normalized", ev.URL)
	}

	w.mu.Lock()
	w.pending = &navigation{url: ev.URL, origin: ev.Origin, step: st}
	terr := w.transitionLocked(StateSuspended)
	w.mu.Unlock()
	if terr != nil {
		return engine.Refuse(terr.Error())
	}

	n := w.e.next()
	w.e.metrics.RecordNavigation()
	w.logger.Debug("Navigation allowed",
		zap.Uint64("navigation", n),
		zap.String("url", ev.URL),
		zap.String("origin", ev.Origin.String()),
		logging.Token("bek", tok.BrowserExamKey))

	v := engine.Permit()
	if h := w.e.generator.RequestHeaders(tok); len(h) > 0 {
		v.Headers = h
	}
	return v
}

func (w *Window) onPopup(ev engine.NavigationRequested) engine.Verdict {
	p := w.e.matrix.PopupPolicy()
	switch p {
	case settings.PopupAllow:
	case settings.PopupAllowSameHost, settings.PopupAllowSameHostAndWindow:
		if !integrity.SameHost(w.URL(), ev.URL) {
			return w.deny(ViolationPopup, "popups to other hosts are not allowed", ev.URL)
		}
	default:
		return w.deny(ViolationPopup, "popups are not allowed", ev.URL)
	}

	if !w.e.matrix.URLFilter().Allows(ev.URL) {
		return w.deny(ViolationURLFilter, "blocked by URL filter", ev.URL)
	}
	if p == settings.PopupAllowSameHostAndWindow {
		return engine.Verdict{Action: engine.Rewrite, URL: ev.URL, SameWindow: true}
	}
	return engine.Permit()
}

func (w *Window) consumeHostNavigation(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok := w.hostNav != "" && w.hostNav == url
	w.hostNav = ""
	return ok
}

// historyStep resolves a back/forward request against the window history.
// A hint left by a host command wins over inference from the URL.
func (w *Window) historyStep(url string) (step, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hint != nil {
		return *w.hint, true
	}
	switch {
	case w.cursor > 0 && w.history[w.cursor-1] == url:
		return stepBack, true
	case w.cursor >= 0 && w.cursor+1 < len(w.history) && w.history[w.cursor+1] == url:
		return stepForward, true
	default:
		return stepPush, false
	}
}

func (w *Window) onNavigationCompleted(ev engine.NavigationCompleted) {
	if !ev.IsMainFrame {
		return
	}

	w.mu.Lock()
	nav := w.pending
	w.pending = nil
	if nav == nil {
		nav = &navigation{url: ev.URL, step: stepPush}
	}

	switch nav.step {
	case stepBack:
		if w.cursor > 0 {
			w.cursor--
		}
	case stepForward:
		if w.cursor+1 < len(w.history) {
			w.cursor++
		}
	case stepStay:
	default:
		w.history = append(w.history[:w.cursor+1], ev.URL)
		w.cursor = len(w.history) - 1
	}
	w.url = ev.URL
	if w.state == StateSuspended {
		_ = w.transitionLocked(StateActive)
	}
	w.mu.Unlock()

	w.e.host.AddressChanged(w.id, ev.URL)
}

func (w *Window) onLoadFailed(ev engine.LoadFailed) {
	if ev.IsMainFrame {
		w.mu.Lock()
		w.pending = nil
		if w.state == StateSuspended {
			_ = w.transitionLocked(StateActive)
		}
		w.mu.Unlock()
	}

	if ev.Code == errAborted {
		return
	}
	w.logger.Warn("Load failed",
		zap.Int("code", ev.Code),
		zap.String("message", ev.Message),
		zap.String("url", ev.URL),
		zap.Bool("main_frame", ev.IsMainFrame))
	w.e.host.LoadFailed(w.id, ev.Code, ev.Message, ev.IsMainFrame, ev.URL)
}

func (w *Window) onDownloadRequested(ev engine.DownloadRequested) engine.Verdict {
	capability, kind := policy.Download, ViolationDownload
	if isConfigurationFile(ev) {
		capability, kind = policy.ConfigurationDownload, ViolationConfigurationDownload
	}

	if !w.view.Allows(capability) {
		return w.deny(kind, "downloading is not allowed", ev.URL)
	}

	target := downloadTarget(ev, w.e.cfg.DownloadDirectory())
	if target == "" {
		return w.deny(kind, "no download location", ev.URL)
	}
	if !w.e.matrix.Downloads().Allows(target) {
		return w.deny(kind, "download location is not allowed", ev.URL)
	}

	w.logger.Info("Download allowed", zap.String("url", ev.URL), zap.String("path", target))
	return engine.Verdict{Action: engine.Allow, Path: target}
}

func isConfigurationFile(ev engine.DownloadRequested) bool {
	if ev.MimeType == "application/seb" {
		return true
	}
	if strings.HasSuffix(strings.ToLower(ev.SuggestedName), ".seb") {
		return true
	}
	if u, err := url.Parse(ev.URL); err == nil {
		return strings.HasSuffix(strings.ToLower(u.Path), ".seb")
	}
	return false
}

// downloadTarget picks the save path. An engine-proposed path wins;
// otherwise the file name is placed in the configured directory.
func downloadTarget(ev engine.DownloadRequested, dir string) string {
	if ev.TargetPath != "" {
		return ev.TargetPath
	}
	if dir == "" {
		return ""
	}

	name := ev.SuggestedName
	if name == "" {
		if u, err := url.Parse(ev.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = filepath.Base(filepath.Clean(string(filepath.Separator) + name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	if filepath.Ext(name) == "" && ev.MimeType != "" {
		if m := mimetype.Lookup(ev.MimeType); m != nil {
			name += m.Extension()
		}
	}
	return filepath.Join(dir, name)
}

func fileRule(w *Window, mode engine.FileDialogMode) (policy.Capability, ViolationKind, *policy.PathFilter) {
	if mode == engine.FileDialogSave {
		return policy.Download, ViolationDownload, w.e.matrix.Downloads()
	}
	return policy.Upload, ViolationUpload, w.e.matrix.Uploads()
}

// A restricted allow-list needs a starting location inside it; the chosen
// paths are checked again by onFilesSelected.
func (w *Window) onFileDialogRequested(ev engine.FileDialogRequested) engine.Verdict {
	capability, kind, filter := fileRule(w, ev.Mode)

	if !w.view.Allows(capability) {
		return w.deny(kind, "file selection is not allowed", ev.DefaultPath)
	}
	if filter.Restricted() && !filter.Allows(ev.DefaultPath) {
		return w.deny(kind, "file location is not allowed", ev.DefaultPath)
	}
	return engine.Permit()
}

func (w *Window) onFilesSelected(ev engine.FilesSelected) engine.Verdict {
	capability, kind, filter := fileRule(w, ev.Mode)

	if !w.view.Allows(capability) {
		return w.deny(kind, "file selection is not allowed", "")
	}
	if len(ev.Paths) == 0 {
		return engine.Refuse("no file selected")
	}
	for _, p := range ev.Paths {
		if !filter.Allows(p) {
			return w.deny(kind, "selected file is not allowed", p)
		}
	}
	return engine.Permit()
}

// keyCapability maps a shortcut to the capability it exercises
func keyCapability(k engine.KeyPressed) (policy.Capability, bool) {
	key := strings.ToUpper(k.Key)
	m := k.Modifiers

	switch {
	case key == "F12", m.Ctrl && m.Shift && key == "I":
		return policy.DeveloperTools, true
	case key == "F5", m.Ctrl && key == "R":
		return policy.Reload, true
	case m.Alt && key == "LEFT":
		return policy.BackNavigation, true
	case m.Alt && key == "RIGHT":
		return policy.ForwardNavigation, true
	case m.Ctrl && key == "P":
		return policy.Print, true
	case m.Ctrl && key == "F":
		return policy.Find, true
	case m.Ctrl && key == "L":
		return policy.AddressBar, true
	}

	if m.Ctrl {
		switch key {
		case "PLUS", "ADD", "=", "+", "MINUS", "SUBTRACT", "-", "0":
			return policy.Zoom, true
		}
	}
	return "", false
}

func (w *Window) onKeyPressed(ev engine.KeyPressed) engine.Verdict {
	c, ok := keyCapability(ev)
	if !ok || w.view.Allows(c) {
		return engine.Permit()
	}
	return w.deny(ViolationKind(c), "shortcut is not allowed", w.URL())
}

func (w *Window) isolatedClipboard() bool {
	return w.e.matrix.ClipboardPolicy() == settings.ClipboardIsolated && w.view.Allows(policy.Clipboard)
}

func (w *Window) onScriptMessage(ev engine.ScriptMessageReceived) engine.Verdict {
	msg, err := w.e.bridge.Receive(w.id, ev.Payload)
	if err != nil {
		return engine.Refuse("bridge message dropped")
	}

	switch m := msg.(type) {
	case bridge.ClipboardUpdateAck:
		w.logger.Debug("Clipboard update acknowledged",
			zap.String("frame_id", ev.FrameID),
			zap.Uint64("id", m.ID))

	case bridge.ClipboardCopy:
		if !w.view.Allows(policy.Clipboard) {
			return w.deny(ViolationClipboard, "clipboard is not allowed", w.URL())
		}
		if !w.isolatedClipboard() {
			return engine.Refuse("clipboard is not isolated")
		}
		entry := w.e.clipboard.Publish(m.Content)
		if err := w.e.clipboard.BroadcastEntry(w.ctx, entry); err != nil {
			w.logger.Warn("Clipboard broadcast failed", zap.Uint64("id", entry.ID), zap.Error(err))
		}

	case bridge.HostQuery:
		return w.answer(ev.FrameID, m.Query)
	}
	return engine.Permit()
}

func (w *Window) answer(frameID string, q bridge.Query) engine.Verdict {
	var value any
	switch q {
	case bridge.QueryVersion:
		value = w.e.cfg.BuildVersion()
	case bridge.QueryIntegrity:
		w.mu.Lock()
		frameURL, ok := w.frames[frameID]
		if !ok {
			frameURL = w.url
		}
		w.mu.Unlock()

		tok, err := w.e.generator.Derive(frameURL)
		w.e.metrics.RecordDerivation(err == nil)
		if err != nil {
			return engine.Refuse("integrity unavailable")
		}
		value = tok
	}

	reply, err := bridge.HostReply(q, value)
	if err != nil {
		w.logger.Warn("Host reply failed", zap.String("query", string(q)), zap.Error(err))
		return engine.Refuse("reply failed")
	}
	w.inject(frameID, reply)
	return engine.Permit()
}
