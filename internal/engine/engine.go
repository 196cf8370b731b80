// Package engine describes the embedded rendering engine as seen by the
// policy layer: the capabilities it consumes and the closed set of events it
// produces.
//
// Engines report their callbacks through a Translator, which turns them into
// Event values and hands every one of them to a single Dispatcher. Nothing in
// the policy layer registers engine callbacks directly.
package engine

import "errors"

var (
	// ErrEngineUnavailable means there is no engine or no main frame to act on
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrNotReady means the target frame has no live script context yet
	ErrNotReady = errors.New("frame not ready")
)

// MainFrame addresses the top-level frame of a browser surface
const MainFrame = ""

// MessageChannel is the page global through which scripts post bridge
// messages: window.__examshellHost.postMessage(message).
const MessageChannel = "__examshellHost"

// ScriptResult is the outcome of an asynchronous script evaluation.
// Failures carry a human readable Message and, where known, Err.
type ScriptResult struct {
	Success bool
	Value   any
	Message string
	Err     error
}

// Failed builds a failed result from err
func Failed(err error) ScriptResult {
	return ScriptResult{Success: false, Message: err.Error(), Err: err}
}

// ScriptCallback receives a ScriptResult exactly once
type ScriptCallback func(ScriptResult)

// Engine is the capability set the enforcer drives.
// EvaluateScript must not block: the result is delivered through cb, and a
// frame without a live context completes immediately with ErrNotReady.
type Engine interface {
	Navigate(url string) error
	EvaluateScript(frameID, code string, cb ScriptCallback)
	GoBack() error
	GoForward() error
	Reload() error
	SetZoom(level float64) error
	ShowDevTools() error
	Find(term string, forward, matchCase bool) error
}
