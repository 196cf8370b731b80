package sandbox

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrClosed              = errors.New("sandbox browser is closed")
	ErrNavigationCancelled = errors.New("navigation cancelled")
	ErrNoHistory           = errors.New("no history entry in that direction")
)

// Config defines sandbox configuration
type Config struct {
	ScriptTimeout time.Duration // Per evaluation limit
	EnableConsole bool          // Allow console.log/warn/error
	QueueLimit    int           // Pending evaluations per page
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ScriptTimeout: 5 * time.Second,
		EnableConsole: true,
		QueueLimit:    256,
	}
}

// Document is what a URL resolves to
type Document struct {
	Title      string
	Script     string // Page's own script, run after the context is created
	StatusCode int
}

// Resolver loads the document for a URL. header carries the request
// headers the navigation decision attached, if any.
type Resolver func(url string, header http.Header) (Document, error)

// StaticResolver serves documents from a map and fails for anything else
func StaticResolver(docs map[string]Document) Resolver {
	return func(url string, _ http.Header) (Document, error) {
		doc, ok := docs[url]
		if !ok {
			return Document{}, errors.New("ERR_NAME_NOT_RESOLVED")
		}
		return doc, nil
	}
}

// BlankResolver serves an empty document titled with its URL
func BlankResolver(url string, _ http.Header) (Document, error) {
	return Document{Title: url, StatusCode: 200}, nil
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error
	Message string    // Log message
	Time    time.Time // Timestamp
}
