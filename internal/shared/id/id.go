// Package id provides identifier generation for the exam shell.
//
// All identifiers are ULIDs with a short type prefix:
//   - Lexicographic sortability: session and window ids order by creation time
//   - Prefixed types: sess_*, win_*, frame_* make logs readable
//   - Type safety: separate types prevent passing a frame id where a window id is expected
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one running exam session
type SessionID string

// WindowID identifies a browser surface (main or auxiliary window)
type WindowID string

// FrameID identifies a frame context inside a window
type FrameID string

const (
	SessionPrefix = "sess"
	WindowPrefix  = "win"
	FramePrefix   = "frame"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic entropy,
// so ids generated within the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewWindowID generates a new window ID
func NewWindowID() WindowID {
	return WindowID(Default().GenerateWithPrefix(WindowPrefix))
}

// NewFrameID generates a new frame ID
func NewFrameID() FrameID {
	return FrameID(Default().GenerateWithPrefix(FramePrefix))
}

func (id SessionID) String() string { return string(id) }
func (id WindowID) String() string  { return string(id) }
func (id FrameID) String() string   { return string(id) }

// IsValid reports whether id is a prefixed ULID with the expected prefix.
func IsValid(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed id
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
