// Package bridge is the only sanctioned channel between page scripts and the
// host.
//
// Inbound, pages post JSON objects tagged with a "type" drawn from a closed
// set of kinds and a protocol "version". Anything else is rejected at the
// boundary and never interpreted. Outbound, the host injects a small fixed
// set of scripts: the integrity API, clipboard isolation and updates, the
// print override, and replies to host queries. No outbound script is ever
// built from the configuration secret or salt.
package bridge

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Version is the protocol version pages must send
const Version = 1

// MaxMessageSize bounds inbound payloads
const MaxMessageSize = 64 << 10

// Kind tags an inbound message
type Kind string

const (
	KindClipboardUpdateAck Kind = "clipboard-update-ack"
	KindClipboardCopy      Kind = "clipboard-copy"
	KindHostQuery          Kind = "host-query"
)

// Query is what a host-query asks for
type Query string

const (
	QueryVersion   Query = "version"
	QueryIntegrity Query = "integrity"
)

var (
	ErrUnknownMessageKind = errors.New("unknown message kind")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrRateLimited        = errors.New("message rate exceeded")
)

// ProtocolError is returned for every inbound message that is dropped
type ProtocolError struct {
	Kind string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("bridge protocol error: %v", e.Err)
	}
	return fmt.Sprintf("bridge protocol error (%s): %v", e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Message is the closed set of inbound messages
type Message interface {
	Kind() Kind
	message()
}

// ClipboardUpdateAck confirms a page applied a clipboard entry
type ClipboardUpdateAck struct {
	ID uint64
}

// ClipboardCopy carries content a page copied in isolated mode
type ClipboardCopy struct {
	Content string
}

// HostQuery asks the host for a read-only value
type HostQuery struct {
	Query Query
}

func (ClipboardUpdateAck) Kind() Kind { return KindClipboardUpdateAck }
func (ClipboardCopy) Kind() Kind      { return KindClipboardCopy }
func (HostQuery) Kind() Kind          { return KindHostQuery }

func (ClipboardUpdateAck) message() {}
func (ClipboardCopy) message()      {}
func (HostQuery) message()          {}

type envelope struct {
	Type    string  `json:"type"`
	Version int     `json:"version"`
	ID      *uint64 `json:"id,omitempty"`
	Content *string `json:"content,omitempty"`
	Query   string  `json:"query,omitempty"`
}

// Decode validates payload and returns the message it carries
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 || len(payload) > MaxMessageSize {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: size %d", ErrMalformedMessage, len(payload))}
	}

	var env envelope
	if err := sonic.ConfigStd.Unmarshal(payload, &env); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrMalformedMessage, err)}
	}

	kind := Kind(env.Type)
	switch kind {
	case KindClipboardUpdateAck, KindClipboardCopy, KindHostQuery:
	default:
		return nil, &ProtocolError{Kind: env.Type, Err: ErrUnknownMessageKind}
	}

	if env.Version != Version {
		return nil, &ProtocolError{Kind: env.Type, Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)}
	}

	switch kind {
	case KindClipboardUpdateAck:
		if env.ID == nil {
			return nil, &ProtocolError{Kind: env.Type, Err: fmt.Errorf("%w: missing id", ErrMalformedMessage)}
		}
		return ClipboardUpdateAck{ID: *env.ID}, nil

	case KindClipboardCopy:
		if env.Content == nil {
			return nil, &ProtocolError{Kind: env.Type, Err: fmt.Errorf("%w: missing content", ErrMalformedMessage)}
		}
		return ClipboardCopy{Content: *env.Content}, nil

	default:
		q := Query(env.Query)
		if q != QueryVersion && q != QueryIntegrity {
			return nil, &ProtocolError{Kind: env.Type, Err: fmt.Errorf("%w: unknown query %q", ErrMalformedMessage, env.Query)}
		}
		return HostQuery{Query: q}, nil
	}
}
