// Package transport abstracts the live WhatsApp Web connection behind a
// small capability interface. The wire protocol itself (pairing
// handshake, encryption, framing) lives in an external protocol sidecar;
// this package only dials it and translates its frames into a closed set
// of events the supervisor consumes with exhaustive type switches.
package transport

import (
	"context"
	"encoding/json"
)

// Event is the closed set of notifications a transport emits. New
// transport-side events that the bridge does not understand are dropped
// at decode time instead of leaking through as untyped payloads.
type Event interface {
	event()
}

// PairingCode carries a freshly issued pairing payload the end user must
// present out-of-band (rendered as a QR code by callers).
type PairingCode struct {
	Code string
}

// Connecting signals that the transport is negotiating a connection.
type Connecting struct{}

// Opened signals a fully authenticated connection. Identity is the
// authenticated account identifier (phone number).
type Opened struct {
	Identity string
}

// Closed signals that the connection ended. LoggedOut marks a terminal
// authentication loss: persisted credentials are permanently invalid.
type Closed struct {
	Reason    string
	LoggedOut bool
}

func (PairingCode) event() {}
func (Connecting) event()  {}
func (Opened) event()      {}
func (Closed) event()      {}

// CredentialSink receives updated credential material whenever the
// remote side rotates it. Implementations must not block.
type CredentialSink func(creds json.RawMessage)

// Transport is one live connection for one session.
type Transport interface {
	// Events returns the transport's event stream. The channel is closed
	// after a terminal Closed event has been delivered.
	Events() <-chan Event

	// Lookup checks whether an address exists on the remote network and
	// returns its canonical form.
	Lookup(ctx context.Context, address string) (exists bool, canonical string, err error)

	// SendText delivers a text message to the given address.
	SendText(ctx context.Context, address, text string) error

	// SendDocument delivers a document with an optional caption.
	SendDocument(ctx context.Context, address string, data []byte, filename, caption string) error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer opens transports. creds carries previously persisted
// authentication material (nil for a fresh pairing); sink is invoked for
// every credential update and must be forwarded to the credential store.
type Dialer interface {
	Dial(ctx context.Context, sessionID string, creds json.RawMessage, sink CredentialSink) (Transport, error)
}
