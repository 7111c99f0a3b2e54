package transport

import (
	"encoding/json"
	"fmt"
)

// Frame event names emitted by the protocol sidecar.
const (
	frameEventPairingCode = "pairing_code"
	frameEventConnecting  = "connecting"
	frameEventOpened      = "opened"
	frameEventClosed      = "closed"
	frameEventCreds       = "creds"
	frameEventResult      = "result"
)

// Frame is the wire envelope exchanged with the protocol sidecar. Events
// flowing in set Event; command results set Event to "result" with a
// correlation ID matching the originating request.
type Frame struct {
	Event       string          `json:"event,omitempty"`
	ID          string          `json:"id,omitempty"`
	Code        string          `json:"code,omitempty"`
	Identity    string          `json:"identity,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	LoggedOut   bool            `json:"logged_out,omitempty"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
	OK          bool            `json:"ok,omitempty"`
	Exists      bool            `json:"exists,omitempty"`
	Address     string          `json:"address,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// command is the envelope for requests sent to the sidecar.
type command struct {
	Method    string          `json:"method"`
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Address   string          `json:"address,omitempty"`
	Text      string          `json:"text,omitempty"`
	Data      []byte          `json:"data,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	Creds     json.RawMessage `json:"credentials,omitempty"`
}

// DecodeFrame parses a raw sidecar frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode transport frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("transport frame has no event")
	}
	return f, nil
}

// AsEvent converts a frame into a typed Event. The second return is
// false for frames that are not lifecycle events (credential updates,
// command results) or that name an event this build does not know.
func (f Frame) AsEvent() (Event, bool) {
	switch f.Event {
	case frameEventPairingCode:
		return PairingCode{Code: f.Code}, true
	case frameEventConnecting:
		return Connecting{}, true
	case frameEventOpened:
		return Opened{Identity: f.Identity}, true
	case frameEventClosed:
		return Closed{Reason: f.Reason, LoggedOut: f.LoggedOut}, true
	default:
		return nil, false
	}
}
