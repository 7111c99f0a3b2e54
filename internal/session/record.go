package session

import (
	"sync"
	"sync/atomic"

	"github.com/harun/wabridge/internal/transport"
)

// State is the lifecycle state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StatePairingReady State = "pairing_ready"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
	StateError        State = "error"
)

// Record is the state container for one logical session. All fields are
// guarded by mu except the reconnect guard, which is an atomic token so
// that TryBeginAttempt never blocks behind an in-flight mutation.
type Record struct {
	id string

	mu          sync.Mutex
	state       State
	transport   transport.Transport
	pairingCode string
	identity    string
	attempts    int

	guard atomic.Bool
}

// Summary is a read-only snapshot of a record for listings and logs.
type Summary struct {
	ID                string `json:"session_id"`
	State             State  `json:"state"`
	Identity          string `json:"identity,omitempty"`
	HasPairingCode    bool   `json:"has_pairing_code"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
}

func newRecord(id string) *Record {
	return &Record{
		id:    id,
		state: StateDisconnected,
	}
}

// ID returns the session identifier.
func (r *Record) ID() string {
	return r.id
}

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transport returns the live transport handle, or nil when disconnected.
func (r *Record) Transport() transport.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transport
}

// PairingCode returns the most recently issued pairing payload, or "".
func (r *Record) PairingCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairingCode
}

// Identity returns the authenticated account identifier, or "" when the
// session is not connected.
func (r *Record) Identity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

// Attempts returns the current reconnect attempt count.
func (r *Record) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// TryBeginAttempt acquires the per-session reconnect guard. It returns
// false when a connection attempt is already in flight, in which case
// the caller must not start a second one.
func (r *Record) TryBeginAttempt() bool {
	return r.guard.CompareAndSwap(false, true)
}

// EndAttempt releases the reconnect guard. Safe to call when the guard
// is not held.
func (r *Record) EndAttempt() {
	r.guard.Store(false)
}

// AttemptInFlight reports whether the reconnect guard is currently held.
func (r *Record) AttemptInFlight() bool {
	return r.guard.Load()
}

// AttachTransport installs a new live transport handle. The previous
// handle must already be torn down by the caller.
func (r *Record) AttachTransport(t transport.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
}

// DetachTransport removes and returns the live transport handle, if any.
func (r *Record) DetachTransport() transport.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.transport
	r.transport = nil
	return t
}

// MarkConnecting moves the record into StateConnecting.
func (r *Record) MarkConnecting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateConnecting
}

// MarkPairingReady stores a freshly issued pairing payload and resets
// the attempt counter: a fresh code means the remote side is responsive,
// so prior failures are forgiven.
func (r *Record) MarkPairingReady(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairingCode = code
	r.state = StatePairingReady
	r.attempts = 0
}

// MarkConnected records a successful open: identity is populated, the
// pairing code is cleared and the attempt counter resets.
func (r *Record) MarkConnected(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateConnected
	r.identity = identity
	r.pairingCode = ""
	r.attempts = 0
}

// MarkDisconnected moves the record into StateDisconnected and clears
// the identity, which is only valid while connected.
func (r *Record) MarkDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDisconnected
	r.identity = ""
}

// MarkLoggedOut handles a terminal authentication loss: the pairing code
// and attempt counter reset so a brand-new pairing can be issued.
func (r *Record) MarkLoggedOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDisconnected
	r.identity = ""
	r.pairingCode = ""
	r.attempts = 0
}

// MarkFailed moves the record into StateFailed (reconnect attempts
// exhausted; external intervention required).
func (r *Record) MarkFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateFailed
}

// MarkError moves the record into StateError after a connection attempt
// blew up before the transport was usable.
func (r *Record) MarkError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateError
}

// IncrementAttempts bumps the reconnect attempt counter and returns the
// new value.
func (r *Record) IncrementAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	return r.attempts
}

// ResetAttempts zeroes the reconnect attempt counter.
func (r *Record) ResetAttempts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
}

// ClearPairingCode drops a stored pairing payload without touching the
// rest of the record.
func (r *Record) ClearPairingCode() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairingCode = ""
}

// Summary returns a consistent snapshot of the record.
func (r *Record) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		ID:                r.id,
		State:             r.state,
		Identity:          r.identity,
		HasPairingCode:    r.pairingCode != "",
		ReconnectAttempts: r.attempts,
	}
}
