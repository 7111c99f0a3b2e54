package supervisor

import "errors"

var (
	// ErrNotConnected is returned when a send is attempted against a
	// session that has no live, authenticated connection.
	ErrNotConnected = errors.New("session is not connected")

	// ErrPairingTimeout is returned when no pairing code or connection
	// materialized within the caller's wait window.
	ErrPairingTimeout = errors.New("pairing code generation timed out")

	// ErrReservedSession is returned when deleting the reserved session id.
	ErrReservedSession = errors.New("cannot delete reserved session")

	// ErrAttemptsExhausted is returned when a connect request finds the
	// reconnect attempt budget already spent.
	ErrAttemptsExhausted = errors.New("maximum reconnection attempts reached")

	// ErrRecipientNotFound is returned when the destination address does
	// not exist on the remote network.
	ErrRecipientNotFound = errors.New("recipient is not on WhatsApp")
)
