package supervisor

import (
	"context"
	"time"

	"github.com/harun/wabridge/internal/session"
)

// PairingResult is the outcome of a bounded pairing wait.
type PairingResult struct {
	// Connected is true when the session reached a live connection, in
	// which case no pairing code is needed.
	Connected bool

	// PairingCode is the payload the end user must scan. Set only when
	// Connected is false.
	PairingCode string
}

// WaitForPairing blocks until a pairing code is available for id, the
// session reaches a connected state, or the wait window elapses. A
// connection attempt is triggered once at the start if none is in
// flight; the poll loop itself never re-triggers connects. The timeout
// is caller-scoped: an abandoned wait does not cancel the underlying
// attempt, so a later call can still observe the outcome.
func (s *Supervisor) WaitForPairing(ctx context.Context, id string) (PairingResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.PairingWaitDuration.Observe(time.Since(start).Seconds())
	}()

	rec := s.registry.Get(id)

	if result, done := pairingOutcome(rec); done {
		return result, nil
	}

	// Kick off a connection unless one is already running or the record
	// already carries a code.
	if !rec.AttemptInFlight() {
		go func() {
			if err := s.Connect(id); err != nil {
				s.logger.Warn().Str("session_id", id).Err(err).Msg("Connect for pairing wait failed")
			}
		}()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.PairingWaitTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.options.PairingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if result, done := pairingOutcome(rec); done {
				return result, nil
			}
		case <-ctx.Done():
			return PairingResult{}, ErrPairingTimeout
		}
	}
}

// pairingOutcome inspects the record for a terminal pairing-wait state.
func pairingOutcome(rec *session.Record) (PairingResult, bool) {
	if rec.State() == session.StateConnected {
		return PairingResult{Connected: true}, true
	}
	if code := rec.PairingCode(); code != "" {
		return PairingResult{PairingCode: code}, true
	}
	return PairingResult{}, false
}
