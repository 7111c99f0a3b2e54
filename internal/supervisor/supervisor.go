// Package supervisor orchestrates the lifecycle of every bridged
// session: it opens transports, drives the per-session state machine
// from the transport's event stream, schedules reconnections with
// exponential backoff, evicts idle connections and restores persisted
// sessions at startup.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/wabridge/internal/credstore"
	"github.com/harun/wabridge/internal/metrics"
	"github.com/harun/wabridge/internal/session"
	"github.com/harun/wabridge/internal/transport"
)

// Options configures a Supervisor.
type Options struct {
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// PairingPollInterval is the poll cadence of WaitForPairing.
	PairingPollInterval time.Duration

	// PairingWaitTimeout bounds WaitForPairing when the caller's context
	// carries no deadline.
	PairingWaitTimeout time.Duration

	// IdleTimeout is the quiet period before an idle session's transport
	// is torn down. Zero disables eviction.
	IdleTimeout time.Duration

	// RestoreStagger is the pause between session starts during startup
	// restoration, to avoid a connection thundering herd.
	RestoreStagger time.Duration

	// ReservedSessionID can never be deleted.
	ReservedSessionID string
}

func (o *Options) applyDefaults() {
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if o.PairingPollInterval == 0 {
		o.PairingPollInterval = 500 * time.Millisecond
	}
	if o.PairingWaitTimeout == 0 {
		o.PairingWaitTimeout = 30 * time.Second
	}
	if o.RestoreStagger == 0 {
		o.RestoreStagger = 2 * time.Second
	}
	if o.ReservedSessionID == "" {
		o.ReservedSessionID = "default"
	}
}

// Supervisor owns the registry and coordinates all session mutations.
type Supervisor struct {
	options  Options
	registry *session.Registry
	store    *credstore.Store
	dialer   transport.Dialer
	evictor  *Evictor
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	timers *timerSet
}

// New creates a Supervisor. registry, store and dialer are required.
func New(options Options, registry *session.Registry, store *credstore.Store, dialer transport.Dialer, m *metrics.Metrics, logger zerolog.Logger) (*Supervisor, error) {
	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if dialer == nil {
		return nil, fmt.Errorf("transport dialer is required")
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	options.applyDefaults()

	s := &Supervisor{
		options:  options,
		registry: registry,
		store:    store,
		dialer:   dialer,
		metrics:  m,
		logger:   logger,
		timers:   newTimerSet(),
	}
	s.evictor = NewEvictor(options.IdleTimeout, s.evictIdle, logger)
	return s, nil
}

// Registry exposes the session registry for read-side collaborators.
func (s *Supervisor) Registry() *session.Registry {
	return s.registry
}

// ReservedSessionID returns the undeletable session id.
func (s *Supervisor) ReservedSessionID() string {
	return s.options.ReservedSessionID
}

// Connect ensures a connection attempt is running for id. If one is
// already in flight the call is a no-op. When the reconnect attempt
// budget is spent the record moves to StateFailed and no transport is
// opened.
func (s *Supervisor) Connect(id string) error {
	rec := s.registry.Get(id)
	logger := s.logger.With().Str("session_id", id).Logger()

	if !rec.TryBeginAttempt() {
		logger.Debug().Msg("Connection attempt already in progress, skipping")
		return nil
	}

	if rec.State() == session.StateConnected && rec.Transport() != nil {
		rec.EndAttempt()
		return nil
	}

	if rec.Attempts() >= s.options.MaxReconnectAttempts {
		logger.Warn().
			Int("attempts", rec.Attempts()).
			Msg("Max reconnection attempts reached, marking session failed")
		rec.MarkFailed()
		rec.EndAttempt()
		s.metrics.ConnectAttemptsTotal.WithLabelValues("exhausted").Inc()
		s.updateGauges()
		return fmt.Errorf("%w for session %s", ErrAttemptsExhausted, id)
	}

	// Any stale transport must be fully closed before opening a new one.
	s.teardown(rec)

	creds, err := s.store.Load(id)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load persisted credentials, pairing fresh")
		creds = nil
	}

	rec.MarkConnecting()
	sink := func(updated json.RawMessage) {
		if err := s.store.Save(id, updated); err != nil {
			logger.Error().Err(err).Msg("Failed to persist credential update")
		}
	}

	t, err := s.dialer.Dial(context.Background(), id, creds, sink)
	if err != nil {
		rec.MarkError()
		rec.EndAttempt()
		s.metrics.ConnectAttemptsTotal.WithLabelValues("error").Inc()
		attempts := rec.IncrementAttempts()
		if attempts < s.options.MaxReconnectAttempts {
			s.scheduleRetry(id, attempts, "dial_error")
		}
		s.updateGauges()
		return fmt.Errorf("failed to open transport for session %s: %w", id, err)
	}

	rec.AttachTransport(t)
	s.metrics.ConnectAttemptsTotal.WithLabelValues("started").Inc()
	logger.Info().Msg("Transport opened, waiting for connection events")

	go s.pump(rec, t)
	return nil
}

// pump drains one transport's event stream into record mutations. It
// exits when the stream closes. A panic while handling one event is
// contained so a malformed event cannot take the supervisor down.
func (s *Supervisor) pump(rec *session.Record, t transport.Transport) {
	for ev := range t.Events() {
		s.dispatch(rec, t, ev)
	}
}

func (s *Supervisor) dispatch(rec *session.Record, t transport.Transport, ev transport.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("session_id", rec.ID()).
				Interface("panic", r).
				Msg("Recovered from panic in transport event handler")
		}
	}()
	s.handleEvent(rec, t, ev)
}

func (s *Supervisor) handleEvent(rec *session.Record, t transport.Transport, ev transport.Event) {
	id := rec.ID()
	logger := s.logger.With().Str("session_id", id).Logger()

	// Events from a transport that has been superseded or torn down must
	// not clobber the state of the current attempt.
	if rec.Transport() != t {
		logger.Debug().Msg("Dropping event from stale transport")
		return
	}

	switch ev := ev.(type) {
	case transport.Connecting:
		rec.MarkConnecting()
		logger.Debug().Msg("Transport connecting")

	case transport.PairingCode:
		rec.MarkPairingReady(ev.Code)
		s.metrics.PairingCodesIssued.Inc()
		logger.Info().Int("code_len", len(ev.Code)).Msg("Pairing code issued")

	case transport.Opened:
		rec.MarkConnected(ev.Identity)
		rec.EndAttempt()
		if err := s.store.SetIdentity(id, ev.Identity); err != nil {
			logger.Error().Err(err).Msg("Failed to record identity in credential store")
		}
		s.evictor.Schedule(id)
		s.metrics.ConnectAttemptsTotal.WithLabelValues("connected").Inc()
		logger.Info().Str("identity", ev.Identity).Msg("Session connected")

	case transport.Closed:
		s.handleClosed(rec, ev, logger)
	}

	s.updateGauges()
}

func (s *Supervisor) handleClosed(rec *session.Record, ev transport.Closed, logger zerolog.Logger) {
	id := rec.ID()
	s.closeTransport(rec.DetachTransport(), id)
	rec.EndAttempt()
	s.evictor.Cancel(id)

	if !ShouldRetry(ev.LoggedOut) {
		logger.Info().Str("reason", ev.Reason).Msg("Session logged out, wiping credentials")
		rec.MarkLoggedOut()
		if err := s.store.Wipe(id); err != nil {
			logger.Error().Err(err).Msg("Failed to wipe credentials after logout")
		}
		s.metrics.ReconnectsTotal.WithLabelValues("logged_out").Inc()
		return
	}

	rec.MarkDisconnected()
	attempts := rec.IncrementAttempts()
	if attempts < s.options.MaxReconnectAttempts {
		logger.Info().
			Str("reason", ev.Reason).
			Int("attempt", attempts).
			Int("max", s.options.MaxReconnectAttempts).
			Msg("Connection closed, scheduling reconnect")
		s.scheduleRetry(id, attempts, "closed")
		return
	}

	logger.Warn().
		Str("reason", ev.Reason).
		Int("attempts", attempts).
		Msg("Connection closed and attempt budget spent, giving up")
}

// scheduleRetry arms (or re-arms) the retry timer for id. The timer is
// tracked so deletion can cancel it before it fires.
func (s *Supervisor) scheduleRetry(id string, attempts int, reason string) {
	delay := Delay(s.options.ReconnectBaseDelay, s.options.ReconnectMaxDelay, attempts)
	s.metrics.ReconnectsTotal.WithLabelValues(reason).Inc()
	s.timers.Arm(id, delay, func() {
		if err := s.Connect(id); err != nil {
			s.logger.Warn().Str("session_id", id).Err(err).Msg("Scheduled reconnect failed")
		}
	})
}

// teardown defensively closes any existing transport for rec. Failures
// are logged and swallowed so they never abort the caller's operation.
func (s *Supervisor) teardown(rec *session.Record) {
	s.closeTransport(rec.DetachTransport(), rec.ID())
}

func (s *Supervisor) closeTransport(t transport.Transport, id string) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		s.logger.Warn().Str("session_id", id).Err(err).Msg("Error closing transport, ignoring")
	}
}

// Disconnect gracefully tears down the session's transport, preserving
// persisted credentials. The record stays in the registry so a later
// connect can resume it.
func (s *Supervisor) Disconnect(id string) {
	s.timers.Cancel(id)
	s.evictor.Cancel(id)

	rec, ok := s.registry.Lookup(id)
	if !ok {
		return
	}
	s.teardown(rec)
	rec.MarkDisconnected()
	rec.ClearPairingCode()
	rec.ResetAttempts()
	rec.EndAttempt()
	s.updateGauges()
	s.logger.Info().Str("session_id", id).Msg("Session disconnected")
}

// evictIdle is the eviction callback: same as Disconnect, but counted.
func (s *Supervisor) evictIdle(id string) {
	s.logger.Info().Str("session_id", id).Msg("Evicting idle session")
	s.metrics.IdleEvictionsTotal.Inc()
	s.Disconnect(id)
}

// Delete tears down and erases a session: transport closed, pending
// retry and eviction timers cancelled, registry entry removed and the
// on-disk credential directory deleted. The reserved session id is
// never deletable.
func (s *Supervisor) Delete(id string) error {
	if id == s.options.ReservedSessionID {
		return fmt.Errorf("%w: %s", ErrReservedSession, id)
	}

	s.timers.Cancel(id)
	s.evictor.Cancel(id)

	if rec, ok := s.registry.Lookup(id); ok {
		s.teardown(rec)
	}
	s.registry.Remove(id)

	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	s.metrics.SessionsDeleted.Inc()
	s.updateGauges()
	s.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// List returns summaries of every session in the registry.
func (s *Supervisor) List() []session.Summary {
	return s.registry.List()
}

// Status is the caller-facing view of one session.
type Status struct {
	ID                string        `json:"session_id"`
	Connected         bool          `json:"connected"`
	State             session.State `json:"state"`
	CredentialsOnDisk bool          `json:"credentials_on_disk"`
	AutoReconnecting  bool          `json:"auto_reconnecting"`
}

// Status reports the state of id. When the record is disconnected but
// valid credentials are on disk, a background reconnect is kicked off
// as a side effect of the read: sessions are not kept alive
// speculatively, they reconnect when someone asks about them.
func (s *Supervisor) Status(id string) Status {
	rec := s.registry.Get(id)
	state := rec.State()
	onDisk := s.store.HasValid(id)

	autoReconnecting := false
	if onDisk && state == session.StateDisconnected {
		autoReconnecting = true
		s.logger.Info().Str("session_id", id).Msg("Credentials on disk but disconnected, auto-reconnecting")
		go func() {
			if err := s.Connect(id); err != nil {
				s.logger.Warn().Str("session_id", id).Err(err).Msg("Auto-reconnect failed")
			}
		}()
	}

	return Status{
		ID:                id,
		Connected:         state == session.StateConnected,
		State:             state,
		CredentialsOnDisk: onDisk,
		AutoReconnecting:  autoReconnecting,
	}
}

// Shutdown tears down every live transport and cancels all timers. Used
// on process exit; credentials are preserved.
func (s *Supervisor) Shutdown() {
	s.evictor.Stop()
	s.timers.CancelAll()
	for _, summary := range s.registry.List() {
		if rec, ok := s.registry.Lookup(summary.ID); ok {
			s.teardown(rec)
			rec.MarkDisconnected()
			rec.EndAttempt()
		}
	}
	s.logger.Info().Msg("Supervisor shut down")
}

func (s *Supervisor) updateGauges() {
	summaries := s.registry.List()
	connected := 0
	for _, summary := range summaries {
		if summary.State == session.StateConnected {
			connected++
		}
	}
	s.metrics.SessionsActive.Set(float64(len(summaries)))
	s.metrics.SessionsConnected.Set(float64(connected))
}
