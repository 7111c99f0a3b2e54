package supervisor

import (
	"time"

	"github.com/rs/zerolog"
)

// Evictor tears down the transport of a session that has been quiet for
// the configured period. At most one pending timer exists per session;
// every activity signal re-arms it. Eviction is a graceful close, not a
// logout: persisted credentials survive and the session reconnects on
// demand.
type Evictor struct {
	quiet   time.Duration
	onEvict func(id string)
	timers  *timerSet
	logger  zerolog.Logger
}

// NewEvictor creates an evictor. A quiet period of zero disables it.
func NewEvictor(quiet time.Duration, onEvict func(id string), logger zerolog.Logger) *Evictor {
	return &Evictor{
		quiet:   quiet,
		onEvict: onEvict,
		timers:  newTimerSet(),
		logger:  logger,
	}
}

// Schedule arms (or re-arms) the eviction timer for id.
func (e *Evictor) Schedule(id string) {
	if e.quiet <= 0 {
		return
	}
	e.logger.Debug().Str("session_id", id).Dur("quiet", e.quiet).Msg("Arming idle eviction timer")
	e.timers.Arm(id, e.quiet, func() {
		e.onEvict(id)
	})
}

// MarkActivity pushes out the eviction deadline for id. Equivalent to
// re-arming the timer.
func (e *Evictor) MarkActivity(id string) {
	e.Schedule(id)
}

// Cancel removes a pending eviction timer without side effects.
// Cancelling an absent timer is a no-op.
func (e *Evictor) Cancel(id string) {
	e.timers.Cancel(id)
}

// Pending reports whether an eviction timer is armed for id.
func (e *Evictor) Pending(id string) bool {
	return e.timers.Pending(id)
}

// Stop cancels all pending eviction timers.
func (e *Evictor) Stop() {
	e.timers.CancelAll()
}
