package supervisor

import (
	"context"
	"time"
)

// RestoreAll reconnects every session with valid persisted credentials.
// Intended to run fire-and-forget after the listener is up: individual
// failures are logged and never halt restoration of the remaining
// sessions. Session starts are staggered to avoid a thundering herd.
func (s *Supervisor) RestoreAll(ctx context.Context) {
	ids, err := s.store.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enumerate persisted sessions, skipping restore")
		return
	}

	restored := 0
	for _, id := range ids {
		if !s.store.HasValid(id) {
			s.logger.Debug().Str("session_id", id).Msg("Skipping session without completed pairing")
			continue
		}

		if restored > 0 {
			select {
			case <-time.After(s.options.RestoreStagger):
			case <-ctx.Done():
				s.logger.Info().Msg("Startup restore cancelled")
				return
			}
		}

		s.logger.Info().Str("session_id", id).Msg("Restoring persisted session")
		if err := s.Connect(id); err != nil {
			s.logger.Warn().Str("session_id", id).Err(err).Msg("Failed to restore session")
			continue
		}
		s.metrics.SessionsRestored.Inc()
		restored++
	}

	s.logger.Info().Int("restored", restored).Int("candidates", len(ids)).Msg("Startup restore finished")
}
