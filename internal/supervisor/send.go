package supervisor

import (
	"context"
	"fmt"

	"github.com/harun/wabridge/internal/session"
	"github.com/harun/wabridge/internal/transport"
)

// connectedTransport returns the live transport for id, or
// ErrNotConnected when the session has no authenticated connection.
func (s *Supervisor) connectedTransport(id string) (transport.Transport, error) {
	rec, ok := s.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: session %s does not exist, call connect first", ErrNotConnected, id)
	}
	if rec.State() != session.StateConnected {
		return nil, fmt.Errorf("%w: session %s is %s", ErrNotConnected, id, rec.State())
	}
	t := rec.Transport()
	if t == nil {
		return nil, fmt.Errorf("%w: session %s has no transport", ErrNotConnected, id)
	}
	return t, nil
}

// resolveRecipient verifies the destination exists on the remote
// network and returns its canonical address.
func (s *Supervisor) resolveRecipient(ctx context.Context, t transport.Transport, address string) (string, error) {
	exists, canonical, err := t.Lookup(ctx, address)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", address, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrRecipientNotFound, address)
	}
	return canonical, nil
}

// SendText sends a text message from session id to address. The session
// must be connected; a successful send counts as activity and pushes
// out the idle eviction deadline.
func (s *Supervisor) SendText(ctx context.Context, id, address, text string) error {
	t, err := s.connectedTransport(id)
	if err != nil {
		return err
	}

	canonical, err := s.resolveRecipient(ctx, t, address)
	if err != nil {
		s.metrics.SendErrorsTotal.WithLabelValues("text").Inc()
		return err
	}

	if err := t.SendText(ctx, canonical, text); err != nil {
		s.metrics.SendErrorsTotal.WithLabelValues("text").Inc()
		return fmt.Errorf("failed to send message from session %s: %w", id, err)
	}

	s.evictor.MarkActivity(id)
	s.metrics.MessagesSentTotal.WithLabelValues("text").Inc()
	s.logger.Info().Str("session_id", id).Str("to", canonical).Msg("Message sent")
	return nil
}

// SendDocument sends a document with an optional caption from session
// id to address.
func (s *Supervisor) SendDocument(ctx context.Context, id, address string, data []byte, filename, caption string) error {
	t, err := s.connectedTransport(id)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("document payload is empty")
	}

	canonical, err := s.resolveRecipient(ctx, t, address)
	if err != nil {
		s.metrics.SendErrorsTotal.WithLabelValues("document").Inc()
		return err
	}

	if caption == "" {
		caption = fmt.Sprintf("Documento: %s", filename)
	}

	if err := t.SendDocument(ctx, canonical, data, filename, caption); err != nil {
		s.metrics.SendErrorsTotal.WithLabelValues("document").Inc()
		return fmt.Errorf("failed to send document from session %s: %w", id, err)
	}

	s.evictor.MarkActivity(id)
	s.metrics.MessagesSentTotal.WithLabelValues("document").Inc()
	s.logger.Info().
		Str("session_id", id).
		Str("to", canonical).
		Str("filename", filename).
		Int("size", len(data)).
		Msg("Document sent")
	return nil
}
