package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	writeWait               = 10 * time.Second
)

// WSDialerOptions configures a WebSocket dialer.
type WSDialerOptions struct {
	// URL is the sidecar base endpoint, e.g. ws://127.0.0.1:8546/session.
	URL string

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds lookup/send round trips when the caller's
	// context carries no deadline.
	RequestTimeout time.Duration
}

// WSDialer dials the protocol sidecar over WebSocket, one connection per
// session.
type WSDialer struct {
	options WSDialerOptions
	logger  zerolog.Logger
}

// NewWSDialer creates a dialer for the given sidecar endpoint.
func NewWSDialer(options WSDialerOptions, logger zerolog.Logger) (*WSDialer, error) {
	if options.URL == "" {
		return nil, fmt.Errorf("transport URL is required")
	}
	u, err := url.Parse(options.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid transport URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("transport URL must use ws or wss scheme, got %q", u.Scheme)
	}
	if options.HandshakeTimeout == 0 {
		options.HandshakeTimeout = defaultHandshakeTimeout
	}
	if options.RequestTimeout == 0 {
		options.RequestTimeout = defaultRequestTimeout
	}
	return &WSDialer{options: options, logger: logger}, nil
}

// Dial opens a sidecar connection for sessionID and starts its read
// loop. The returned transport's event stream stays open until the
// sidecar reports a close or the socket drops.
func (d *WSDialer) Dial(ctx context.Context, sessionID string, creds json.RawMessage, sink CredentialSink) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.options.HandshakeTimeout}
	endpoint := d.options.URL + "/" + url.PathEscape(sessionID)

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial transport sidecar: %w", err)
	}

	t := &wsTransport{
		sessionID:      sessionID,
		conn:           conn,
		sink:           sink,
		events:         make(chan Event, 16),
		pending:        make(map[string]chan Frame),
		requestTimeout: d.options.RequestTimeout,
		logger:         d.logger.With().Str("session_id", sessionID).Logger(),
	}

	open := command{Method: "open", SessionID: sessionID, Creds: creds}
	if err := t.writeCommand(open); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open transport session: %w", err)
	}

	go t.readLoop()
	return t, nil
}

// wsTransport is one live sidecar connection.
type wsTransport struct {
	sessionID      string
	conn           *websocket.Conn
	sink           CredentialSink
	events         chan Event
	requestTimeout time.Duration
	logger         zerolog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	closeOnce  sync.Once
	eventsOnce sync.Once
}

func (t *wsTransport) Events() <-chan Event {
	return t.events
}

// readLoop pumps sidecar frames until the socket dies. Lifecycle events
// go to the events channel, credential updates to the sink and command
// results to their waiting callers.
func (t *wsTransport) readLoop() {
	sawClosed := false
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn().Err(err).Msg("Transport socket error")
			}
			break
		}

		frame, err := DecodeFrame(message)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Skipping malformed transport frame")
			continue
		}

		switch frame.Event {
		case frameEventCreds:
			if t.sink != nil && len(frame.Credentials) > 0 {
				t.sink(frame.Credentials)
			}
		case frameEventResult:
			t.deliverResult(frame)
		default:
			ev, ok := frame.AsEvent()
			if !ok {
				t.logger.Debug().Str("event", frame.Event).Msg("Ignoring unknown transport event")
				continue
			}
			if _, closed := ev.(Closed); closed {
				sawClosed = true
			}
			t.events <- ev
			if sawClosed {
				t.finish()
				return
			}
		}
	}

	// Socket dropped without a closed frame: synthesize one so the
	// supervisor sees a retryable close.
	if !sawClosed {
		t.events <- Closed{Reason: "connection lost"}
	}
	t.finish()
}

// finish closes the event stream and fails any in-flight requests.
func (t *wsTransport) finish() {
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()

	t.eventsOnce.Do(func() { close(t.events) })
}

func (t *wsTransport) deliverResult(frame Frame) {
	t.pendingMu.Lock()
	ch, ok := t.pending[frame.ID]
	if ok {
		delete(t.pending, frame.ID)
	}
	t.pendingMu.Unlock()

	if !ok {
		t.logger.Debug().Str("request_id", frame.ID).Msg("Dropping result for unknown request")
		return
	}
	ch <- frame
	close(ch)
}

func (t *wsTransport) writeCommand(cmd command) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(cmd)
}

// roundTrip sends a command and waits for its correlated result frame.
func (t *wsTransport) roundTrip(ctx context.Context, cmd command) (Frame, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Frame{}, fmt.Errorf("failed to generate request id: %w", err)
	}
	cmd.ID = id

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.requestTimeout)
		defer cancel()
	}

	ch := make(chan Frame, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	if err := t.writeCommand(cmd); err != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return Frame{}, fmt.Errorf("failed to send %s command: %w", cmd.Method, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return Frame{}, fmt.Errorf("transport closed while waiting for %s result", cmd.Method)
		}
		if !frame.OK {
			return Frame{}, fmt.Errorf("%s failed: %s", cmd.Method, frame.Error)
		}
		return frame, nil
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return Frame{}, fmt.Errorf("%s timed out: %w", cmd.Method, ctx.Err())
	}
}

func (t *wsTransport) Lookup(ctx context.Context, address string) (bool, string, error) {
	frame, err := t.roundTrip(ctx, command{Method: "lookup", Address: address})
	if err != nil {
		return false, "", err
	}
	return frame.Exists, frame.Address, nil
}

func (t *wsTransport) SendText(ctx context.Context, address, text string) error {
	_, err := t.roundTrip(ctx, command{Method: "send_text", Address: address, Text: text})
	return err
}

func (t *wsTransport) SendDocument(ctx context.Context, address string, data []byte, filename, caption string) error {
	_, err := t.roundTrip(ctx, command{
		Method:   "send_document",
		Address:  address,
		Data:     data,
		Filename: filename,
		Caption:  caption,
	})
	return err
}

// Close tears the connection down. The read loop notices the closed
// socket and finishes the event stream.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
