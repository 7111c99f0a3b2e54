package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSidecar is an in-process WebSocket peer standing in for the
// protocol sidecar. Each accepted connection is handed to handle.
type fakeSidecar struct {
	t      *testing.T
	server *httptest.Server
	handle func(conn *websocket.Conn)
}

func newFakeSidecar(t *testing.T, handle func(conn *websocket.Conn)) *fakeSidecar {
	t.Helper()
	s := &fakeSidecar{t: t, handle: handle}
	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		s.handle(conn)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *fakeSidecar) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/session"
}

func readCommand(t *testing.T, conn *websocket.Conn) command {
	t.Helper()
	var cmd command
	require.NoError(t, conn.ReadJSON(&cmd))
	return cmd
}

func dialTestTransport(t *testing.T, sidecar *fakeSidecar, creds json.RawMessage, sink CredentialSink) Transport {
	t.Helper()
	dialer, err := NewWSDialer(WSDialerOptions{
		URL:            sidecar.url(),
		RequestTimeout: 2 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)

	tr, err := dialer.Dial(context.Background(), "main", creds, sink)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func waitEvent(t *testing.T, tr Transport) Event {
	t.Helper()
	select {
	case ev, ok := <-tr.Events():
		require.True(t, ok, "event stream closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return nil
	}
}

func TestNewWSDialer_ValidatesURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "ws scheme", url: "ws://127.0.0.1:8546/session"},
		{name: "wss scheme", url: "wss://sidecar.internal/session"},
		{name: "empty", url: "", wantErr: true},
		{name: "http scheme", url: "http://127.0.0.1:8546/session", wantErr: true},
		{name: "garbage", url: "://nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWSDialer(WSDialerOptions{URL: tt.url}, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDial_SendsOpenWithCredentials(t *testing.T) {
	opened := make(chan command, 1)
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		opened <- readCommand(t, conn)
		conn.ReadMessage()
	})

	dialTestTransport(t, sidecar, json.RawMessage(`{"identity":"5551234"}`), nil)

	select {
	case cmd := <-opened:
		assert.Equal(t, "open", cmd.Method)
		assert.Equal(t, "main", cmd.SessionID)
		assert.JSONEq(t, `{"identity":"5551234"}`, string(cmd.Creds))
	case <-time.After(2 * time.Second):
		t.Fatal("sidecar never received the open command")
	}
}

func TestTransport_DeliversLifecycleEvents(t *testing.T) {
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		readCommand(t, conn)
		require.NoError(t, conn.WriteJSON(Frame{Event: "pairing_code", Code: "2@abc"}))
		require.NoError(t, conn.WriteJSON(Frame{Event: "opened", Identity: "5551234"}))
		require.NoError(t, conn.WriteJSON(Frame{Event: "closed", Reason: "logged out", LoggedOut: true}))
	})

	tr := dialTestTransport(t, sidecar, nil, nil)

	assert.Equal(t, PairingCode{Code: "2@abc"}, waitEvent(t, tr))
	assert.Equal(t, Opened{Identity: "5551234"}, waitEvent(t, tr))
	assert.Equal(t, Closed{Reason: "logged out", LoggedOut: true}, waitEvent(t, tr))

	// The stream ends after the closed event.
	select {
	case _, ok := <-tr.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream never closed")
	}
}

func TestTransport_ForwardsCredentialUpdates(t *testing.T) {
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		readCommand(t, conn)
		require.NoError(t, conn.WriteJSON(Frame{
			Event:       "creds",
			Credentials: json.RawMessage(`{"identity":"5551234","keys":{}}`),
		}))
		conn.ReadMessage()
	})

	var mu sync.Mutex
	var saved json.RawMessage
	sink := func(creds json.RawMessage) {
		mu.Lock()
		saved = creds
		mu.Unlock()
	}

	dialTestTransport(t, sidecar, nil, sink)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(saved) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.JSONEq(t, `{"identity":"5551234","keys":{}}`, string(saved))
	mu.Unlock()
}

func TestTransport_LookupRoundTrip(t *testing.T) {
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		readCommand(t, conn)
		cmd := readCommand(t, conn)
		require.NoError(t, conn.WriteJSON(Frame{
			Event:   "result",
			ID:      cmd.ID,
			OK:      true,
			Exists:  true,
			Address: "5551234@s.whatsapp.net",
		}))
	})

	tr := dialTestTransport(t, sidecar, nil, nil)

	exists, address, err := tr.Lookup(context.Background(), "+5551234")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "5551234@s.whatsapp.net", address)
}

func TestTransport_SendTextFailureCarriesReason(t *testing.T) {
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		readCommand(t, conn)
		cmd := readCommand(t, conn)
		require.NoError(t, conn.WriteJSON(Frame{
			Event: "result",
			ID:    cmd.ID,
			Error: "rate limited",
		}))
	})

	tr := dialTestTransport(t, sidecar, nil, nil)

	err := tr.SendText(context.Background(), "5551234@s.whatsapp.net", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestTransport_RoundTripTimesOut(t *testing.T) {
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		readCommand(t, conn)
		readCommand(t, conn)
		// Never answer; the caller's deadline must fire.
		time.Sleep(time.Second)
	})

	tr := dialTestTransport(t, sidecar, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.SendText(ctx, "5551234@s.whatsapp.net", "hi")
	assert.Error(t, err)
}

func TestTransport_SocketDropSynthesizesClose(t *testing.T) {
	sidecar := newFakeSidecar(t, func(conn *websocket.Conn) {
		readCommand(t, conn)
		conn.Close()
	})

	tr := dialTestTransport(t, sidecar, nil, nil)

	ev := waitEvent(t, tr)
	closed, ok := ev.(Closed)
	require.True(t, ok)
	assert.False(t, closed.LoggedOut, "a dropped socket is retryable, not a logout")
}
