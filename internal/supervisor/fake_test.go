package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harun/wabridge/internal/transport"
)

// fakeTransport is a scriptable transport for supervisor tests.
type fakeTransport struct {
	events chan transport.Event

	mu           sync.Mutex
	closed       bool
	lookupExists bool
	canonical    string
	lookupErr    error
	sendErr      error
	sentTexts    []string
	sentDocs     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:       make(chan transport.Event, 16),
		lookupExists: true,
	}
}

func (f *fakeTransport) emit(ev transport.Event) {
	f.events <- ev
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeTransport) Lookup(ctx context.Context, address string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, "", f.lookupErr
	}
	canonical := f.canonical
	if canonical == "" {
		canonical = address
	}
	return f.lookupExists, canonical, nil
}

func (f *fakeTransport) SendText(ctx context.Context, address, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTexts = append(f.sentTexts, fmt.Sprintf("%s:%s", address, text))
	return nil
}

func (f *fakeTransport) SendDocument(ctx context.Context, address string, data []byte, filename, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentDocs = append(f.sentDocs, fmt.Sprintf("%s:%s:%d", address, filename, len(data)))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentTexts...)
}

// fakeDialer hands out fakeTransports and records every dial.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	transports []*fakeTransport
	sinks      []transport.CredentialSink
	lastCreds  json.RawMessage
	dialErr    error

	// onDial, when set, is invoked with the new transport before Dial
	// returns, letting tests script events.
	onDial func(t *fakeTransport)

	// blockUntil, when set, makes Dial wait until the channel is closed.
	blockUntil chan struct{}
	dialing    chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialing: make(chan struct{}, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, sessionID string, creds json.RawMessage, sink transport.CredentialSink) (transport.Transport, error) {
	d.mu.Lock()
	d.dials++
	d.lastCreds = creds
	blockUntil := d.blockUntil
	d.mu.Unlock()

	d.dialing <- struct{}{}
	if blockUntil != nil {
		<-blockUntil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}

	t := newFakeTransport()
	d.transports = append(d.transports, t)
	d.sinks = append(d.sinks, sink)
	if d.onDial != nil {
		d.onDial(t)
	}
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastTransport() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) lastSink() transport.CredentialSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sinks) == 0 {
		return nil
	}
	return d.sinks[len(d.sinks)-1]
}
