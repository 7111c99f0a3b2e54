package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// Two instances must not collide: each carries its own registry.
	a := NewMetrics()
	b := NewMetrics()
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.SessionsActive.Set(3)
	m.MessagesSentTotal.WithLabelValues("text").Inc()
	m.ConnectAttemptsTotal.WithLabelValues("connected").Add(2)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "wabridge_sessions_active 3")
	assert.Contains(t, body, `wabridge_messages_sent_total{kind="text"} 1`)
	assert.Contains(t, body, `wabridge_connect_attempts_total{outcome="connected"} 2`)
}
