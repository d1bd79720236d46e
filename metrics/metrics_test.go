package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionMetrics(t *testing.T) {
	m := New()

	m.ConnectionOpened("graphql-transport-ws", "token")
	m.ConnectionOpened("graphql-ws", "sharedSecret")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.connectionsActive))

	m.ConnectionClosed(4401, "client")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.closes.WithLabelValues("4401", "client")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsTotal.WithLabelValues("graphql-ws", "sharedSecret")))
}

func TestOperationAndMessageMetrics(t *testing.T) {
	m := New()

	m.OperationStarted()
	m.OperationStarted()
	m.OperationsEnded(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationsActive))

	m.Message(UpstreamToClient, "data", ActionRetagged)
	m.Message(UpstreamToClient, "data", ActionRetagged)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.messages.WithLabelValues(UpstreamToClient, "data", ActionRetagged)))
}

func TestForwarded(t *testing.T) {
	m := New()

	m.Forwarded(200, 10*time.Millisecond)
	m.Forwarded(0, time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.forwards.WithLabelValues("200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.forwards.WithLabelValues("error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ConnectionOpened("graphql-ws", "token")
		m.ConnectionClosed(1000, "upstream")
		m.Message(ClientToUpstream, "start", ActionForwarded)
		m.OperationStarted()
		m.OperationsEnded(3)
		m.Forwarded(500, time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ConnectionOpened("graphql-ws", "token")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "graphql_bridge_ws_connections_active 1"))
}
