package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWith("canvasflow", reg, zap.NewNop()), reg
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/agent/execute", 200, 120*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/agent/execute", 500, 30*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "canvasflow_http_requests_total" {
			found = true
			assert.Len(t, f.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}

func TestCollector_RecordAgentStateTransition(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordAgentStateTransition("node-1", "working", "complete")
	c.RecordAgentStateTransition("node-1", "working", "complete")

	v := testutil.ToFloat64(c.agentStateTransitions.WithLabelValues("node-1", "working", "complete"))
	assert.Equal(t, 2.0, v)
}

func TestCollector_SessionGauge(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.channelSessionsActive))
}

func TestCollector_SnapshotHitMiss(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordSnapshotHit("memory")
	c.RecordSnapshotMiss("memory")
	c.RecordSnapshotMiss("memory")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotHits.WithLabelValues("memory")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.snapshotMisses.WithLabelValues("memory")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(99))
}
