package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
)

func TestEventsCountProtocolActivity(t *testing.T) {
	self, peer := address.New(1, 0), address.New(2, 0)
	added := testutil.ToFloat64(MembershipEvents.WithLabelValues("added"))
	removed := testutil.ToFloat64(MembershipEvents.WithLabelValues("removed"))
	readOK := testutil.ToFloat64(Operations.WithLabelValues("read", "coordinator", "success"))
	createFail := testutil.ToFloat64(Operations.WithLabelValues("create", "replica", "fail"))

	var ev Events
	ev.NodeAdded(self, peer)
	ev.NodeAdded(self, peer)
	ev.NodeRemoved(self, peer)
	ev.RingChanged(self, 4)
	ev.Operation(eventlog.Event{Op: "read", Coordinator: true, Success: true})
	ev.Operation(eventlog.Event{Op: "create"})

	assert.Equal(t, added+2, testutil.ToFloat64(MembershipEvents.WithLabelValues("added")))
	assert.Equal(t, removed+1, testutil.ToFloat64(MembershipEvents.WithLabelValues("removed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(RingSize))
	assert.Equal(t, readOK+1, testutil.ToFloat64(Operations.WithLabelValues("read", "coordinator", "success")))
	assert.Equal(t, createFail+1, testutil.ToFloat64(Operations.WithLabelValues("create", "replica", "fail")))
}

func TestInstrumentRecordsStatusClass(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("test", "4xx"))
	h := Instrument("test", http.HandlerFunc(http.NotFound))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("test", "4xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(InFlight.WithLabelValues("test")))
}

func TestMetricsHandlerExposesProtocolMetrics(t *testing.T) {
	SetBuildInfo("dev", "abc")
	Events{}.RingChanged(address.New(1, 0), 3)

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, name := range []string{"zephyrdht_ring_size 3", "zephyrdht_build_info", "zephyrdht_uptime_seconds"} {
		assert.True(t, strings.Contains(body, name), name)
	}
}
