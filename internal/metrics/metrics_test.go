package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Events(t *testing.T) {
	r := New()
	r.ObserveEvent("PHASE_SETUP", 10*time.Millisecond, nil)
	r.ObserveEvent("PHASE_SETUP", time.Millisecond, errors.New("boom"))
	r.ObserveEvent("PHASE_SETUP", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventFirings.WithLabelValues("PHASE_SETUP", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventFirings.WithLabelValues("PHASE_SETUP", "error")))
}

func TestRecorder_Requests(t *testing.T) {
	r := New()
	r.ObserveRequest("GET", "shop.item", 200, time.Millisecond)
	r.ObserveRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("GET", "shop.item", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.routeMisses))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveEvent("app.started", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rw_event_firings_total{event="app.started",outcome="ok"} 1`)
}
