package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpstream("candles", time.Millisecond, nil)
	m.ObserveTick(time.Second, 1, 10)
	m.FetchFailed("1H")
	m.SetRunning(true)
	m.SignalProduced("panda", "long")
	m.HTTPRequest("/health", "GET", 200)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveUpstream("candles", 10*time.Millisecond, nil)
	m.ObserveUpstream("candles", 10*time.Millisecond, errors.New("boom"))
	m.ObserveTick(time.Second, 2, 300)
	m.ObserveTick(time.Second, 0, 0)
	m.FetchFailed("4H")

	if got := testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("candles", "error")); got != 1 {
		t.Errorf("upstream errors = %v", got)
	}
	if got := testutil.ToFloat64(m.ScannerTicks); got != 1 {
		t.Errorf("empty ticks must not count, got %v", got)
	}
	if got := testutil.ToFloat64(m.ScannerRowsSaved); got != 300 {
		t.Errorf("rows saved = %v", got)
	}
	if got := testutil.ToFloat64(m.ScannerFailures.WithLabelValues("4H")); got != 1 {
		t.Errorf("failures = %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SignalProduced("custom", "flat")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `okxscan_signals_total{policy="custom",side="flat"} 1`) {
		t.Errorf("signals counter missing from output")
	}
}
