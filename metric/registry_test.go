package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "h"})
	require.NoError(t, registry.RegisterCounter("students", "dup_counter", counter))

	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter_2", Help: "h"})
	err := registry.RegisterCounter("students", "dup_counter", other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate metric registration")
}

func TestMetricsRegistry_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	a := prometheus.NewGauge(prometheus.GaugeOpts{Name: "same_name", Help: "h"})
	b := prometheus.NewGauge(prometheus.GaugeOpts{Name: "same_name", Help: "h"})
	require.NoError(t, registry.RegisterGauge("a", "g", a))

	err := registry.RegisterGauge("b", "g", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_UnregisterOwner(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterCounter("students", "c1",
		prometheus.NewCounter(prometheus.CounterOpts{Name: "students_c1", Help: "h"})))
	require.NoError(t, registry.RegisterGauge("students", "g1",
		prometheus.NewGauge(prometheus.GaugeOpts{Name: "students_g1", Help: "h"})))
	require.NoError(t, registry.RegisterGauge("schools", "g1",
		prometheus.NewGauge(prometheus.GaugeOpts{Name: "schools_g1", Help: "h"})))

	assert.Equal(t, 2, registry.UnregisterOwner("students"))
	assert.Equal(t, 0, registry.UnregisterOwner("students"))

	// the names are free again once the owner is gone
	require.NoError(t, registry.RegisterCounter("students", "c1",
		prometheus.NewCounter(prometheus.CounterOpts{Name: "students_c1", Help: "h"})))
	assert.Equal(t, 1, registry.UnregisterOwner("schools"))
}

func TestMetrics_Record(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.Metrics

	m.RecordBroadcast("students", 4, 1)
	m.RecordDeliveryFailure("students", "north")
	m.RecordProcessed("schools", "event", "success")
	m.RecordZoneStatus("north", true)
	m.RecordZoneStatus("south", false)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.EventsBroadcast.WithLabelValues("students")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsFailed.WithLabelValues("students")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures.WithLabelValues("students", "north")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesProcessed.WithLabelValues("schools", "event", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ZoneConnected.WithLabelValues("north")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ZoneConnected.WithLabelValues("south")))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.Metrics.RecordTick("students")

	healthy := true
	srv := NewServer(0, "", registry, func() (any, bool) {
		return map[string]string{"status": "ok"}, healthy
	})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)
	ticks, ok := families["zoneagent_scheduler_ticks_total"]
	require.True(t, ok, "scheduler ticks exported")
	require.Len(t, ticks.GetMetric(), 1)
	assert.Equal(t, "students", ticks.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, 1.0, ticks.GetMetric()[0].GetCounter().GetValue())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	healthy = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.Equal(t, "http://localhost:9090/metrics", srv.Address())
}
