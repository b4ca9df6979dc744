// Package metrics implements the ambient observability surface (component
// J): Prometheus counters and gauges for the dispatcher's traffic, exposed
// over a small chi mux alongside a readiness check.
//
// Metrics are built against a dedicated registry rather than the global
// one, with nil-safe methods so a disabled Metrics can be threaded through
// call sites unconditionally; HTTP routing uses go-chi/chi.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects request and transfer counters for the connection
// server and dispatcher. A nil *Metrics is valid and every method is a
// no-op against it, so callers need not branch on whether metrics are
// enabled.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	bytesReceived    prometheus.Counter
	filesAccepted    prometheus.Counter
	filesVerified    prometheus.Counter
	connectedClients prometheus.Gauge

	ready atomic.Bool
}

// New constructs a Metrics instance registered against its own Prometheus
// registry (not the global default registerer, so test processes that
// construct more than one Metrics don't collide on metric names).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filed_requests_total",
				Help: "Total requests handled, by opcode and response code.",
			},
			[]string{"opcode", "response_code"},
		),
		bytesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "filed_bytes_received_total",
			Help: "Total payload bytes read from clients.",
		}),
		filesAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "filed_files_accepted_total",
			Help: "Total files fully received and decrypted.",
		}),
		filesVerified: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "filed_files_verified_total",
			Help: "Total files confirmed by a matching client-side CRC.",
		}),
		connectedClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "filed_connected_clients",
			Help: "Number of currently open client connections.",
		}),
	}
}

// RecordRequest increments the per-opcode/response-code request counter.
func (m *Metrics) RecordRequest(opcode, responseCode uint16) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(opcodeLabel(opcode), responseCodeLabel(responseCode)).Inc()
}

// RecordBytesReceived adds n to the total payload bytes read.
func (m *Metrics) RecordBytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// RecordFileAccepted increments the accepted-files counter.
func (m *Metrics) RecordFileAccepted() {
	if m == nil {
		return
	}
	m.filesAccepted.Inc()
}

// RecordFileVerified increments the verified-files counter.
func (m *Metrics) RecordFileVerified() {
	if m == nil {
		return
	}
	m.filesVerified.Inc()
}

// ConnectionOpened increments the connected-clients gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectedClients.Inc()
}

// ConnectionClosed decrements the connected-clients gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectedClients.Dec()
}

// SetReady marks the connection server as having bound its listener, which
// flips /healthz from 503 to 200.
func (m *Metrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	m.ready.Store(ready)
}

// Handler returns a chi mux serving /healthz and /metrics.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", m.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

func (m *Metrics) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !m.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func opcodeLabel(opcode uint16) string {
	return strconv.Itoa(int(opcode))
}

func responseCodeLabel(code uint16) string {
	return strconv.Itoa(int(code))
}
