package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gharra/filed/internal/metrics"
)

func TestHealthzReflectsReadiness(t *testing.T) {
	m := metrics.New()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	m.SetReady(true)

	resp2, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	m := metrics.New()
	m.RecordRequest(1600, 1602)
	m.RecordBytesReceived(128)
	m.RecordFileAccepted()
	m.RecordFileVerified()
	m.ConnectionOpened()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "filed_requests_total")
	assert.Contains(t, string(body), "filed_files_accepted_total")
	assert.Contains(t, string(body), "filed_connected_clients")
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(1600, 1602)
		m.RecordBytesReceived(128)
		m.RecordFileAccepted()
		m.RecordFileVerified()
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.SetReady(true)
	})
}
