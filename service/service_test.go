package service

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, addr net.Addr, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", addr, path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestService(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "testhost_service_test_total",
		Help: "test counter",
	}).Inc()

	cfg := Config{Host: "127.0.0.1"}
	svc := New(log.NewLogger(log.DiscardHandler()), reg)
	require.NoError(t, svc.Start(cfg))
	defer svc.Shutdown()

	code, body := get(t, svc.Healthz.Addr(), HealthzPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get(t, svc.Metrics.Addr(), MetricsPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "testhost_service_test_total 1")
}

func TestService_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := Config{Host: "127.0.0.1", MetricsPort: port}
	svc := New(log.NewLogger(log.DiscardHandler()), nil)
	err = svc.Start(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind metrics server")
}

func TestHealthzCORS(t *testing.T) {
	h := &HealthzServer{log: log.NewLogger(log.DiscardHandler())}
	require.NoError(t, h.Listen("127.0.0.1:0"))
	go h.Serve() //nolint:errcheck
	defer h.Shutdown(t.Context()) //nolint:errcheck

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s%s", h.Addr(), HealthzPath), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
