package service

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes a prometheus registry on /metrics.
type MetricsServer struct {
	registry prometheus.Gatherer
	server   *http.Server
	ln       net.Listener
}

func (m *MetricsServer) Listen(addr string) error {
	gatherer := m.registry
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.ln = ln
	m.server = &http.Server{Handler: mux}
	return nil
}

func (m *MetricsServer) Serve() error {
	return m.server.Serve(m.ln)
}

func (m *MetricsServer) Addr() net.Addr {
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
