// Package service runs the side HTTP servers of a test host: prometheus
// metrics and a health check.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum-optimism/infra/op-testhost/metrics"
)

const (
	HealthzPath = "/healthz"
	MetricsPath = "/metrics"
)

// Config locates the side servers. A zero port picks a free one.
type Config struct {
	Host        string
	MetricsPort int
	HealthzPort int
}

type Service struct {
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
}

// New creates the servers. A nil gatherer serves the prometheus default registry.
func New(logger log.Logger, gatherer prometheus.Gatherer) *Service {
	return &Service{
		log:     logger,
		Healthz: &HealthzServer{log: logger},
		Metrics: &MetricsServer{registry: gatherer},
	}
}

// Start binds both servers and serves them in the background.
func (s *Service) Start(cfg Config) error {
	s.log.Info("service starting")

	metricsAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.MetricsPort))
	if err := s.Metrics.Listen(metricsAddr); err != nil {
		metrics.RecordErrorDetails("metrics server", err)
		return fmt.Errorf("failed to bind metrics server to %s: %w", metricsAddr, err)
	}
	healthzAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.HealthzPort))
	if err := s.Healthz.Listen(healthzAddr); err != nil {
		_ = s.Metrics.Shutdown(context.Background())
		metrics.RecordErrorDetails("healthz server", err)
		return fmt.Errorf("failed to bind healthz server to %s: %w", healthzAddr, err)
	}

	go func() {
		s.log.Info("starting metrics server", "addr", s.Metrics.Addr())
		if err := s.Metrics.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error running metrics server", "err", err)
			metrics.RecordErrorDetails("metrics server", err)
		}
	}()

	go func() {
		s.log.Info("starting healthz server", "addr", s.Healthz.Addr())
		if err := s.Healthz.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error running healthz server", "err", err)
			metrics.RecordErrorDetails("healthz server", err)
		}
	}()

	s.log.Info("service started")
	return nil
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = s.Healthz.Shutdown(ctx)
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown(ctx)
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
