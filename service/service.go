// Package service serves the health check and prometheus metrics endpoints.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethereum-optimism/infra/op-specrunner/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080
)

// Config selects which servers run. A zero port picks a free one.
type Config struct {
	HealthzEnabled bool
	HealthzHost    string
	HealthzPort    int

	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int
}

type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *server
	Metrics *server
}

func New(cfg Config, logger log.Logger) *Service {
	logger = logger.New("component", "service")
	s := &Service{cfg: cfg, log: logger}
	if cfg.HealthzEnabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealthz)
		s.Healthz = newServer("healthz", mux, logger)
	}
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.Metrics = newServer("metrics", mux, logger)
	}
	return s
}

func (s *Service) Start() error {
	s.log.Info("Service starting")
	if s.Healthz != nil {
		if err := s.Healthz.Start(net.JoinHostPort(s.cfg.HealthzHost, strconv.Itoa(s.cfg.HealthzPort))); err != nil {
			metrics.RecordErrorDetails("healthz_start", err)
			return err
		}
	}
	if s.Metrics != nil {
		if err := s.Metrics.Start(net.JoinHostPort(s.cfg.MetricsHost, strconv.Itoa(s.cfg.MetricsPort))); err != nil {
			metrics.RecordErrorDetails("metrics_start", err)
			return errors.Join(err, s.shutdownHealthz(context.Background()))
		}
	}
	s.log.Info("Service started")
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("Service shutting down")
	var errs []error
	errs = append(errs, s.shutdownHealthz(ctx))
	if s.Metrics != nil {
		errs = append(errs, s.Metrics.Shutdown(ctx))
	}
	s.log.Info("Service stopped")
	return errors.Join(errs...)
}

func (s *Service) shutdownHealthz(ctx context.Context) error {
	if s.Healthz == nil {
		return nil
	}
	return s.Healthz.Shutdown(ctx)
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Received health check request", "path", r.URL.Path)
	_, _ = w.Write([]byte("OK"))
}
