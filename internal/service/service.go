// Package service hosts the built-in scheduler mode: the recurring
// sync-then-push worker on the deadline pool, with optional Prometheus
// exposition. The crontab path registered at install time and this mode are
// alternatives; both run the same jobs.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/gitrepo"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/mirror"
	"github.com/gitmirror/gitmirror/internal/pool"
)

type Service struct {
	cfg         *config.Root
	log         *logging.Logger
	metricsAddr string
	singleShot  bool
}

func New(cfg *config.Root, logger *logging.Logger) *Service {
	return &Service{cfg: cfg, log: logger}
}

// WithMetricsAddr enables the Prometheus endpoint on addr.
func (s *Service) WithMetricsAddr(addr string) *Service {
	s.metricsAddr = addr
	return s
}

// WithSingleShot makes Run return after one iteration.
func (s *Service) WithSingleShot(singleShot bool) *Service {
	s.singleShot = singleShot
	return s
}

// Run blocks until ctx is cancelled, or until the single iteration finishes
// in single-shot mode.
func (s *Service) Run(ctx context.Context) error {
	syncJob, err := mirror.New(s.cfg, s.log)
	if err != nil {
		return err
	}
	auth, err := gitrepo.ResolveAuth(s.cfg, s.log)
	if err != nil {
		return err
	}
	pushJob := gitrepo.NewPushJob(s.cfg, auth, s.log)

	worker := NewWorker(syncJob, pushJob, s.log).
		WithInterval(time.Duration(s.cfg.Schedule.Interval)).
		WithSingleShot(s.singleShot)

	if s.metricsAddr != "" {
		go s.serveMetrics(ctx)
	}

	p := pool.New(1)
	p.Add("mirror-backup", worker.Execute)
	s.log.Infof("scheduler started, interval %s", s.cfg.Schedule.Interval)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-worker.Done():
		return nil
	}
}

func (s *Service) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: s.metricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infof("metrics listening on %s", s.metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Errorf("metrics server: %v", err)
	}
}
