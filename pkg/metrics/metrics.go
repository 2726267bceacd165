// Package metrics exposes the module's prometheus collectors and an
// optional standalone metrics listener.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the module records into. A nil *Metrics is
// safe to call; recording is skipped.
type Metrics struct {
	BuildInfo        *prometheus.GaugeVec
	ProviderRequests *prometheus.CounterVec
	ProviderRetries  *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	QueryDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New registers the module's collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "midpoint",
			Name:      "build_info",
			Help:      "Build information.",
		}, []string{"version", "commit"}),
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midpoint",
			Name:      "provider_requests_total",
			Help:      "Provider HTTP requests by endpoint family and outcome.",
		}, []string{"family", "outcome"}),
		ProviderRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midpoint",
			Name:      "provider_retries_total",
			Help:      "Provider request retries by endpoint family.",
		}, []string{"family"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midpoint",
			Name:      "provider_cache_hits_total",
			Help:      "Provider responses served from the local cache.",
		}, []string{"family"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "midpoint",
			Name:      "query_duration_seconds",
			Help:      "End-to-end meeting-point query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		registry: reg,
	}
}

// SetBuildInfo records the running version.
func (m *Metrics) SetBuildInfo(version, commit string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
}

// IncProviderRequest counts one provider call outcome ("ok", "error").
func (m *Metrics) IncProviderRequest(family, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(family, outcome).Inc()
}

// IncProviderRetry counts one retried provider attempt.
func (m *Metrics) IncProviderRetry(family string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(family).Inc()
}

// IncCacheHit counts one cache-served response.
func (m *Metrics) IncCacheHit(family string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(family).Inc()
}

// ObserveQueryDuration records one query latency.
func (m *Metrics) ObserveQueryDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.Observe(d.Seconds())
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics listener until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, log *slog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics listener: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	}
}
