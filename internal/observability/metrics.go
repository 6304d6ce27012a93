// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the collectors exported by a run. A nil *Metrics is valid and
// records nothing, so components never need to branch on whether metrics are on.
type Metrics struct {
	registry      *prometheus.Registry
	steps         *prometheus.CounterVec
	episodes      *prometheus.CounterVec
	launchTiers   *prometheus.CounterVec
	oracleLatency prometheus.Histogram
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "droidpilot",
			Name:      "steps_total",
			Help:      "Executed plan items by action type and outcome.",
		}, []string{"action", "status"}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "droidpilot",
			Name:      "episodes_total",
			Help:      "Terminated episodes by terminal reason.",
		}, []string{"reason"}),
		launchTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "droidpilot",
			Name:      "launch_tiers_total",
			Help:      "App launch tier attempts by tier and outcome.",
		}, []string{"tier", "status"}),
		oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "droidpilot",
			Name:      "oracle_latency_seconds",
			Help:      "Latency of plan oracle calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
	}
	m.registry.MustRegister(m.steps, m.episodes, m.launchTiers, m.oracleLatency)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAction counts one executed plan item.
func (m *Metrics) ObserveAction(action, status string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(action, status).Inc()
}

// ObserveEpisode counts one terminated episode.
func (m *Metrics) ObserveEpisode(reason string) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(reason).Inc()
}

// ObserveLaunchTier counts one launch tier attempt.
func (m *Metrics) ObserveLaunchTier(tier, status string) {
	if m == nil {
		return
	}
	m.launchTiers.WithLabelValues(tier, status).Inc()
}

// ObserveOracle records the duration of one oracle call.
func (m *Metrics) ObserveOracle(d time.Duration) {
	if m == nil {
		return
	}
	m.oracleLatency.Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics.", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
