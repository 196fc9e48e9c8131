// Package metrics exposes bot activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopbot"

// Metrics owns a private registry; it satisfies the observer interfaces of
// the telegram middleware, the cms client and the engine.
type Metrics struct {
	reg *prometheus.Registry

	updates         *prometheus.CounterVec
	updateDuration  *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	remoteCalls     *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	jobs            *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	renderFallbacks prometheus.Counter
}

// New registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates handled, by kind and status.",
		}, []string{"kind", "status"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Time spent in the update handler chain.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fsm_transitions_total",
			Help:      "Conversation state transitions.",
		}, []string{"from", "to", "action"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cms_requests_total",
			Help:      "Content service requests, by operation, collection and status.",
		}, []string{"op", "collection", "status"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cms_request_duration_seconds",
			Help:      "Content service request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "collection"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_jobs_total",
			Help:      "Queued conversation turns, by status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_job_duration_seconds",
			Help:      "Conversation turn run time, excluding queue wait.",
			Buckets:   prometheus.DefBuckets,
		}),
		renderFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_fallbacks_total",
			Help:      "Edits that fell back to sending a new message.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.updates, m.updateDuration,
		m.transitions,
		m.remoteCalls, m.remoteDuration,
		m.jobs, m.jobDuration,
		m.renderFallbacks,
	)
	return m
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "fail"
}

// ObserveUpdate records a handled Telegram update.
func (m *Metrics) ObserveUpdate(kind string, elapsed time.Duration, err error) {
	m.updates.WithLabelValues(kind, status(err)).Inc()
	m.updateDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveTransition records a state machine step.
func (m *Metrics) ObserveTransition(from, to, action string) {
	m.transitions.WithLabelValues(from, to, action).Inc()
}

// ObserveRenderFallback records an edit replaced by a new message.
func (m *Metrics) ObserveRenderFallback() {
	m.renderFallbacks.Inc()
}

// ObserveRemoteCall records a content service request.
func (m *Metrics) ObserveRemoteCall(op, collection string, elapsed time.Duration, err error) {
	m.remoteCalls.WithLabelValues(op, collection, status(err)).Inc()
	m.remoteDuration.WithLabelValues(op, collection).Observe(elapsed.Seconds())
}

// ObserveJob records a finished dispatcher job.
func (m *Metrics) ObserveJob(_ string, elapsed time.Duration, err error) {
	m.jobs.WithLabelValues(status(err)).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info(ctx, "app", "metrics.listen", slog.String("listen", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
