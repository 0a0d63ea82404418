package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors for the worker tick loop. They are registered
// via Register.
var (
	regOK atomic.Bool

	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autosave",
			Subsystem: "worker",
			Name:      "ticks_total",
			Help:      "Number of completed ticks by outcome.",
		}, []string{"project", "status"},
	)
	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autosave",
			Subsystem: "worker",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a single tick's action invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"project"},
	)
	lastTick = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "autosave",
			Subsystem: "worker",
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the most recent tick attempt.",
		}, []string{"project"},
	)
)

// Register registers all collectors on r. Safe to call more than once.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range []prometheus.Collector{ticksTotal, tickDuration, lastTick} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// ObserveTick records one tick attempt.
func ObserveTick(project, status string, d time.Duration) {
	ticksTotal.WithLabelValues(project, status).Inc()
	tickDuration.WithLabelValues(project).Observe(d.Seconds())
	lastTick.WithLabelValues(project).SetToCurrentTime()
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr in the caller's goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
