package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	openWindows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "winsession",
			Subsystem: "registry",
			Name:      "windows",
			Help:      "Number of windows currently registered.",
		},
	)
	openTabs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "winsession",
			Subsystem: "registry",
			Name:      "tabs",
			Help:      "Number of tabs currently registered across all windows.",
		},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winsession",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry mutations by operation and whether they changed state.",
		}, []string{"op", "applied"},
	)
	saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winsession",
			Subsystem: "snapshot",
			Name:      "saves_total",
			Help:      "Snapshot save attempts by result.",
		}, []string{"result"},
	)
	restores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winsession",
			Subsystem: "snapshot",
			Name:      "restores_total",
			Help:      "Snapshot restore attempts by result (restored, empty, malformed, skipped, error).",
		}, []string{"result"},
	)
	snapshotBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "winsession",
			Subsystem: "snapshot",
			Name:      "bytes",
			Help:      "Size of encoded snapshots written to the store.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
	)
	truncated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winsession",
			Subsystem: "snapshot",
			Name:      "truncated_total",
			Help:      "Entries dropped from snapshots by the window and tab caps.",
		}, []string{"kind"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "winsession",
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events dropped because the delivery queue was full.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{openWindows, openTabs, operations, saves, restores, snapshotBytes, truncated, historyDropped}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer, used when the daemon
// registers into its own registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func SetCounts(windows, tabs int) {
	if regOK.Load() {
		openWindows.Set(float64(windows))
		openTabs.Set(float64(tabs))
	}
}

func IncOperation(op string, applied bool) {
	if regOK.Load() {
		a := "false"
		if applied {
			a = "true"
		}
		operations.WithLabelValues(op, a).Inc()
	}
}

func IncSave(result string) {
	if regOK.Load() {
		saves.WithLabelValues(result).Inc()
	}
}

func IncRestore(result string) {
	if regOK.Load() {
		restores.WithLabelValues(result).Inc()
	}
}

func ObserveSnapshotBytes(n int) {
	if regOK.Load() {
		snapshotBytes.Observe(float64(n))
	}
}

func AddTruncated(windows, tabs int) {
	if !regOK.Load() {
		return
	}
	if windows > 0 {
		truncated.WithLabelValues("window").Add(float64(windows))
	}
	if tabs > 0 {
		truncated.WithLabelValues("tab").Add(float64(tabs))
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}
