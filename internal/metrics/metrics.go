// Package metrics exposes sync pass outcomes on a private prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"order_sync/internal/domain"
)

const namespace = "order_sync"

type Recorder struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	orders      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	backfill    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync passes by mode and result.",
		}, []string{"mode", "result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders written by sync passes, split into new and updated.",
		}, []string{"mode", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of sync passes.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		backfill: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_total",
			Help:      "Single-order backfill attempts by result.",
		}, []string{"result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass per mode.",
		}, []string{"mode"}),
	}

	r.registry.MustRegister(
		r.runs,
		r.orders,
		r.duration,
		r.backfill,
		r.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveSync(mode domain.SyncMode, stats *domain.SyncStats, err error) {
	m := string(mode)

	result := "success"
	if err != nil {
		result = "failure"
	}
	r.runs.WithLabelValues(m, result).Inc()

	if stats != nil {
		r.orders.WithLabelValues(m, "new").Add(float64(stats.New))
		r.orders.WithLabelValues(m, "updated").Add(float64(stats.Updated))
		r.orders.WithLabelValues(m, "skipped").Add(float64(stats.Skipped))
		r.duration.WithLabelValues(m).Observe(stats.Duration.Seconds())
	}
	if err == nil {
		r.lastSuccess.WithLabelValues(m).SetToCurrentTime()
	}
}

func (r *Recorder) ObserveBackfill(ok bool) {
	if ok {
		r.backfill.WithLabelValues("success").Inc()
		return
	}
	r.backfill.WithLabelValues("failure").Inc()
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
