// Package metrics exposes Prometheus collectors for feed polling and readiness.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradewatch/internal/feed"
)

const namespace = "tradewatch"

var statuses = []feed.Status{feed.StatusIdle, feed.StatusLoading, feed.StatusSuccess, feed.StatusError}

// Collectors groups every metric the dashboard exports. Each instance owns its
// registry so controllers and tests never share global state.
type Collectors struct {
	Registry *prometheus.Registry

	fetches      *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	skipped      *prometheus.CounterVec
	discarded    *prometheus.CounterVec
	refreshes    prometheus.Counter
	status       *prometheus.GaugeVec
	lastSuccess  *prometheus.GaugeVec
	ready        prometheus.Gauge
	fatal        prometheus.Gauge
	commands     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Completed feed fetches by outcome.",
		}, []string{"feed", "outcome"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of feed fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"feed"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because a fetch was already in flight.",
		}, []string{"feed"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "results_discarded_total",
			Help:      "Fetch results dropped because the feed was stopped.",
		}, []string{"feed"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "manual_refreshes_total",
			Help:      "Manual refresh requests.",
		}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "status",
			Help:      "1 for the current status of each feed, 0 otherwise.",
		}, []string{"feed", "status"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful fetch.",
		}, []string{"feed"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "ready",
			Help:      "1 once summary and positions have loaded.",
		}),
		fatal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "fatal_error",
			Help:      "1 while a fatal feed is failing.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "submissions_total",
			Help:      "Submitted commands by action and result.",
		}, []string{"action", "result"}),
	}

	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.fetches, c.fetchLatency, c.skipped, c.discarded, c.refreshes,
		c.status, c.lastSuccess, c.ready, c.fatal, c.commands,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// ObserveFetch records a settled fetch.
func (c *Collectors) ObserveFetch(name feed.Name, err error, took time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(feed.Classify(err, time.Time{}).Kind)
	}
	c.fetches.WithLabelValues(string(name), outcome).Inc()
	c.fetchLatency.WithLabelValues(string(name)).Observe(took.Seconds())
}

// TickSkipped counts a tick dropped by the in-flight guard.
func (c *Collectors) TickSkipped(name feed.Name) {
	c.skipped.WithLabelValues(string(name)).Inc()
}

// ResultDiscarded counts a result that arrived after the feed stopped.
func (c *Collectors) ResultDiscarded(name feed.Name) {
	c.discarded.WithLabelValues(string(name)).Inc()
}

// ManualRefresh counts RefreshAll calls.
func (c *Collectors) ManualRefresh() {
	c.refreshes.Inc()
}

// SetState mirrors a feed state into the status gauges.
func (c *Collectors) SetState(name feed.Name, st feed.State) {
	for _, s := range statuses {
		v := 0.0
		if s == st.Status {
			v = 1
		}
		c.status.WithLabelValues(string(name), string(s)).Set(v)
	}
	if st.HasValue() {
		c.lastSuccess.WithLabelValues(string(name)).Set(float64(st.LastUpdatedAt.Unix()))
	}
}

// SetReadiness mirrors the aggregate signal.
func (c *Collectors) SetReadiness(r feed.Readiness) {
	c.ready.Set(boolGauge(r.Ready))
	c.fatal.Set(boolGauge(r.FatalError))
}

// ObserveCommand counts a command submission.
func (c *Collectors) ObserveCommand(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.commands.WithLabelValues(action, result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
