package metricsvc

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/swcache/core/cache"
)

// Recorder exposes the cache manager counters to Prometheus.
type Recorder struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	installs      *prometheus.CounterVec
	purged        prometheus.Counter
	notifications prometheus.Counter
}

var _ cache.Recorder = (*Recorder)(nil)

func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "fetches_total",
				Help:      "Intercepted requests by the source that served them.",
			},
			[]string{"source"},
		),
		installs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "installs_total",
				Help:      "Install attempts by version and outcome.",
			},
			[]string{"version", "success"},
		),
		purged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "generations_purged_total",
				Help:      "Stale cache generations deleted on activation.",
			},
		),
		notifications: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "push",
				Name:      "notifications_shown_total",
				Help:      "Notifications displayed from push payloads.",
			},
		),
	}
	r.registry.MustRegister(r.fetches, r.installs, r.purged, r.notifications)
	return r
}

func (r *Recorder) FetchServed(source cache.Source) {
	r.fetches.WithLabelValues(string(source)).Inc()
}

func (r *Recorder) InstallFinished(version string, ok bool) {
	r.installs.WithLabelValues(version, strconv.FormatBool(ok)).Inc()
}

func (r *Recorder) GenerationsPurged(n int) {
	r.purged.Add(float64(n))
}

func (r *Recorder) NotificationShown() {
	r.notifications.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
