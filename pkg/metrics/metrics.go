// Package metrics provides Prometheus metrics for ssh-control.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Remote fetch outcomes.
const (
	ResultHit     = "hit"
	ResultFetched = "fetched"
	ResultStale   = "stale"
	ResultError   = "error"
)

var (
	remoteFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshcontrol_remote_fetch_total",
			Help: "Remote host fragment requests by outcome",
		},
		[]string{"result"},
	)

	remoteFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sshcontrol_remote_fetch_duration_seconds",
			Help:    "Duration of network fetches of remote host fragments",
			Buckets: prometheus.DefBuckets,
		},
	)

	remoteCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sshcontrol_remote_cache_entries",
			Help: "Number of cached remote host fragments",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshcontrol_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sshcontrol_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteFetch counts one Fetch call. duration is only observed for
// calls that went to the network.
func RecordRemoteFetch(result string, duration time.Duration) {
	remoteFetchTotal.WithLabelValues(result).Inc()
	if result != ResultHit {
		remoteFetchDuration.Observe(duration.Seconds())
	}
}

func SetRemoteCacheEntries(n int) {
	remoteCacheEntries.Set(float64(n))
}

// RecordHTTPRequest records an API request. route is the mux pattern, not the
// raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
