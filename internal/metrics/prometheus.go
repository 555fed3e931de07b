package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are the process-wide prometheus series. Each node owns its
// own registry so tests can build several without clashing.
type Collectors struct {
	registry    *prometheus.Registry
	crawlRuns   *prometheus.CounterVec
	runDuration prometheus.Histogram
	probes      *prometheus.CounterVec
	listings    *prometheus.CounterVec
	peers       prometheus.Gauge
}

// NewCollectors registers all series on a fresh registry
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		crawlRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerweaver",
			Name:      "crawl_runs_total",
			Help:      "Crawl and render cycles by termination reason.",
		}, []string{"reason"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "peerweaver",
			Name:      "crawl_run_duration_seconds",
			Help:      "Wall time of a crawl and render cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerweaver",
			Name:      "health_probes_total",
			Help:      "Peer health probes by result.",
		}, []string{"result"}),
		listings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerweaver",
			Name:      "peer_listings_total",
			Help:      "Peer /nodes fetches by result.",
		}, []string{"result"}),
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerweaver",
			Name:      "registry_peers",
			Help:      "Peers currently held in the live registry.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetRegistryPeers updates the live registry size gauge
func (c *Collectors) SetRegistryPeers(n int) {
	if c == nil {
		return
	}
	c.peers.Set(float64(n))
}

func (c *Collectors) observeRun(reason string, d time.Duration) {
	if c == nil {
		return
	}
	c.crawlRuns.WithLabelValues(reason).Inc()
	c.runDuration.Observe(d.Seconds())
}

func (c *Collectors) observeProbe(healthy bool) {
	if c == nil {
		return
	}
	c.probes.WithLabelValues(result(healthy)).Inc()
}

func (c *Collectors) observeListing(err error) {
	if c == nil {
		return
	}
	c.listings.WithLabelValues(result(err == nil)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
