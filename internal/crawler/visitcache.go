package crawler

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alvmarrod/peer-weaver/internal/metrics"
)

// VisitCache memoizes health verdicts for the lifetime of one crawl run.
// Concurrent first lookups of the same URL share a single probe.
type VisitCache struct {
	prober    Prober
	tracker   *metrics.Tracker
	flight    singleflight.Group
	mu        sync.RWMutex
	verdicts  map[string]bool
	unhealthy []string // first-probe order
}

// NewVisitCache creates an empty cache; tracker may be nil
func NewVisitCache(prober Prober, tracker *metrics.Tracker) *VisitCache {
	return &VisitCache{
		prober:   prober,
		tracker:  tracker,
		verdicts: make(map[string]bool),
	}
}

// IsHealthy returns the cached verdict for url, probing it on first use
func (vc *VisitCache) IsHealthy(ctx context.Context, url string) bool {
	if healthy, ok := vc.lookup(url); ok {
		return healthy
	}

	v, _, _ := vc.flight.Do(url, func() (interface{}, error) {
		// A previous flight may have finished between lookup and Do
		if healthy, ok := vc.lookup(url); ok {
			return healthy, nil
		}

		healthy := vc.prober.Probe(ctx, url)
		vc.tracker.RecordProbe(healthy)

		vc.mu.Lock()
		vc.verdicts[url] = healthy
		if !healthy {
			vc.unhealthy = append(vc.unhealthy, url)
		}
		vc.mu.Unlock()

		return healthy, nil
	})

	return v.(bool)
}

func (vc *VisitCache) lookup(url string) (healthy, ok bool) {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	healthy, ok = vc.verdicts[url]
	return healthy, ok
}

// Unhealthy lists URLs whose probe failed, in the order they were probed
func (vc *VisitCache) Unhealthy() []string {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return append([]string(nil), vc.unhealthy...)
}

// Probes returns how many distinct URLs have been probed
func (vc *VisitCache) Probes() int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return len(vc.verdicts)
}
