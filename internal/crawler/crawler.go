package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/peer-weaver/internal/graph"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
)

// PeerLister fetches the peer URLs a node advertises
type PeerLister interface {
	Nodes(ctx context.Context, url string) ([]string, error)
}

// Crawler walks the peer graph from a seed set
type Crawler struct {
	lister       PeerLister
	prober       Prober
	probeWorkers int
}

// NewCrawler creates a crawler; probeWorkers bounds concurrent health probes
func NewCrawler(lister PeerLister, prober Prober, probeWorkers int) *Crawler {
	if probeWorkers < 1 {
		probeWorkers = 1
	}
	return &Crawler{
		lister:       lister,
		prober:       prober,
		probeWorkers: probeWorkers,
	}
}

// Crawl discovers every healthy peer reachable from seeds. Per-peer failures
// are contained; the only error returned is ctx cancellation.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, tracker *metrics.Tracker) (*graph.CrawlGraph, error) {
	runID := uuid.NewString()
	tracker.SetRunID(runID)
	normalized := NormalizeAll("", seeds)
	builder := graph.NewBuilder(runID, normalized)
	visits := NewVisitCache(c.prober, tracker)
	worklist := NewWorklist()

	for _, seed := range normalized {
		if worklist.Push(seed) {
			tracker.IncrementNodesDiscovered()
		}
	}

	logrus.Infof("Crawl %s starting from %d seeds", runID, len(normalized))

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		u, ok := worklist.Pop()
		if !ok {
			break
		}

		candidates := c.fetchPeers(ctx, u, tracker)
		tracker.IncrementNodesExpanded()

		verdicts, err := c.resolveHealth(ctx, visits, candidates)
		if err != nil {
			return nil, err
		}

		for i, v := range candidates {
			if !verdicts[i] {
				continue
			}
			if builder.AddEdge(u, v) {
				tracker.IncrementEdgesRecorded()
				logrus.Debugf("Edge: %s -> %s", u, v)
			}
			if worklist.Push(v) {
				tracker.IncrementNodesDiscovered()
			}
		}
		logrus.Debugf("Expanded %s: %d candidates, %d queued", u, len(candidates), worklist.Size())
	}

	unhealthy := visits.Unhealthy()
	g := builder.Build(worklist.Known(), unhealthy)

	nodes, edges := g.Stats()
	logrus.Infof("Crawl %s finished: %d nodes, %d edges, %d probes, %d unhealthy",
		runID, nodes, edges, visits.Probes(), len(unhealthy))

	return g, nil
}

// fetchPeers returns u's normalized, deduplicated listing without u itself.
// A failed fetch yields no candidates.
func (c *Crawler) fetchPeers(ctx context.Context, u string, tracker *metrics.Tracker) []string {
	start := time.Now()
	raw, err := c.lister.Nodes(ctx, u)
	tracker.RecordListing(time.Since(start), err)

	if err != nil {
		logrus.Warnf("nodes: no listing from %s: %v", u, err)
		return nil
	}

	return NormalizeAll(u, raw)
}

// resolveHealth probes candidates concurrently through the visit cache.
// verdicts[i] belongs to candidates[i].
func (c *Crawler) resolveHealth(ctx context.Context, visits *VisitCache, candidates []string) ([]bool, error) {
	verdicts := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.probeWorkers)

	for i, v := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = visits.IsHealthy(gctx, v)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}
