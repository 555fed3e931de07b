package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/peer-weaver/internal/crawler"
)

var (
	// ErrInvalidURL is returned for an empty URL or the node's own URL
	ErrInvalidURL = errors.New("invalid peer url")
	// ErrUnhealthy is returned when a peer fails its registration health check
	ErrUnhealthy = errors.New("peer failed health check")
)

// Peer is a live entry in the registry
type Peer struct {
	URL           string    `json:"url"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Announcer registers this node with a remote peer
type Announcer interface {
	Register(ctx context.Context, target, self string) error
}

// Registry is the continuously maintained set of peers this node advertises
// on GET /nodes. Entries are removed as soon as a health sweep fails them.
type Registry struct {
	self     string
	prober   crawler.Prober
	workers  int
	onChange func(size int)

	mu    sync.RWMutex
	peers map[string]*Peer
}

// New creates an empty registry for the node reachable at self
func New(self string, prober crawler.Prober, workers int) *Registry {
	if workers < 1 {
		workers = 1
	}
	return &Registry{
		self:    crawler.NormalizeURL(self),
		prober:  prober,
		workers: workers,
		peers:   make(map[string]*Peer),
	}
}

// OnChange installs a callback invoked with the new size after every mutation
func (r *Registry) OnChange(fn func(size int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register health-checks url and adds it. Re-registering refreshes the entry.
func (r *Registry) Register(ctx context.Context, url string) error {
	url = crawler.NormalizeURL(url)
	if url == "" || url == r.self {
		return ErrInvalidURL
	}

	if !r.prober.Probe(ctx, url) {
		return ErrUnhealthy
	}

	now := time.Now()
	r.mu.Lock()
	if p, ok := r.peers[url]; ok {
		p.LastCheckedAt = now
	} else {
		r.peers[url] = &Peer{URL: url, RegisteredAt: now, LastCheckedAt: now}
		logrus.Infof("registry: registered %s", url)
	}
	r.notifyLocked()
	r.mu.Unlock()

	return nil
}

// List returns the registered URLs in lexical order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]string, 0, len(r.peers))
	for url := range r.peers {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Peers returns a copy of every entry, ordered by URL
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, *p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].URL < peers[j].URL })
	return peers
}

// Sweep re-probes every peer and drops the ones that fail.
// Returns the removed URLs.
func (r *Registry) Sweep(ctx context.Context) []string {
	urls := r.List()
	healthy := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, url := range urls {
		g.Go(func() error {
			healthy[i] = r.prober.Probe(gctx, url)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil
	}

	now := time.Now()
	var removed []string

	r.mu.Lock()
	for i, url := range urls {
		p, ok := r.peers[url]
		if !ok {
			continue
		}
		if healthy[i] {
			p.LastCheckedAt = now
			continue
		}
		delete(r.peers, url)
		removed = append(removed, url)
		logrus.Infof("registry: removed %s after failed health check", url)
	}
	if len(removed) > 0 {
		r.notifyLocked()
	}
	r.mu.Unlock()

	return removed
}

// Run sweeps on every tick until ctx is cancelled
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.Sweep(ctx)
			logrus.Debugf("registry: sweep done, %d peers, %d removed", len(r.List()), len(removed))
		}
	}
}

// Announce registers self with every target. Failures are logged.
func Announce(ctx context.Context, announcer Announcer, targets []string, self string) {
	for _, target := range targets {
		target = crawler.NormalizeURL(target)
		if err := announcer.Register(ctx, target, self); err != nil {
			logrus.Warnf("registry: announce to %s failed: %v", target, err)
			continue
		}
		logrus.Infof("registry: announced %s to %s", self, target)
	}
}

func (r *Registry) notifyLocked() {
	if r.onChange != nil {
		r.onChange(len(r.peers))
	}
}
