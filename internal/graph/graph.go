package graph

import (
	"sync"
	"time"
)

// Edge is a directed "From lists To in its /nodes" relation
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Reverse returns the edge pointing the other way
func (e Edge) Reverse() Edge {
	return Edge{From: e.To, To: e.From}
}

// CrawlGraph is the point-in-time result of one crawl run
type CrawlGraph struct {
	RunID      string
	Seeds      []string
	Nodes      []string
	Edges      []Edge
	Unhealthy  []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Stats returns node and edge counts
func (g *CrawlGraph) Stats() (nodeCount, edgeCount int) {
	return len(g.Nodes), len(g.Edges)
}

// Builder accumulates the edges of one crawl run in memory
type Builder struct {
	runID     string
	seeds     []string
	startedAt time.Time
	edges     []Edge
	edgeSet   map[Edge]bool
	mu        sync.Mutex
}

// NewBuilder creates an empty builder for a run
func NewBuilder(runID string, seeds []string) *Builder {
	return &Builder{
		runID:     runID,
		seeds:     append([]string(nil), seeds...),
		startedAt: time.Now(),
		edgeSet:   make(map[Edge]bool),
	}
}

// AddEdge records a directed edge. Self-edges and repeats are ignored.
func (b *Builder) AddEdge(from, to string) bool {
	if from == to {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := Edge{From: from, To: to}
	if b.edgeSet[e] {
		return false
	}
	b.edgeSet[e] = true
	b.edges = append(b.edges, e)
	return true
}

// Build finalizes the run over the discovered nodes. Unhealthy URLs are
// dropped from the node set together with any edge touching them.
func (b *Builder) Build(discovered, unhealthy []string) *CrawlGraph {
	b.mu.Lock()
	defer b.mu.Unlock()

	bad := make(map[string]bool, len(unhealthy))
	for _, u := range unhealthy {
		bad[u] = true
	}

	nodes := make([]string, 0, len(discovered))
	for _, n := range discovered {
		if !bad[n] {
			nodes = append(nodes, n)
		}
	}

	edges := make([]Edge, 0, len(b.edges))
	for _, e := range b.edges {
		if !bad[e.From] && !bad[e.To] {
			edges = append(edges, e)
		}
	}

	return &CrawlGraph{
		RunID:      b.runID,
		Seeds:      b.seeds,
		Nodes:      nodes,
		Edges:      edges,
		Unhealthy:  append([]string(nil), unhealthy...),
		StartedAt:  b.startedAt,
		FinishedAt: time.Now(),
	}
}
