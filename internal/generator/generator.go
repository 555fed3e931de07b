package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/peer-weaver/internal/graph"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
	"github.com/alvmarrod/peer-weaver/internal/render"
	"github.com/alvmarrod/peer-weaver/internal/storage"
)

// GraphCrawler discovers the peer graph from a seed set
type GraphCrawler interface {
	Crawl(ctx context.Context, seeds []string, tracker *metrics.Tracker) (*graph.CrawlGraph, error)
}

// SnapshotStore keeps the latest run for inspection
type SnapshotStore interface {
	ReplaceRun(run *storage.Run) error
}

// Artifact is the outcome of one crawl and render cycle
type Artifact struct {
	RunID       string
	GeneratedAt time.Time
	Document    string
	Image       []byte
	Format      string
	DocPath     string
	ImagePath   string
	Nodes       int
	Edges       int
	Unhealthy   []string
}

// Options wires a Generator
type Options struct {
	Crawler     GraphCrawler
	Renderer    *render.Renderer
	Layout      render.Layout
	Store       SnapshotStore // optional
	Collectors  *metrics.Collectors
	Seeds       []string
	OutputDir   string
	Format      string
	MetricsPath string // optional
}

// Generator runs crawl -> classify -> render -> layout and persists the
// artifacts, overwriting the previous run
type Generator struct {
	opts Options
}

// New creates a generator
func New(opts Options) *Generator {
	return &Generator{opts: opts}
}

// Generate performs one full cycle. Peer failures are absorbed by the crawl;
// layout and artifact write failures abort the cycle.
func (g *Generator) Generate(ctx context.Context) (*Artifact, error) {
	var tracker *metrics.Tracker
	reason := "failed"
	defer func() {
		if tracker == nil {
			return
		}
		tracker.Finish(reason)
		logrus.Info("Crawl stats: " + tracker.LogProgress())
		if g.opts.MetricsPath != "" {
			if err := tracker.WriteToFile(g.opts.MetricsPath); err != nil {
				logrus.Errorf("Failed to write metrics: %v", err)
			}
		}
	}()

	tracker = metrics.NewTracker("", g.opts.Collectors)
	crawl, err := g.opts.Crawler.Crawl(ctx, g.opts.Seeds, tracker)
	if err != nil {
		reason = "cancelled"
		return nil, fmt.Errorf("crawl aborted: %w", err)
	}

	if len(crawl.Unhealthy) > 0 {
		logrus.Warnf("Bad URLs: %v", crawl.Unhealthy)
	}

	classified := graph.Classify(crawl.Edges)
	doc, nodes := g.opts.Renderer.Render(ctx, crawl.Nodes, classified)

	image, err := g.opts.Layout.Layout(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(g.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	docPath := filepath.Join(g.opts.OutputDir, "network.dot")
	if err := writeFileAtomic(docPath, []byte(doc)); err != nil {
		return nil, err
	}
	imagePath := filepath.Join(g.opts.OutputDir, "network."+g.opts.Format)
	if err := writeFileAtomic(imagePath, image); err != nil {
		return nil, err
	}

	if g.opts.Store != nil {
		if err := g.opts.Store.ReplaceRun(snapshot(crawl, classified, nodes)); err != nil {
			logrus.Errorf("Failed to store run snapshot: %v", err)
		}
	}

	reason = "completed"
	nodeCount, edgeCount := crawl.Stats()
	logrus.Infof("Generated %s (%d nodes, %d edges) for run %s", imagePath, nodeCount, edgeCount, crawl.RunID)

	return &Artifact{
		RunID:       crawl.RunID,
		GeneratedAt: crawl.FinishedAt,
		Document:    doc,
		Image:       image,
		Format:      g.opts.Format,
		DocPath:     docPath,
		ImagePath:   imagePath,
		Nodes:       nodeCount,
		Edges:       edgeCount,
		Unhealthy:   crawl.Unhealthy,
	}, nil
}

func snapshot(crawl *graph.CrawlGraph, classified graph.Classified, nodes []render.Node) *storage.Run {
	run := &storage.Run{
		RunID:      crawl.RunID,
		StartedAt:  crawl.StartedAt,
		FinishedAt: crawl.FinishedAt,
		Unhealthy:  crawl.Unhealthy,
	}
	for _, n := range nodes {
		run.Nodes = append(run.Nodes, storage.Node{URL: n.URL, DisplayKey: n.Key, HasImage: n.Image != ""})
	}
	for _, e := range classified.Unidirectional {
		run.Edges = append(run.Edges, storage.Edge{From: e.From, To: e.To})
	}
	for _, e := range classified.Bidirectional {
		run.Edges = append(run.Edges, storage.Edge{From: e.From, To: e.To, Bidirectional: true})
	}
	return run
}

// writeFileAtomic replaces path so readers never observe a partial artifact
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
