package render

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/peer-weaver/internal/graph"
)

// Renderer turns a classified crawl into a graph description
type Renderer struct {
	avatars  *Avatars
	suffixes []string
	workers  int
}

// NewRenderer creates a renderer. avatars may be nil to skip images.
func NewRenderer(avatars *Avatars, suffixes []string, workers int) *Renderer {
	if workers < 1 {
		workers = 1
	}
	return &Renderer{avatars: avatars, suffixes: suffixes, workers: workers}
}

// Render builds the renderable nodes, saving avatars best-effort, and
// returns the document together with the nodes it describes.
func (r *Renderer) Render(ctx context.Context, urls []string, classified graph.Classified) (string, []Node) {
	nodes := make([]Node, len(urls))
	used := make(map[string]bool, len(urls))
	for i, u := range urls {
		nodes[i] = Node{URL: u, Key: uniqueKey(DisplayKey(u, r.suffixes), used)}
	}

	if r.avatars != nil {
		var g errgroup.Group
		g.SetLimit(r.workers)
		for i := range nodes {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				nodes[i].Image = r.avatars.Save(ctx, nodes[i].URL, nodes[i].Key)
				return nil
			})
		}
		_ = g.Wait()
	}

	return Document(nodes, classified), nodes
}

// uniqueKey returns key, or key-2, key-3... when an earlier peer already
// holds it. Keys name both the DOT node and the avatar file.
func uniqueKey(key string, used map[string]bool) string {
	candidate := key
	for n := 2; used[candidate]; n++ {
		candidate = key + "-" + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}
