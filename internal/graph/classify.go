package graph

// Classified partitions a crawl's edges by symmetry
type Classified struct {
	Bidirectional  []Edge
	Unidirectional []Edge
}

// Classify splits edges into mutual pairs and one-way links.
// A mutual pair is emitted once, in the direction first encountered;
// its reverse is absorbed. Everything else is one-way.
func Classify(edges []Edge) Classified {
	all := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		all[e] = true
	}

	seen := make(map[Edge]bool)
	var out Classified

	for _, e := range edges {
		if !all[e.Reverse()] {
			out.Unidirectional = append(out.Unidirectional, e)
			continue
		}
		if seen[e] || seen[e.Reverse()] {
			continue
		}
		seen[e] = true
		seen[e.Reverse()] = true
		out.Bidirectional = append(out.Bidirectional, e)
	}

	return out
}
