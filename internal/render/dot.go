package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alvmarrod/peer-weaver/internal/graph"
)

var schemePattern = regexp.MustCompile(`^https?://`)

// Node is a peer ready to be drawn
type Node struct {
	URL   string
	Key   string
	Image string // path of the saved avatar, empty when none
}

// DisplayKey derives a short label from a peer URL: the scheme and the first
// occurrence of each hosting suffix are removed and path separators become
// underscores so the key is also usable as a file name.
func DisplayKey(url string, suffixes []string) string {
	key := schemePattern.ReplaceAllString(url, "")
	for _, suffix := range suffixes {
		if suffix != "" {
			key = strings.Replace(key, suffix, "", 1)
		}
	}
	key = strings.ReplaceAll(key, "/", "_")
	if key == "" {
		return url
	}
	return key
}

const header = `digraph Network {
    layout=neato;
    overlap=voronoi;
    sep="-3.5";
    outputorder="edgesfirst";
    bgcolor="#ececec"
    splines=true;
    ratio=1;

    node [
        imagescale=true,
        fixedsize=true,
        shape=box,
        style=filled,
        fillcolor=white,
        fontcolor=blue,
        fontsize=11,
        labelloc=b,
        imagepos="tc",
        height="1.05",
        fontname="Helvetica-Bold",
        penwidth="0"
    ]

    edge [
        color="black"
    ]
`

// Document writes the graph description consumed by the layout tool.
// One-way links are plain arrows; mutual links are double-headed and dark red.
func Document(nodes []Node, classified graph.Classified) string {
	keys := make(map[string]string, len(nodes))
	for _, n := range nodes {
		keys[n.URL] = n.Key
	}
	keyOf := func(url string) string {
		if k, ok := keys[url]; ok {
			return k
		}
		return url
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	for _, n := range nodes {
		fmt.Fprintf(&b, "    %s [URL=%s", quote(n.Key), quote(n.URL))
		if n.Image != "" {
			fmt.Fprintf(&b, ", image=%s", quote(n.Image))
		}
		b.WriteString("]\n")
	}
	b.WriteString("\n")

	for _, e := range classified.Unidirectional {
		fmt.Fprintf(&b, "    %s -> %s\n", quote(keyOf(e.From)), quote(keyOf(e.To)))
	}
	for _, e := range classified.Bidirectional {
		fmt.Fprintf(&b, "    %s -> %s [dir=\"both\", color=darkred]\n", quote(keyOf(e.From)), quote(keyOf(e.To)))
	}

	b.WriteString("}\n")
	return b.String()
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
