package crawler

import (
	"strings"
)

// listingSuffix is the path peers sometimes advertise instead of their base URL
const listingSuffix = "/nodes"

// NormalizeURL canonicalizes a peer URL for comparison and deduplication.
// Surrounding space, trailing slashes and a trailing /nodes listing path are
// stripped until the value stops changing, so NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
func NormalizeURL(raw string) string {
	u := raw
	for {
		next := strings.TrimSpace(u)
		next = strings.TrimRight(next, "/")
		next = strings.TrimSuffix(next, listingSuffix)
		if next == u {
			return u
		}
		u = next
	}
}

// NormalizeAll normalizes urls, dropping empties, duplicates and self
func NormalizeAll(self string, urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string

	for _, raw := range urls {
		u := NormalizeURL(raw)
		if u == "" || u == self || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}

	return out
}
