package crawler

import (
	"sync"
)

// Worklist is a FIFO frontier paired with the set of every URL ever
// accepted. A URL enters the frontier at most once per crawl run.
type Worklist struct {
	mu    sync.Mutex
	items []string
	known map[string]bool
	order []string
}

// NewWorklist creates an empty worklist
func NewWorklist() *Worklist {
	return &Worklist{
		items: make([]string, 0),
		known: make(map[string]bool),
	}
}

// Push adds url if it has never been seen.
// Returns true if added, false if duplicate.
func (w *Worklist) Push(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.known[url] {
		return false
	}

	w.known[url] = true
	w.order = append(w.order, url)
	w.items = append(w.items, url)
	return true
}

// Pop removes and returns the oldest unexpanded URL.
// Returns ("", false) once the frontier is drained.
func (w *Worklist) Pop() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) == 0 {
		return "", false
	}

	url := w.items[0]
	w.items = w.items[1:]
	return url, true
}

// Size returns the number of URLs waiting to be expanded
func (w *Worklist) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Known returns a snapshot of all accepted URLs in acceptance order
func (w *Worklist) Known() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	known := make([]string, len(w.order))
	copy(known, w.order)
	return known
}
