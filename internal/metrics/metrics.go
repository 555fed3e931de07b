package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/peer-weaver/internal/storage"
)

// Tracker holds and manages metrics for one crawl run.
// All methods are safe on a nil Tracker.
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
	prom             *Collectors
}

// NewTracker creates a tracker for a run; prom may be nil
func NewTracker(runID string, prom *Collectors) *Tracker {
	return &Tracker{
		data: storage.Metrics{
			RunID:     runID,
			StartTime: time.Now(),
		},
		prom: prom,
	}
}

// SetRunID tags the metrics with the crawl run they describe
func (t *Tracker) SetRunID(runID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RunID = runID
}

// IncrementNodesDiscovered increments the discovered nodes counter
func (t *Tracker) IncrementNodesDiscovered() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.NodesDiscovered++
}

// IncrementNodesExpanded increments the expanded nodes counter
func (t *Tracker) IncrementNodesExpanded() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.NodesExpanded++
}

// IncrementEdgesRecorded increments the edges counter
func (t *Tracker) IncrementEdgesRecorded() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.EdgesRecorded++
}

// RecordListing records the outcome and duration of a /nodes fetch
func (t *Tracker) RecordListing(duration time.Duration, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.data.ListingsFailed++
	} else {
		t.data.ListingsFetched++
	}
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
	t.prom.observeListing(err)
}

// RecordProbe records the outcome of a health probe
func (t *Tracker) RecordProbe(healthy bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.ProbesIssued++
	if !healthy {
		t.data.ProbesFailed++
	}
	t.prom.observeProbe(healthy)
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	if t == nil {
		return storage.Metrics{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// Finish stamps the end of the run and reports it to prometheus
func (t *Tracker) Finish(reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}
	t.prom.observeRun(reason, t.data.EndTime.Sub(t.data.StartTime))
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path string) error {
	if t == nil {
		return nil
	}
	snapshot := t.GetSnapshot()

	t.mu.Lock()
	snapshot.EndTime = t.data.EndTime
	snapshot.TerminationReason = t.data.TerminationReason
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for a log line
func (t *Tracker) LogProgress() string {
	s := t.GetSnapshot()

	return fmt.Sprintf("Nodes: %d discovered, %d expanded | Edges: %d | Listings: %d fetched, %d failed | Probes: %d issued, %d failed",
		s.NodesDiscovered,
		s.NodesExpanded,
		s.EdgesRecorded,
		s.ListingsFetched,
		s.ListingsFailed,
		s.ProbesIssued,
		s.ProbesFailed,
	)
}
