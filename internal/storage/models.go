package storage

import "time"

// Node represents a rendered peer in a crawl snapshot
type Node struct {
	URL        string `json:"url"`
	DisplayKey string `json:"key"`
	HasImage   bool   `json:"has_image"`
}

// Edge represents a directed or mutual link between two peers
type Edge struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Bidirectional bool   `json:"bidirectional"`
}

// Run is the stored snapshot of the most recent crawl
type Run struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	Unhealthy  []string  `json:"unhealthy"`
}

// Metrics tracks crawl statistics for export after each run
type Metrics struct {
	RunID             string    `json:"run_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	NodesDiscovered   int       `json:"nodes_discovered"`
	NodesExpanded     int       `json:"nodes_expanded"`
	EdgesRecorded     int       `json:"edges_recorded"`
	ListingsFetched   int       `json:"listings_fetched"`
	ListingsFailed    int       `json:"listings_failed"`
	ProbesIssued      int       `json:"probes_issued"`
	ProbesFailed      int       `json:"probes_failed"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
