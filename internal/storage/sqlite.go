package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage keeps the snapshot of the latest crawl run
type Storage struct {
	db *sql.DB
}

// NewStorage opens/creates the DB, initializes the schema and clears any
// snapshot left by a previous process
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := storage.reset(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reset snapshot: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		display_key TEXT NOT NULL,
		has_image INTEGER DEFAULT 0,
		position INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, url)
	);

	CREATE TABLE IF NOT EXISTS edges (
		run_id TEXT NOT NULL,
		from_url TEXT NOT NULL,
		to_url TEXT NOT NULL,
		bidirectional INTEGER DEFAULT 0,
		position INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, from_url, to_url)
	);

	CREATE TABLE IF NOT EXISTS unhealthy (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_run ON nodes(run_id);
	CREATE INDEX IF NOT EXISTS idx_edges_run ON edges(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) reset() error {
	_, err := s.db.Exec(`
		DELETE FROM unhealthy;
		DELETE FROM edges;
		DELETE FROM nodes;
		DELETE FROM runs;
	`)
	return err
}

// ReplaceRun overwrites the stored snapshot with run in one transaction
func (s *Storage) ReplaceRun(run *Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"unhealthy", "edges", "nodes", "runs"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO runs (run_id, started_at, finished_at) VALUES (?, ?, ?)",
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, node := range run.Nodes {
		if _, err := tx.Exec(
			"INSERT INTO nodes (run_id, url, display_key, has_image, position) VALUES (?, ?, ?, ?, ?)",
			run.RunID, node.URL, node.DisplayKey, node.HasImage, i,
		); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.URL, err)
		}
	}

	for i, edge := range run.Edges {
		if _, err := tx.Exec(
			"INSERT INTO edges (run_id, from_url, to_url, bidirectional, position) VALUES (?, ?, ?, ?, ?)",
			run.RunID, edge.From, edge.To, edge.Bidirectional, i,
		); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", edge.From, edge.To, err)
		}
	}

	for i, url := range run.Unhealthy {
		if _, err := tx.Exec(
			"INSERT INTO unhealthy (run_id, url, position) VALUES (?, ?, ?)",
			run.RunID, url, i,
		); err != nil {
			return fmt.Errorf("failed to insert unhealthy url: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// LatestRun returns the stored snapshot, or nil if no run completed yet
func (s *Storage) LatestRun() (*Run, error) {
	var run Run
	err := s.db.QueryRow("SELECT run_id, started_at, finished_at FROM runs LIMIT 1").
		Scan(&run.RunID, &run.StartedAt, &run.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.Query(
		"SELECT url, display_key, has_image FROM nodes WHERE run_id = ? ORDER BY position", run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	for rows.Next() {
		var node Node
		if err := rows.Scan(&node.URL, &node.DisplayKey, &node.HasImage); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		run.Nodes = append(run.Nodes, node)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	rows, err = s.db.Query(
		"SELECT from_url, to_url, bidirectional FROM edges WHERE run_id = ? ORDER BY position", run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	for rows.Next() {
		var edge Edge
		if err := rows.Scan(&edge.From, &edge.To, &edge.Bidirectional); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		run.Edges = append(run.Edges, edge)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	rows, err = s.db.Query("SELECT url FROM unhealthy WHERE run_id = ? ORDER BY position", run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unhealthy urls: %w", err)
	}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan unhealthy url: %w", err)
		}
		run.Unhealthy = append(run.Unhealthy, url)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating unhealthy urls: %w", err)
	}

	return &run, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
