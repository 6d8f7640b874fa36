// Package sqlite keeps named graph snapshots in a SQLite database.
//
// Each snapshot is stored row per node and row per edge, so a snapshot can be
// inspected with plain SQL. Saving a snapshot under an existing name replaces
// it in a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/persist"
)

// ErrSnapshotNotFound is returned by Load and Delete for unknown names.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const (
	kindEpisode   = "episode"
	kindSemantic  = "semantic"
	kindCommunity = "community"
)

// Snapshot describes a stored snapshot.
type Snapshot struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a snapshot store backed by a SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (or creates) the database at path and initialises the schema.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and serialises
	// writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	node_count INTEGER NOT NULL,
	edge_count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_nodes (
	snapshot TEXT NOT NULL REFERENCES snapshots(name) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	id       TEXT NOT NULL,
	payload  TEXT NOT NULL,
	seq      INTEGER,
	PRIMARY KEY (snapshot, kind, position)
);

CREATE TABLE IF NOT EXISTS snapshot_edges (
	snapshot  TEXT NOT NULL REFERENCES snapshots(name) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	id        TEXT NOT NULL,
	edge_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (snapshot, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_nodes_id ON snapshot_nodes(snapshot, id);
CREATE INDEX IF NOT EXISTS idx_snapshot_edges_type ON snapshot_edges(snapshot, edge_type);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	return addSeqColumn(ctx, db)
}

// addSeqColumn upgrades databases created before node creation order was
// stored. Their snapshots keep a NULL seq and load kind by kind.
func addSeqColumn(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('snapshot_nodes')`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return err
		}
		if col == "seq" {
			return rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `ALTER TABLE snapshot_nodes ADD COLUMN seq INTEGER`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes doc under name, replacing any snapshot with the same name.
func (s *Store) Save(ctx context.Context, name string, doc *persist.Document) error {
	if name == "" {
		return graph.NewValidationError("sqlite.Save", errors.New("snapshot name is empty"), nil)
	}
	if doc == nil {
		return graph.NewValidationError("sqlite.Save", errors.New("nil document"), map[string]any{"snapshot": name})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to replace snapshot %q: %w", name, err)
	}

	nodes := len(doc.Episodes) + len(doc.SemanticNodes) + len(doc.Communities)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (name, version, node_count, edge_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, doc.Version, nodes, len(doc.Edges), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to insert snapshot %q: %w", name, err)
	}

	nodeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_nodes (snapshot, position, kind, id, payload, seq) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	seqs := make(map[string]int, len(doc.NodeOrder))
	for i, id := range doc.NodeOrder {
		seqs[id] = i
	}
	insertNode := func(pos int, kind, id string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s node %q: %w", kind, id, err)
		}
		var seq sql.NullInt64
		if i, ok := seqs[id]; ok {
			seq = sql.NullInt64{Int64: int64(i), Valid: true}
		}
		if _, err := nodeStmt.ExecContext(ctx, name, pos, kind, id, string(payload), seq); err != nil {
			return fmt.Errorf("failed to insert %s node %q: %w", kind, id, err)
		}
		return nil
	}
	for i, n := range doc.Episodes {
		if err := insertNode(i, kindEpisode, n.ID, n); err != nil {
			return err
		}
	}
	for i, n := range doc.SemanticNodes {
		if err := insertNode(i, kindSemantic, n.ID, n); err != nil {
			return err
		}
	}
	for i, n := range doc.Communities {
		if err := insertNode(i, kindCommunity, n.ID, n); err != nil {
			return err
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_edges (snapshot, position, id, edge_type, source_id, target_id, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for i, e := range doc.Edges {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode edge %q: %w", e.ID, err)
		}
		if _, err := edgeStmt.ExecContext(ctx, name, i, e.ID, string(e.Type), e.SourceID, e.TargetID, string(payload)); err != nil {
			return fmt.Errorf("failed to insert edge %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %q: %w", name, err)
	}
	s.logger.Info("snapshot saved", "snapshot", name, "nodes", nodes, "edges", len(doc.Edges))
	return nil
}

// Load reads the snapshot stored under name. The returned document still has
// to go through persist.Load to become a graph.
func (s *Store) Load(ctx context.Context, name string) (*persist.Document, error) {
	doc := &persist.Document{
		Episodes:      []graph.EpisodeNode{},
		SemanticNodes: []graph.SemanticNode{},
		Communities:   []graph.CommunityNode{},
		Edges:         []graph.Edge{},
	}

	err := s.db.QueryRowContext(ctx, `SELECT version FROM snapshots WHERE name = ?`, name).Scan(&doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, payload, seq FROM snapshot_nodes WHERE snapshot = ? ORDER BY kind, position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	type seqID struct {
		seq int64
		id  string
	}
	var (
		order    []seqID
		complete = true
	)
	for rows.Next() {
		var (
			kind, id, payload string
			seq               sql.NullInt64
		)
		if err := rows.Scan(&kind, &id, &payload, &seq); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if err := appendNode(doc, kind, []byte(payload)); err != nil {
			return nil, graph.NewLoadError("sqlite.Load", err, map[string]any{"snapshot": name, "kind": kind})
		}
		if !seq.Valid {
			complete = false
			continue
		}
		order = append(order, seqID{seq: seq.Int64, id: id})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	if complete && len(order) > 0 {
		sort.Slice(order, func(i, j int) bool { return order[i].seq < order[j].seq })
		doc.NodeOrder = make([]string, len(order))
		for i, o := range order {
			doc.NodeOrder[i] = o.id
		}
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshot_edges WHERE snapshot = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var payload string
		if err := edgeRows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		var e graph.Edge
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, graph.NewLoadError("sqlite.Load", err, map[string]any{"snapshot": name, "kind": "edge"})
		}
		doc.Edges = append(doc.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}
	return doc, nil
}

func appendNode(doc *persist.Document, kind string, payload []byte) error {
	switch kind {
	case kindEpisode:
		var n graph.EpisodeNode
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		doc.Episodes = append(doc.Episodes, n)
	case kindSemantic:
		var n graph.SemanticNode
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		doc.SemanticNodes = append(doc.SemanticNodes, n)
	case kindCommunity:
		var n graph.CommunityNode
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		doc.Communities = append(doc.Communities, n)
	default:
		return fmt.Errorf("unknown node kind %q", kind)
	}
	return nil
}

// LoadGraph reads the snapshot and rebuilds the graph.
func (s *Store) LoadGraph(ctx context.Context, name string) (*graph.Store, error) {
	doc, err := s.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return persist.Load(doc)
}

// SaveGraph snapshots the graph under name.
func (s *Store) SaveGraph(ctx context.Context, name string, r graph.Reader) error {
	return s.Save(ctx, name, persist.Save(r))
}

// List returns all snapshots ordered by name.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, node_count, edge_count, created_at FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap    Snapshot
			created string
		)
		if err := rows.Scan(&snap.Name, &snap.Version, &snap.Nodes, &snap.Edges, &created); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at for %q: %w", snap.Name, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	return nil
}
