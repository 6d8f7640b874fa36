package contextgraph

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zero-day-ai/contextgraph/builder"
	"github.com/zero-day-ai/contextgraph/export"
	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/link"
	"github.com/zero-day-ai/contextgraph/persist"
)

// Engine owns a graph store and the components that operate on it.
// It is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	cfg     engineConfig
	store   *graph.Store
	builder *builder.Builder
	linker  *link.Generator
}

// New creates an Engine with an empty graph.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.link.Validate(); err != nil {
		return nil, graph.NewValidationError("contextgraph.New", fmt.Errorf("link config: %w", err), nil)
	}

	e := &Engine{
		cfg: cfg,
		linker: link.New(
			link.WithConfig(cfg.link),
			link.WithLogger(cfg.logger),
			link.WithMeter(cfg.meter),
		),
	}
	if err := e.reset(graph.NewStore()); err != nil {
		return nil, err
	}
	return e, nil
}

// reset points the engine at s. Callers hold the write lock.
func (e *Engine) reset(s *graph.Store) error {
	opts := []builder.Option{
		builder.WithLogger(e.cfg.logger),
		builder.WithTracer(e.cfg.tracer),
		builder.WithMeter(e.cfg.meter),
	}
	if e.cfg.linkOnBuild {
		opts = append(opts, builder.WithLinker(e.linker))
	}
	if e.cfg.sourceIDs {
		opts = append(opts, builder.WithSourceIDs())
	}
	b, err := builder.New(s, opts...)
	if err != nil {
		return err
	}
	e.store = s
	e.builder = b
	return nil
}

// Build ingests trajectories in order. It stops at the first trajectory that
// fails validation; trajectories before it stay in the graph.
func (e *Engine) Build(ctx context.Context, ts ...builder.Trajectory) ([]*builder.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builder.BuildAll(ctx, ts)
}

// Link runs the link generator for one semantic node and returns the edges
// it created.
func (e *Engine) Link(nodeID string) []graph.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linker.Generate(e.store, nodeID)
}

// LinkAll runs the link generator for every semantic node in creation order
// and returns the number of edges created.
func (e *Engine) LinkAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.store.Semantics() {
		n += len(e.linker.Generate(e.store, s.ID))
	}
	return n
}

// Update runs fn with exclusive access to the store.
func (e *Engine) Update(fn func(s *graph.Store) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.store)
}

// View runs fn with shared read access to the graph.
func (e *Engine) View(fn func(r graph.Reader) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.store)
}

// Node returns a copy of the node with the given id.
func (e *Engine) Node(id string) (graph.Node, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Node(id)
}

// Subgraph returns the nodes within maxHops of startID and the edges among
// them.
func (e *Engine) Subgraph(startID string, maxHops int, opts ...graph.TraversalOption) (*graph.SubgraphResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return graph.Subgraph(e.store, startID, maxHops, opts...)
}

// NodesByType returns the semantic nodes of type t in creation order.
func (e *Engine) NodesByType(t graph.SemanticType) []graph.SemanticNode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.SemanticsByType(t)
}

// Invalidate marks an edge as no longer valid from at onwards; a zero at
// means now.
func (e *Engine) Invalidate(edgeID string, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Invalidate(edgeID, at)
}

// Stats counts nodes and edges.
func (e *Engine) Stats() graph.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return graph.ComputeStats(e.store)
}

// Snapshot returns the graph as a persistable document.
func (e *Engine) Snapshot() *persist.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return persist.Save(e.store)
}

// Restore replaces the graph with the one described by doc. On error the
// current graph is kept.
func (e *Engine) Restore(doc *persist.Document) error {
	s, err := persist.Load(doc)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.reset(s); err != nil {
		return err
	}
	e.cfg.logger.Info("graph restored", "nodes", s.NodeCount(), "edges", s.EdgeCount())
	return nil
}

// Save writes the graph as a document.
func (e *Engine) Save(w io.Writer, f persist.Format) error {
	return persist.EncodeDocument(w, e.Snapshot(), f)
}

// Load replaces the graph with the document read from rd.
func (e *Engine) Load(rd io.Reader, f persist.Format) error {
	doc, err := persist.DecodeDocument(rd, f)
	if err != nil {
		return err
	}
	return e.Restore(doc)
}

// SaveFile writes the graph to path; the extension selects the format.
func (e *Engine) SaveFile(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return persist.SaveFile(path, e.store)
}

// LoadFile replaces the graph with the document at path.
func (e *Engine) LoadFile(path string) error {
	s, err := persist.LoadFile(path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reset(s)
}

// Cypher exports the graph as Cypher statements.
func (e *Engine) Cypher() []export.Statement {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return export.Cypher(e.store)
}

// Notes exports one memory note per semantic node.
func (e *Engine) Notes() []export.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return export.Notes(e.store)
}

// Clear removes every node and edge.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Clear()
}
