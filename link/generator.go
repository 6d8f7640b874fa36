package link

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/graph/id"
)

// Rule names recorded in the context of generated edges.
const (
	RuleFile         = "file"
	RuleName         = "name"
	RuleCoOccurrence = "co_occurrence"
)

// Store is the subset of graph.Store the generator needs: read access plus
// edge insertion.
type Store interface {
	graph.Reader
	AddEdge(e graph.Edge) (string, error)
}

// Enricher is implemented by stores that accept attribute updates. Target
// enrichment only runs against an Enricher.
type Enricher interface {
	SetAttributes(nodeID string, attrs graph.Attributes) error
}

// maxRelatedInfo bounds the summary copied into latest_related_info, in runes.
const maxRelatedInfo = 200

// Generator proposes and inserts links between a semantic node and the most
// related other semantic nodes.
//
// Candidates are scored by three rules:
//   - same non-empty file path (RELATED_TO, weight 1.0)
//   - one name contains the other, case-insensitively, and the contained
//     name has at least MinNameLength characters (SIMILAR_TO, weight 0.6)
//   - both nodes were accessed by the same episode (RELATED_TO, weight 0.4)
//
// A candidate's score is the sum of its matched rule weights and its edge
// type comes from the first matched rule in that order.
type Generator struct {
	cfg     Config
	logger  *slog.Logger
	created metric.Int64Counter
	now     func() time.Time
}

// New creates a Generator with the default configuration.
func New(opts ...Option) *Generator {
	g := &Generator{
		cfg:    DefaultConfig(),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the generator's effective configuration.
func (g *Generator) Config() Config { return g.cfg }

type candidate struct {
	node     graph.SemanticNode
	score    float64
	rules    []string
	edgeType graph.EdgeType
}

// Generate links the semantic node nodeID to at most TopK other semantic
// nodes and returns the created edges in rank order. Candidates already
// joined to the node by an edge of the chosen type, in either direction,
// are skipped.
//
// Generate never fails: a missing or non-semantic node, or a lack of
// candidates, yields an empty result.
func (g *Generator) Generate(s Store, nodeID string) []graph.Edge {
	n, err := s.Node(nodeID)
	if err != nil {
		return nil
	}
	src, ok := n.(graph.SemanticNode)
	if !ok || g.cfg.TopK <= 0 {
		return nil
	}

	cooc := coAccessed(s, src.ID)
	var candidates []candidate
	for _, other := range s.Semantics() {
		if other.ID == src.ID {
			continue
		}
		c, ok := g.score(src, other, cooc)
		if !ok {
			continue
		}
		if s.HasEdge(src.ID, other.ID, c.edgeType) || s.HasEdge(other.ID, src.ID, c.edgeType) {
			continue
		}
		candidates = append(candidates, c)
	}

	// Semantics returns creation order, so a stable sort keeps older nodes
	// first among equal scores.
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	var created []graph.Edge
	for _, c := range candidates {
		if len(created) == g.cfg.TopK {
			break
		}
		e := g.edge(src, c)
		if _, err := s.AddEdge(e); err != nil {
			g.logger.Warn("link rejected by store",
				"source_id", src.ID,
				"target_id", c.node.ID,
				"error", err)
			continue
		}
		created = append(created, e)
	}

	if g.cfg.Evolve && len(created) > 0 {
		g.evolve(s, src, created)
	}

	if len(created) > 0 {
		g.logger.Debug("links generated",
			"node_id", src.ID,
			"candidates", len(candidates),
			"created", len(created))
		if g.created != nil {
			g.created.Add(context.Background(), int64(len(created)),
				metric.WithAttributes(attribute.String("node_type", string(src.Type))))
		}
	}
	return created
}

func (g *Generator) score(src, other graph.SemanticNode, cooc map[string]bool) (candidate, bool) {
	c := candidate{node: other}

	if src.FilePath != "" && src.FilePath == other.FilePath {
		c.score += g.cfg.FileWeight
		c.rules = append(c.rules, RuleFile)
		c.edgeType = graph.EdgeRelatedTo
	}
	if namesOverlap(src.Name, other.Name, g.cfg.MinNameLength) {
		c.score += g.cfg.NameWeight
		c.rules = append(c.rules, RuleName)
		if c.edgeType == "" {
			c.edgeType = graph.EdgeSimilarTo
		}
	}
	if cooc[other.ID] {
		c.score += g.cfg.CoOccurrenceWeight
		c.rules = append(c.rules, RuleCoOccurrence)
		if c.edgeType == "" {
			c.edgeType = graph.EdgeRelatedTo
		}
	}
	return c, len(c.rules) > 0
}

func (g *Generator) edge(src graph.SemanticNode, c candidate) graph.Edge {
	score := c.score
	rules := make([]graph.Value, len(c.rules))
	for i, r := range c.rules {
		rules[i] = graph.String(r)
	}
	return graph.Edge{
		ID:       id.Link(src.ID, c.node.ID, string(c.edgeType)),
		Type:     c.edgeType,
		SourceID: src.ID,
		TargetID: c.node.ID,
		Fact:     fmt.Sprintf("%s %s %s", src.Name, c.edgeType, c.node.Name),
		Weight:   &score,
		Context: graph.Attributes{
			"score": graph.Number(score),
			"rules": graph.List(rules...),
		},
	}
}

// evolve records src on the target of every created edge.
func (g *Generator) evolve(s Store, src graph.SemanticNode, created []graph.Edge) {
	en, ok := s.(Enricher)
	if !ok {
		g.logger.Warn("store does not accept attribute updates; enrichment skipped", "node_id", src.ID)
		return
	}
	entry := graph.Map(map[string]graph.Value{
		"node_id":  graph.String(src.ID),
		"name":     graph.String(src.Name),
		"added_at": graph.String(g.now().UTC().Format(time.RFC3339)),
	})
	for _, e := range created {
		n, err := s.Node(e.TargetID)
		if err != nil {
			continue
		}
		target, ok := n.(graph.SemanticNode)
		if !ok {
			continue
		}
		related, _ := target.Attributes["related_entities"].AsList()
		attrs := graph.Attributes{"related_entities": graph.List(append(related, entry)...)}
		if src.Summary != "" {
			attrs["latest_related_info"] = graph.String(truncateRunes(src.Summary, maxRelatedInfo))
		}
		if err := en.SetAttributes(target.ID, attrs); err != nil {
			g.logger.Warn("enrichment rejected by store",
				"source_id", src.ID,
				"target_id", target.ID,
				"error", err)
		}
	}
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// namesOverlap reports whether one name contains the other, ignoring case,
// where the contained name is at least minLen characters long.
func namesOverlap(a, b string, minLen int) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if utf8.RuneCountInString(b) >= minLen && strings.Contains(a, b) {
		return true
	}
	return utf8.RuneCountInString(a) >= minLen && strings.Contains(b, a)
}

// coAccessed returns the semantic nodes accessed by any episode that also
// accessed nodeID.
func coAccessed(s graph.Reader, nodeID string) map[string]bool {
	in, err := s.EdgesFor(nodeID, graph.In)
	if err != nil {
		return nil
	}
	out := make(map[string]bool)
	for _, e := range in {
		if e.Type != graph.EdgeAccesses {
			continue
		}
		ep, err := s.Node(e.SourceID)
		if err != nil || ep.Kind() != graph.NodeEpisode {
			continue
		}
		touched, err := s.EdgesFor(ep.NodeID(), graph.Out)
		if err != nil {
			continue
		}
		for _, t := range touched {
			if t.Type == graph.EdgeAccesses && t.TargetID != nodeID {
				out[t.TargetID] = true
			}
		}
	}
	return out
}
