package link

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/graph/graphtest"
)

func addSemantic(t *testing.T, s *graph.Store, n graph.SemanticNode) string {
	t.Helper()
	nodeID, err := s.AddSemantic(n)
	require.NoError(t, err)
	return nodeID
}

func targets(edges []graph.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.TargetID
	}
	return out
}

func TestGenerate_FileMatchRanksAboveNameMatch(t *testing.T) {
	s := graphtest.Scenario(t)
	addSemantic(t, s, graph.SemanticNode{ID: "lexer", Type: graph.TypeClass, Name: "Tokenizer", FilePath: "lex.py"})
	fn2 := addSemantic(t, s, graph.SemanticNode{ID: "fn2", Type: graph.TypeFunction, Name: "tokenize", FilePath: "p.py"})

	edges := New().Generate(s, fn2)

	require.Len(t, edges, 3)
	assert.Equal(t, []string{"f1", "fn1", "lexer"}, targets(edges))

	toFn1 := edges[1]
	assert.Equal(t, "fn2", toFn1.SourceID)
	assert.Equal(t, graph.EdgeRelatedTo, toFn1.Type)
	require.NotNil(t, toFn1.Weight)
	assert.Equal(t, 1.0, *toFn1.Weight)
	assert.True(t, toFn1.Context["rules"].Equal(graph.List(graph.String(RuleFile))))
	assert.Equal(t, "tokenize RELATED_TO parse", toFn1.Fact)

	nameOnly := edges[2]
	assert.Equal(t, graph.EdgeSimilarTo, nameOnly.Type)
	assert.Equal(t, 0.6, *nameOnly.Weight)
	assert.Greater(t, *toFn1.Weight, *nameOnly.Weight)

	for _, e := range edges {
		stored, ok := s.Edge(e.ID)
		require.True(t, ok, "generated edges are inserted")
		assert.Equal(t, e.Type, stored.Type)
	}
}

func TestGenerate_ScoresAddUp(t *testing.T) {
	s := graphtest.Scenario(t)
	args := addSemantic(t, s, graph.SemanticNode{Type: graph.TypeFunction, Name: "parse_args", FilePath: "p.py"})

	edges := New().Generate(s, args)

	require.NotEmpty(t, edges)
	assert.Equal(t, "fn1", edges[0].TargetID)
	assert.InDelta(t, 1.6, *edges[0].Weight, 1e-9)
	assert.Equal(t, graph.EdgeRelatedTo, edges[0].Type, "file rule takes priority")
	assert.True(t, edges[0].Context["rules"].Equal(graph.List(graph.String(RuleFile), graph.String(RuleName))))
}

func TestGenerate_CoOccurrence(t *testing.T) {
	s := graphtest.Scenario(t)
	cfg := addSemantic(t, s, graph.SemanticNode{ID: "cfg", Type: graph.TypeVariable, Name: "cfg"})
	_, err := s.AddEdge(graph.Edge{Type: graph.EdgeAccesses, SourceID: "e2", TargetID: cfg})
	require.NoError(t, err)

	edges := New().Generate(s, "fn1")

	assert.Equal(t, []string{"f1", "cfg"}, targets(edges))
	assert.Equal(t, graph.EdgeRelatedTo, edges[1].Type)
	assert.Equal(t, 0.4, *edges[1].Weight)
}

func TestGenerate_SkipsExistingTriplesInEitherDirection(t *testing.T) {
	s := graphtest.Scenario(t)
	fn2 := addSemantic(t, s, graph.SemanticNode{ID: "fn2", Type: graph.TypeFunction, Name: "tokenize", FilePath: "p.py"})
	_, err := s.AddEdge(graph.Edge{Type: graph.EdgeRelatedTo, SourceID: "fn1", TargetID: fn2})
	require.NoError(t, err)

	edges := New().Generate(s, fn2)
	assert.Equal(t, []string{"f1"}, targets(edges))

	again := New().Generate(s, fn2)
	assert.Empty(t, again, "a second pass finds every triple already present")
}

func TestGenerate_TopK(t *testing.T) {
	s := graph.NewStore()
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		addSemantic(t, s, graph.SemanticNode{Type: graph.TypeFunction, Name: name, FilePath: "same.py"})
	}
	src := addSemantic(t, s, graph.SemanticNode{Type: graph.TypeFunction, Name: "src", FilePath: "same.py"})

	assert.Len(t, New().Generate(s, src), 5)

	s2 := graph.NewStore()
	for _, name := range []string{"a", "b", "c"} {
		addSemantic(t, s2, graph.SemanticNode{Type: graph.TypeFunction, Name: name, FilePath: "same.py"})
	}
	src2 := addSemantic(t, s2, graph.SemanticNode{Type: graph.TypeFunction, Name: "src", FilePath: "same.py"})
	edges := New(WithTopK(2)).Generate(s2, src2)
	require.Len(t, edges, 2)
	ids := targets(edges)
	first, _ := s2.Resolve(graph.DedupKey{Type: graph.TypeFunction, Name: "a", FilePath: "same.py"})
	second, _ := s2.Resolve(graph.DedupKey{Type: graph.TypeFunction, Name: "b", FilePath: "same.py"})
	assert.Equal(t, []string{first, second}, ids, "ties go to the older node")
}

func TestGenerate_NoCandidates(t *testing.T) {
	s := graphtest.Scenario(t)

	assert.Empty(t, New().Generate(s, "missing"))
	assert.Empty(t, New().Generate(s, "e1"), "episodes are not linked")
	assert.Empty(t, New().Generate(s, "err1"))
	assert.Empty(t, New(WithTopK(0)).Generate(s, "fn1"))
}

func TestNamesOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"tokenize", "Tokenizer", true},
		{"parse", "parse_args", true},
		{"io", "io_utils", false},
		{"load", "reload", true},
		{"main", "domain", true},
		{"foo", "bar", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, namesOverlap(tt.a, tt.b, 3))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TopK = -1
	cfg.NameWeight = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
	assert.Contains(t, err.Error(), "name_weight")
}

// TestProperty_LinkBounds verifies that the generator never creates a
// self-loop and never more than TopK edges.
func TestProperty_LinkBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := graphtest.Draw(rt)
		semantics := s.Semantics()
		if len(semantics) == 0 {
			return
		}
		src := rapid.SampledFrom(semantics).Draw(rt, "source").ID
		k := rapid.IntRange(0, 6).Draw(rt, "k")
		before := s.EdgeCount()

		edges := New(WithTopK(k)).Generate(s, src)

		if len(edges) > k {
			rt.Fatalf("created %d edges, k=%d", len(edges), k)
		}
		if s.EdgeCount() != before+len(edges) {
			rt.Fatalf("edge count %d, want %d", s.EdgeCount(), before+len(edges))
		}
		for _, e := range edges {
			if e.SourceID == e.TargetID {
				rt.Fatalf("self-loop %s", e.ID)
			}
			if e.SourceID != src {
				rt.Fatalf("edge %s does not start at %s", e.ID, src)
			}
		}
	})
}

func TestGenerate_Evolve(t *testing.T) {
	s := graphtest.Scenario(t)
	summary := strings.Repeat("é", 250)
	fn2 := addSemantic(t, s, graph.SemanticNode{ID: "fn2", Type: graph.TypeFunction, Name: "tokenize", FilePath: "p.py", Summary: summary})
	fn3 := addSemantic(t, s, graph.SemanticNode{ID: "fn3", Type: graph.TypeFunction, Name: "render", FilePath: "p.py"})

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(WithEvolve(true), WithClock(func() time.Time { return at }))
	require.NotEmpty(t, g.Generate(s, fn2))
	require.NotEmpty(t, g.Generate(s, fn3))

	got, ok := s.Semantic("fn1")
	require.True(t, ok)
	assert.True(t, got.Attributes["lines"].Equal(graph.Int(12)), "existing attributes survive")

	related, ok := got.Attributes["related_entities"].AsList()
	require.True(t, ok)
	require.Len(t, related, 2)
	first, _ := related[0].AsMap()
	assert.True(t, first["node_id"].Equal(graph.String("fn2")))
	assert.True(t, first["name"].Equal(graph.String("tokenize")))
	assert.True(t, first["added_at"].Equal(graph.String("2024-03-01T12:00:00Z")))
	second, _ := related[1].AsMap()
	assert.True(t, second["node_id"].Equal(graph.String("fn3")))

	// fn3 has no summary, so the info left by fn2 stays.
	info, ok := got.Attributes["latest_related_info"].AsString()
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("é", 200), info)
}

func TestGenerate_EvolveOffByDefault(t *testing.T) {
	s := graphtest.Scenario(t)
	fn2 := addSemantic(t, s, graph.SemanticNode{ID: "fn2", Type: graph.TypeFunction, Name: "tokenize", FilePath: "p.py", Summary: "splits input"})

	require.NotEmpty(t, New().Generate(s, fn2))

	got, _ := s.Semantic("fn1")
	assert.NotContains(t, got.Attributes, "related_entities")
	assert.NotContains(t, got.Attributes, "latest_related_info")
}

// readOnlyStore hides SetAttributes from the generator.
type readOnlyStore struct{ Store }

func TestGenerate_EvolveWithoutEnricher(t *testing.T) {
	s := graphtest.Scenario(t)
	fn2 := addSemantic(t, s, graph.SemanticNode{ID: "fn2", Type: graph.TypeFunction, Name: "tokenize", FilePath: "p.py", Summary: "splits input"})

	edges := New(WithEvolve(true)).Generate(readOnlyStore{s}, fn2)
	require.NotEmpty(t, edges, "links are still created")

	got, _ := s.Semantic("fn1")
	assert.NotContains(t, got.Attributes, "related_entities")
}
