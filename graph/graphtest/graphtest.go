// Package graphtest provides graph fixtures and rapid generators shared by
// the tests of packages that consume a graph.Store.
package graphtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Scenario returns the reference graph:
//
//	e1 -ACCESSES-> f1 -DEFINED_IN-> fn1 -RAISED_BY-> err1
//	e2 -ACCESSES-> fn1
func Scenario(t testing.TB) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mustAdd := func(_ string, err error) {
		t.Helper()
		require.NoError(t, err)
	}
	mustAdd(s.AddEpisode(graph.EpisodeNode{ID: "e1", InstanceID: "task-1", StepIndex: 0, Thought: "look at the file", Action: "open p.py", ActionType: "read", Observation: "file contents", Timestamp: &ts}))
	mustAdd(s.AddEpisode(graph.EpisodeNode{ID: "e2", InstanceID: "task-1", StepIndex: 1, Thought: "call the parser", Action: "run parse", ActionType: "execute", Observation: "ValueError"}))
	mustAdd(s.AddSemantic(graph.SemanticNode{ID: "f1", Type: graph.TypeFile, Name: "p.py", FilePath: "p.py", Summary: "parser module"}))
	mustAdd(s.AddSemantic(graph.SemanticNode{ID: "fn1", Type: graph.TypeFunction, Name: "parse", FilePath: "p.py", Attributes: graph.Attributes{"lines": graph.Int(12)}}))
	mustAdd(s.AddSemantic(graph.SemanticNode{ID: "err1", Type: graph.TypeErrorPattern, Name: "ValueError"}))
	mustAdd(s.AddEdge(graph.Edge{ID: "a1", Type: graph.EdgeAccesses, SourceID: "e1", TargetID: "f1", SourceEpisodeIDs: []string{"e1"}}))
	mustAdd(s.AddEdge(graph.Edge{ID: "d1", Type: graph.EdgeDefinedIn, SourceID: "f1", TargetID: "fn1", Fact: "parse is defined in p.py"}))
	mustAdd(s.AddEdge(graph.Edge{ID: "r1", Type: graph.EdgeRaisedBy, SourceID: "fn1", TargetID: "err1", Context: graph.Attributes{"line": graph.Int(40)}}))
	mustAdd(s.AddEdge(graph.Edge{ID: "a2", Type: graph.EdgeAccesses, SourceID: "e2", TargetID: "fn1"}))
	return s
}

// awkwardText holds strings that encoders tend to mangle: YAML scalars that
// resolve to other types, indicator characters, surrounding whitespace, line
// breaks, control characters and multi-byte text.
var awkwardText = []string{
	"", "yes", "No", "null", "~", "true", "0x1F", "0o17", "1e3", ".inf", "12:30",
	"- item", "key: value", "'single'", `"double"`, "# comment", "&anchor", "*alias", "!tag",
	" leading", "trailing ", "multi\nline\n", "line \nnext", "tab\tsep", "crlf\r\n", "nul\x00byte",
	"ünïcödé", "日本語のテキスト", "emoji 🙂", "para\u2028graph", "\ufeffbom", "rtl \u202e",
}

// TextGen draws arbitrary valid UTF-8, mixed with strings that are awkward
// for JSON and YAML encoders.
func TextGen() *rapid.Generator[string] {
	return rapid.OneOf(rapid.String(), rapid.SampledFrom(awkwardText))
}

// keyGen draws attribute keys, including non-ASCII ones.
func keyGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z_éß日本]{1,8}`)
}

// ValueGen draws attribute values up to the given nesting depth.
func ValueGen(depth int) *rapid.Generator[graph.Value] {
	return rapid.Custom(func(t *rapid.T) graph.Value {
		top := 2
		if depth > 0 {
			top = 4
		}
		switch rapid.IntRange(0, top).Draw(t, "kind") {
		case 0:
			return graph.String(TextGen().Draw(t, "str"))
		case 1:
			return graph.Number(rapid.Float64().Draw(t, "num"))
		case 2:
			return graph.Bool(rapid.Bool().Draw(t, "bool"))
		case 3:
			items := rapid.SliceOfN(ValueGen(depth-1), 0, 3).Draw(t, "list")
			return graph.List(items...)
		default:
			m := rapid.MapOfN(keyGen(), ValueGen(depth-1), 0, 3).Draw(t, "map")
			return graph.Map(m)
		}
	})
}

// AttributesGen draws small attribute bags.
func AttributesGen() *rapid.Generator[graph.Attributes] {
	return rapid.Custom(func(t *rapid.T) graph.Attributes {
		m := rapid.MapOfN(keyGen(), ValueGen(2), 0, 4).Draw(t, "attrs")
		if len(m) == 0 {
			return nil
		}
		return graph.Attributes(m)
	})
}

// Draw builds a random store that satisfies every invariant: episodes,
// semantic nodes (with dedup collisions), communities and edges between
// distinct existing nodes.
func Draw(t *rapid.T) *graph.Store {
	s := graph.NewStore()
	var ids []string
	var semantic []string

	step := 0
	addEpisodes := func(n int) {
		for ; n > 0; n-- {
			id, err := s.AddEpisode(graph.EpisodeNode{
				ID:          fmt.Sprintf("ep_%d", step),
				StepIndex:   step,
				InstanceID:  TextGen().Draw(t, "instance_id"),
				Thought:     TextGen().Draw(t, "thought"),
				Action:      TextGen().Draw(t, "action"),
				ActionType:  TextGen().Draw(t, "action_type"),
				Observation: TextGen().Draw(t, "observation"),
				State:       AttributesGen().Draw(t, "state"),
			})
			if err != nil {
				t.Fatalf("AddEpisode: %v", err)
			}
			ids = append(ids, id)
			step++
		}
	}
	addEpisodes(rapid.IntRange(0, 5).Draw(t, "episodes"))

	entities := rapid.IntRange(0, 8).Draw(t, "entities")
	for i := 0; i < entities; i++ {
		id, err := s.AddSemantic(graph.SemanticNode{
			Type:       rapid.SampledFrom(graph.SemanticTypes()).Draw(t, "type"),
			Name:       rapid.SampledFrom([]string{"parse", "Parser", "load", "reload", "cfg", "naïve", "解析", "yes", "null"}).Draw(t, "name"),
			FilePath:   rapid.SampledFrom([]string{"", "a.py", "pkg/b.py", "données/ü.py"}).Draw(t, "file"),
			Summary:    TextGen().Draw(t, "summary"),
			Attributes: AttributesGen().Draw(t, "attributes"),
		})
		if err != nil {
			t.Fatalf("AddSemantic: %v", err)
		}
		if s.NodeCount() > len(ids) {
			ids = append(ids, id)
			semantic = append(semantic, id)
		}
	}

	// Later trajectories interleave episodes with semantic nodes.
	addEpisodes(rapid.IntRange(0, 2).Draw(t, "late_episodes"))

	if len(semantic) > 0 && rapid.Bool().Draw(t, "community") {
		members := rapid.SliceOfNDistinct(rapid.SampledFrom(semantic), 1, len(semantic), rapid.ID[string]).Draw(t, "members")
		id, err := s.AddCommunity(graph.CommunityNode{
			ID:        "community_0",
			Name:      "cluster",
			Keywords:  []string{"k"},
			MemberIDs: members,
		})
		if err != nil {
			t.Fatalf("AddCommunity: %v", err)
		}
		ids = append(ids, id)
	}

	if len(ids) < 2 {
		return s
	}
	edges := rapid.IntRange(0, 12).Draw(t, "edges")
	for i := 0; i < edges; i++ {
		src := rapid.SampledFrom(ids).Draw(t, "source")
		dst := rapid.SampledFrom(ids).Draw(t, "target")
		if src == dst {
			continue
		}
		e := graph.Edge{
			ID:       fmt.Sprintf("edge_%d", i),
			Type:     rapid.SampledFrom(graph.EdgeTypes()).Draw(t, "edge_type"),
			SourceID: src,
			TargetID: dst,
			Fact:     TextGen().Draw(t, "fact"),
			Context:  AttributesGen().Draw(t, "context"),
		}
		if rapid.Bool().Draw(t, "weighted") {
			w := rapid.Float64().Draw(t, "weight")
			e.Weight = &w
		}
		if _, err := s.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return s
}
