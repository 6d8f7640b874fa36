package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// scenarioStore builds the two-episode, three-entity graph used across the
// traversal and stats tests:
//
//	e1 -ACCESSES-> f1 -DEFINED_IN-> fn1 -RAISED_BY-> err1
//	e2 -ACCESSES-> fn1
func scenarioStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()

	for _, ep := range []EpisodeNode{
		{ID: "e1", StepIndex: 0, Thought: "look at the file", Action: "open p.py", Observation: "file contents"},
		{ID: "e2", StepIndex: 1, Thought: "call the parser", Action: "run parse", Observation: "ValueError"},
	} {
		_, err := s.AddEpisode(ep)
		require.NoError(t, err)
	}

	for _, sn := range []SemanticNode{
		{ID: "f1", Type: TypeFile, Name: "p.py", FilePath: "p.py"},
		{ID: "fn1", Type: TypeFunction, Name: "parse", FilePath: "p.py"},
		{ID: "err1", Type: TypeErrorPattern, Name: "ValueError"},
	} {
		_, err := s.AddSemantic(sn)
		require.NoError(t, err)
	}

	for _, e := range []Edge{
		{ID: "a1", Type: EdgeAccesses, SourceID: "e1", TargetID: "f1"},
		{ID: "d1", Type: EdgeDefinedIn, SourceID: "f1", TargetID: "fn1"},
		{ID: "r1", Type: EdgeRaisedBy, SourceID: "fn1", TargetID: "err1"},
		{ID: "a2", Type: EdgeAccesses, SourceID: "e2", TargetID: "fn1"},
	} {
		_, err := s.AddEdge(e)
		require.NoError(t, err)
	}
	return s
}

func edgeIDs(edges []Edge) []string {
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.ID
	}
	return ids
}

func ptr[T any](v T) *T { return &v }
