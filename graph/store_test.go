package graph

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEpisode(t *testing.T) {
	s := NewStore()

	id, err := s.AddEpisode(EpisodeNode{ID: "ep_1", StepIndex: 1, Thought: "t", Action: "a", Observation: "o"})
	require.NoError(t, err)
	assert.Equal(t, "ep_1", id)

	got, ok := s.Episode("ep_1")
	require.True(t, ok)
	assert.Equal(t, 1, got.StepIndex)
	assert.Equal(t, "a", got.Action)

	_, err = s.AddEpisode(EpisodeNode{})
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.AddEpisode(EpisodeNode{ID: "ep_1"})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, s.NodeCount())
}

func TestAddSemantic_AssignsDeterministicID(t *testing.T) {
	a := NewStore()
	b := NewStore()

	idA, err := a.AddSemantic(SemanticNode{Type: TypeFunction, Name: "parse", FilePath: "p.py"})
	require.NoError(t, err)
	idB, err := b.AddSemantic(SemanticNode{Type: TypeFunction, Name: "parse", FilePath: "p.py"})
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.Contains(t, idA, "function:")
}

func TestAddSemantic_DedupMerge(t *testing.T) {
	s := NewStore()

	first, err := s.AddSemantic(SemanticNode{
		ID:         "fn1",
		Type:       TypeFunction,
		Name:       "parse",
		FilePath:   "p.py",
		Summary:    "parses",
		Attributes: Attributes{"lines": Int(10), "lang": String("python")},
	})
	require.NoError(t, err)

	second, err := s.AddSemantic(SemanticNode{
		ID:         "fn1-again",
		Type:       TypeFunction,
		Name:       "parse",
		FilePath:   "p.py",
		Summary:    "parses the input file",
		Attributes: Attributes{"lines": Int(99), "async": Bool(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.NodeCount())

	got, ok := s.Semantic(first)
	require.True(t, ok)
	assert.True(t, got.Attributes["lines"].Equal(Int(10)), "existing keys are not overwritten")
	assert.True(t, got.Attributes["async"].Equal(Bool(false)), "new keys are added")
	assert.True(t, got.Attributes["lang"].Equal(String("python")))
	assert.Equal(t, "parses the input file", got.Summary)

	_, err = s.AddSemantic(SemanticNode{Type: TypeFunction, Name: "parse", FilePath: "p.py", Summary: "short"})
	require.NoError(t, err)
	got, _ = s.Semantic(first)
	assert.Equal(t, "parses the input file", got.Summary, "a shorter summary never replaces a longer one")
}

func TestAddSemantic_DedupKeyIsCaseSensitive(t *testing.T) {
	s := NewStore()
	a, err := s.AddSemantic(SemanticNode{Type: TypeClass, Name: "Parser"})
	require.NoError(t, err)
	b, err := s.AddSemantic(SemanticNode{Type: TypeClass, Name: "parser"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.NodeCount())
}

func TestAddSemantic_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store)
		node  SemanticNode
		cause error
	}{
		{
			name:  "unknown type",
			node:  SemanticNode{Type: "package", Name: "x"},
			cause: ErrUnknownNodeType,
		},
		{
			name:  "empty name",
			node:  SemanticNode{Type: TypeFile},
			cause: ErrInvalidArgument,
		},
		{
			name:  "invalid attribute",
			node:  SemanticNode{Type: TypeFile, Name: "a", Attributes: Attributes{"bad": {}}},
			cause: ErrInvalidArgument,
		},
		{
			name: "id used by an episode",
			setup: func(s *Store) {
				_, _ = s.AddEpisode(EpisodeNode{ID: "x"})
			},
			node:  SemanticNode{ID: "x", Type: TypeFile, Name: "a"},
			cause: ErrDuplicateID,
		},
		{
			name: "id used by a different entity",
			setup: func(s *Store) {
				_, _ = s.AddSemantic(SemanticNode{ID: "x", Type: TypeFile, Name: "a"})
			},
			node:  SemanticNode{ID: "x", Type: TypeFunction, Name: "a"},
			cause: ErrDuplicateID,
		},
		{
			name: "dedup hit whose id names another node",
			setup: func(s *Store) {
				_, _ = s.AddSemantic(SemanticNode{ID: "x", Type: TypeFile, Name: "a"})
				_, _ = s.AddSemantic(SemanticNode{ID: "y", Type: TypeFile, Name: "b"})
			},
			node:  SemanticNode{ID: "y", Type: TypeFile, Name: "a"},
			cause: ErrDuplicateID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			if tt.setup != nil {
				tt.setup(s)
			}
			before := s.NodeCount()

			_, err := s.AddSemantic(tt.node)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, tt.cause)
			assert.Equal(t, before, s.NodeCount())
		})
	}
}

func TestAddCommunity(t *testing.T) {
	s := scenarioStore(t)

	id, err := s.AddCommunity(CommunityNode{ID: "c1", Name: "parsing", MemberIDs: []string{"f1", "fn1"}})
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	c, ok := s.Community("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"f1", "fn1"}, c.MemberIDs)

	_, err = s.AddCommunity(CommunityNode{ID: "c2", MemberIDs: []string{"e1"}})
	assert.ErrorIs(t, err, ErrMissingMember, "episodes cannot be members")

	_, err = s.AddCommunity(CommunityNode{ID: "c3", MemberIDs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrMissingMember)

	_, err = s.AddCommunity(CommunityNode{ID: "fn1"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestAddEdge_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		edge      Edge
		cause     error
		invariant string
	}{
		{
			name:      "missing source",
			edge:      Edge{Type: EdgeCalls, SourceID: "ghost", TargetID: "fn1"},
			cause:     ErrMissingEndpoint,
			invariant: InvariantEndpoints,
		},
		{
			name:      "missing target",
			edge:      Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "ghost"},
			cause:     ErrMissingEndpoint,
			invariant: InvariantEndpoints,
		},
		{
			name:      "unknown type",
			edge:      Edge{Type: "USES", SourceID: "f1", TargetID: "fn1"},
			cause:     ErrUnknownEdgeType,
			invariant: InvariantClosedTypes,
		},
		{
			name:      "self loop",
			edge:      Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "fn1"},
			cause:     ErrSelfLoop,
			invariant: InvariantNoSelfLoop,
		},
		{
			name:      "duplicate id",
			edge:      Edge{ID: "a1", Type: EdgeCalls, SourceID: "fn1", TargetID: "f1"},
			cause:     ErrDuplicateEdgeID,
			invariant: InvariantUniqueEdgeID,
		},
		{
			name:      "invalid utf-8 fact",
			edge:      Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "f1", Fact: "calls \xff"},
			cause:     ErrInvalidText,
			invariant: InvariantWellFormedArg,
		},
		{
			name:      "invalid utf-8 context key",
			edge:      Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "f1", Context: Attributes{"k\xfe": String("v")}},
			cause:     ErrInvalidText,
			invariant: InvariantWellFormedArg,
		},
		{
			name:      "non-finite weight",
			edge:      Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "f1", Weight: ptr(math.Inf(1))},
			cause:     ErrInvalidArgument,
			invariant: InvariantWellFormedArg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scenarioStore(t)
			before := s.Edges()

			_, err := s.AddEdge(tt.edge)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, tt.cause)

			var gerr *Error
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.invariant, gerr.Invariant())

			assert.Equal(t, before, s.Edges(), "store must be unchanged")
			out, err := s.EdgesFor("fn1", Out)
			require.NoError(t, err)
			assert.Equal(t, []string{"r1"}, edgeIDs(out))
		})
	}
}

func TestAddEdge_Multigraph(t *testing.T) {
	s := scenarioStore(t)

	first, err := s.AddEdge(Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "f1"})
	require.NoError(t, err)
	second, err := s.AddEdge(Edge{Type: EdgeCalls, SourceID: "fn1", TargetID: "f1"})
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.True(t, s.HasEdge("fn1", "f1", EdgeCalls))
	assert.False(t, s.HasEdge("f1", "fn1", EdgeCalls))
	assert.Equal(t, 6, s.EdgeCount())
}

func TestEdgesFor(t *testing.T) {
	s := scenarioStore(t)

	out, err := s.EdgesFor("fn1", Out)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, edgeIDs(out))

	in, err := s.EdgesFor("fn1", In)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "a2"}, edgeIDs(in))

	both, err := s.EdgesFor("fn1", Both)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "r1", "a2"}, edgeIDs(both))

	_, err = s.EdgesFor("ghost", Both)
	assert.True(t, IsNotFound(err))

	_, err = s.EdgesFor("fn1", "sideways")
	assert.True(t, IsValidation(err))
}

func TestNodeLookup(t *testing.T) {
	s := scenarioStore(t)

	n, err := s.Node("fn1")
	require.NoError(t, err)
	assert.Equal(t, NodeSemantic, n.Kind())
	sn, ok := n.(SemanticNode)
	require.True(t, ok)
	assert.Equal(t, "parse", sn.Name)

	_, err = s.Node("ghost")
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok = s.Episode("fn1")
	assert.False(t, ok, "typed getters check the kind")

	id, ok := s.Resolve(DedupKey{Type: TypeFunction, Name: "parse", FilePath: "p.py"})
	assert.True(t, ok)
	assert.Equal(t, "fn1", id)

	order, ok := s.Order("fn1")
	assert.True(t, ok)
	assert.Equal(t, 3, order)
}

func TestReturnedValuesDoNotAlias(t *testing.T) {
	s := NewStore()
	_, err := s.AddSemantic(SemanticNode{ID: "a", Type: TypeFile, Name: "a", Attributes: Attributes{"k": String("v")}})
	require.NoError(t, err)

	got, _ := s.Semantic("a")
	got.Attributes["k"] = String("changed")
	got.Name = "changed"

	again, _ := s.Semantic("a")
	assert.Equal(t, "a", again.Name)
	assert.True(t, again.Attributes["k"].Equal(String("v")))
}

func TestClear(t *testing.T) {
	s := scenarioStore(t)
	s.Clear()

	assert.Zero(t, s.NodeCount())
	assert.Zero(t, s.EdgeCount())
	assert.False(t, s.Has("fn1"))

	_, err := s.AddSemantic(SemanticNode{ID: "fn1", Type: TypeFunction, Name: "parse", FilePath: "p.py"})
	require.NoError(t, err)
}

func TestErrorFormatting(t *testing.T) {
	err := NewValidationError("Store.AddEdge", ErrSelfLoop, map[string]any{"node_id": "x"})
	assert.Contains(t, err.Error(), "Store.AddEdge")
	assert.Contains(t, err.Error(), "self-loop")

	assert.True(t, errors.Is(err, &Error{Kind: KindValidation}))
	assert.False(t, errors.Is(err, &Error{Kind: KindLoad}))
	assert.False(t, IsNotFound(err))
}

func TestInvalidUTF8IsRejected(t *testing.T) {
	s := NewStore()
	_, err := s.AddSemantic(SemanticNode{Type: TypeFunction, Name: "buf", FilePath: "b.py"})
	require.NoError(t, err)

	adds := map[string]func() error{
		"episode id": func() error {
			_, err := s.AddEpisode(EpisodeNode{ID: "ep\xff"})
			return err
		},
		"episode observation": func() error {
			_, err := s.AddEpisode(EpisodeNode{ID: "ep_1", Observation: "read \xc3\x28"})
			return err
		},
		"episode state value": func() error {
			_, err := s.AddEpisode(EpisodeNode{ID: "ep_1", State: Attributes{"cwd": List(String("/tmp/\xff"))}})
			return err
		},
		"semantic name": func() error {
			_, err := s.AddSemantic(SemanticNode{Type: TypeFunction, Name: "buf\xff", FilePath: "b.py"})
			return err
		},
		"semantic file path": func() error {
			_, err := s.AddSemantic(SemanticNode{Type: TypeFile, Name: "b", FilePath: "b\xfe.py"})
			return err
		},
		"semantic attribute map key": func() error {
			_, err := s.AddSemantic(SemanticNode{Type: TypeFile, Name: "c.py", Attributes: Attributes{"meta": Map(map[string]Value{"\xff": Bool(true)})}})
			return err
		},
		"community keyword": func() error {
			_, err := s.AddCommunity(CommunityNode{ID: "c1", Keywords: []string{"ok", "\xfe"}})
			return err
		},
	}
	for name, add := range adds {
		t.Run(name, func(t *testing.T) {
			err := add()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, ErrInvalidText)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, 1, s.NodeCount(), "store must be unchanged")
		})
	}

	// Two names that differ only in their invalid bytes stay rejected rather
	// than collapsing onto one node.
	_, err = s.AddSemantic(SemanticNode{Type: TypeFunction, Name: "buf\xfe", FilePath: "b.py"})
	assert.ErrorIs(t, err, ErrInvalidText)
	assert.Len(t, s.Semantics(), 1)
}
