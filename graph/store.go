package graph

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/contextgraph/graph/id"
)

// Reader is the read-only view of a graph used by traversal, statistics,
// persistence and exports.
type Reader interface {
	// Node returns the node with the given id or a not-found error.
	Node(id string) (Node, error)

	// Order returns the creation order of a node.
	Order(id string) (int, bool)

	// EdgeOrder returns the insertion order of an edge.
	EdgeOrder(id string) (int, bool)

	// EdgesFor returns the edges incident to a node, in insertion order.
	EdgesFor(id string, dir Direction) ([]Edge, error)

	// HasEdge reports whether an edge with the given triple exists.
	HasEdge(sourceID, targetID string, t EdgeType) bool

	Nodes() []Node
	Episodes() []EpisodeNode
	Semantics() []SemanticNode
	Communities() []CommunityNode
	Edges() []Edge
	NodeCount() int
	EdgeCount() int
}

type slot struct {
	kind      NodeKind
	episode   EpisodeNode
	semantic  SemanticNode
	community CommunityNode
}

func (s slot) id() string {
	switch s.kind {
	case NodeEpisode:
		return s.episode.ID
	case NodeSemantic:
		return s.semantic.ID
	default:
		return s.community.ID
	}
}

func (s slot) node() Node {
	switch s.kind {
	case NodeEpisode:
		return s.episode.clone()
	case NodeSemantic:
		return s.semantic.clone()
	default:
		return s.community.clone()
	}
}

type triple struct {
	source, target int
	typ            EdgeType
}

// Store holds the nodes and edges of one context graph and enforces its
// invariants on every mutation. Nodes live in an arena addressed by dense
// handles; string ids are only used at the boundary.
//
// Store performs no locking. Mutations must be serialized by the caller and
// must not run concurrently with reads.
type Store struct {
	nodes    []slot
	byID     map[string]int
	dedup    map[DedupKey]int
	edges    []Edge
	edgeByID map[string]int
	out      [][]int
	in       [][]int
	triples  map[triple]int
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.Clear()
	return s
}

// Clear removes every node and edge.
func (s *Store) Clear() {
	s.nodes = nil
	s.byID = make(map[string]int)
	s.dedup = make(map[DedupKey]int)
	s.edges = nil
	s.edgeByID = make(map[string]int)
	s.out = nil
	s.in = nil
	s.triples = make(map[triple]int)
}

func (s *Store) addSlot(nodeID string, sl slot) int {
	h := len(s.nodes)
	s.nodes = append(s.nodes, sl)
	s.byID[nodeID] = h
	s.out = append(s.out, nil)
	s.in = append(s.in, nil)
	return h
}

// AddEpisode inserts an episode node.
func (s *Store) AddEpisode(n EpisodeNode) (string, error) {
	const op = "Store.AddEpisode"
	if n.ID == "" {
		return "", violation(op, ErrInvalidArgument, InvariantWellFormedArg, "field", "id")
	}
	if f := n.invalidText(); f != "" {
		return "", violation(op, ErrInvalidText, InvariantWellFormedArg, "node_id", n.ID, "field", f)
	}
	if err := n.State.Validate(); err != nil {
		return "", attrViolation(op, err, "node_id", n.ID)
	}
	if _, ok := s.byID[n.ID]; ok {
		return "", violation(op, ErrDuplicateID, InvariantUniqueID, "node_id", n.ID)
	}
	s.addSlot(n.ID, slot{kind: NodeEpisode, episode: n.clone()})
	return n.ID, nil
}

// AddSemantic inserts a semantic node, or resolves it to the existing node
// with the same dedup key. On a dedup hit the new attributes are merged in
// without overwriting present keys, a longer summary replaces a shorter one,
// and the existing id is returned.
//
// An empty id is replaced by the deterministic id of the dedup key. An id
// that already names a different node is rejected.
func (s *Store) AddSemantic(n SemanticNode) (string, error) {
	const op = "Store.AddSemantic"
	if !n.Type.Valid() {
		return "", violation(op, ErrUnknownNodeType, InvariantClosedTypes, "node_id", n.ID, "node_type", string(n.Type))
	}
	if n.Name == "" {
		return "", violation(op, ErrInvalidArgument, InvariantWellFormedArg, "node_id", n.ID, "field", "name")
	}
	if f := n.invalidText(); f != "" {
		return "", violation(op, ErrInvalidText, InvariantWellFormedArg, "node_id", n.ID, "field", f)
	}
	if err := n.Attributes.Validate(); err != nil {
		return "", attrViolation(op, err, "node_id", n.ID)
	}

	key := n.DedupKey()
	if h, ok := s.dedup[key]; ok {
		existing := &s.nodes[h].semantic
		if n.ID != "" && n.ID != existing.ID {
			if _, taken := s.byID[n.ID]; taken {
				return "", violation(op, ErrDuplicateID, InvariantUniqueID, "node_id", n.ID, "resolved_id", existing.ID)
			}
		}
		mergeSemantic(existing, n)
		return existing.ID, nil
	}

	if n.ID == "" {
		n.ID = id.Semantic(string(n.Type), n.Name, n.FilePath)
	}
	if _, ok := s.byID[n.ID]; ok {
		return "", violation(op, ErrDuplicateID, InvariantUniqueID, "node_id", n.ID)
	}
	h := s.addSlot(n.ID, slot{kind: NodeSemantic, semantic: n.clone()})
	s.dedup[key] = h
	return n.ID, nil
}

func mergeSemantic(existing *SemanticNode, n SemanticNode) {
	for k, v := range n.Attributes {
		if _, ok := existing.Attributes[k]; ok {
			continue
		}
		if existing.Attributes == nil {
			existing.Attributes = make(Attributes)
		}
		existing.Attributes[k] = v.Clone()
	}
	if len(n.Summary) > len(existing.Summary) {
		existing.Summary = n.Summary
	}
}

// AddCommunity inserts a community node. Every member must be an existing
// semantic node.
func (s *Store) AddCommunity(n CommunityNode) (string, error) {
	const op = "Store.AddCommunity"
	if n.ID == "" {
		return "", violation(op, ErrInvalidArgument, InvariantWellFormedArg, "field", "id")
	}
	if f := n.invalidText(); f != "" {
		return "", violation(op, ErrInvalidText, InvariantWellFormedArg, "node_id", n.ID, "field", f)
	}
	if _, ok := s.byID[n.ID]; ok {
		return "", violation(op, ErrDuplicateID, InvariantUniqueID, "node_id", n.ID)
	}
	for _, m := range n.MemberIDs {
		h, ok := s.byID[m]
		if !ok || s.nodes[h].kind != NodeSemantic {
			return "", violation(op, ErrMissingMember, InvariantMemberIsNode, "node_id", n.ID, "member_id", m)
		}
	}
	s.addSlot(n.ID, slot{kind: NodeCommunity, community: n.clone()})
	return n.ID, nil
}

// AddEdge inserts an edge after checking the closed type set, endpoint
// existence, the self-loop ban and id uniqueness. On failure the store is
// unchanged. An empty id is replaced by a random UUID.
//
// A valid edge with a fact invalidates every still-valid edge of the same
// triple whose fact differs. Their InvalidAt becomes the new edge's ValidAt,
// falling back to its Timestamp and then the current time.
func (s *Store) AddEdge(e Edge) (string, error) {
	const op = "Store.AddEdge"
	if !e.Type.Valid() {
		return "", violation(op, ErrUnknownEdgeType, InvariantClosedTypes, "edge_id", e.ID, "edge_type", string(e.Type))
	}
	src, ok := s.byID[e.SourceID]
	if !ok {
		return "", violation(op, ErrMissingEndpoint, InvariantEndpoints, "edge_id", e.ID, "endpoint", "source", "node_id", e.SourceID)
	}
	tgt, ok := s.byID[e.TargetID]
	if !ok {
		return "", violation(op, ErrMissingEndpoint, InvariantEndpoints, "edge_id", e.ID, "endpoint", "target", "node_id", e.TargetID)
	}
	if src == tgt {
		return "", violation(op, ErrSelfLoop, InvariantNoSelfLoop, "edge_id", e.ID, "node_id", e.SourceID)
	}
	if f := e.invalidText(); f != "" {
		return "", violation(op, ErrInvalidText, InvariantWellFormedArg, "edge_id", e.ID, "field", f)
	}
	if err := e.Context.Validate(); err != nil {
		return "", attrViolation(op, err, "edge_id", e.ID)
	}
	if e.Weight != nil && (math.IsNaN(*e.Weight) || math.IsInf(*e.Weight, 0)) {
		return "", violation(op, ErrInvalidArgument, InvariantWellFormedArg, "edge_id", e.ID, "field", "weight")
	}
	if e.ValidAt != nil && e.InvalidAt != nil && e.InvalidAt.Before(*e.ValidAt) {
		return "", violation(op, ErrInvalidArgument, InvariantWellFormedArg, "edge_id", e.ID, "field", "invalid_at")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := s.edgeByID[e.ID]; ok {
		return "", violation(op, ErrDuplicateEdgeID, InvariantUniqueEdgeID, "edge_id", e.ID)
	}

	if !e.Invalidated() && e.Fact != "" && s.triples[triple{source: src, target: tgt, typ: e.Type}] > 0 {
		var at *time.Time
		for _, oh := range s.out[src] {
			old := &s.edges[oh]
			if !e.supersedes(*old) {
				continue
			}
			if at == nil {
				t := e.invalidationTime(s.clock())
				at = &t
			}
			old.InvalidAt = cloneTime(at)
		}
	}

	h := len(s.edges)
	s.edges = append(s.edges, e.clone())
	s.edgeByID[e.ID] = h
	s.out[src] = append(s.out[src], h)
	s.in[tgt] = append(s.in[tgt], h)
	s.triples[triple{source: src, target: tgt, typ: e.Type}]++
	return e.ID, nil
}

// Invalidate marks an edge as no longer valid from at onwards. A zero at
// means now. Invalidating an already invalid edge keeps its original time.
func (s *Store) Invalidate(edgeID string, at time.Time) error {
	const op = "Store.Invalidate"
	h, ok := s.edgeByID[edgeID]
	if !ok {
		return NewNotFoundError(op, ErrNotFound, map[string]any{"edge_id": edgeID})
	}
	e := &s.edges[h]
	if e.Invalidated() {
		return nil
	}
	if at.IsZero() {
		at = s.clock()()
	}
	at = at.UTC()
	if e.ValidAt != nil && at.Before(*e.ValidAt) {
		return violation(op, ErrInvalidArgument, InvariantWellFormedArg, "edge_id", edgeID, "field", "invalid_at")
	}
	e.InvalidAt = &at
	return nil
}

func (s *Store) clock() func() time.Time {
	if s.now == nil {
		return time.Now
	}
	return s.now
}

// SetAttributes overwrites the given attribute keys on a semantic node and
// leaves the others in place. The node's identity and dedup key are not
// affected.
func (s *Store) SetAttributes(nodeID string, attrs Attributes) error {
	const op = "Store.SetAttributes"
	h, ok := s.byID[nodeID]
	if !ok {
		return NewNotFoundError(op, ErrNotFound, map[string]any{"node_id": nodeID})
	}
	if s.nodes[h].kind != NodeSemantic {
		return violation(op, ErrInvalidArgument, InvariantWellFormedArg, "node_id", nodeID, "node_kind", string(s.nodes[h].kind))
	}
	if err := attrs.Validate(); err != nil {
		return attrViolation(op, err, "node_id", nodeID)
	}
	n := &s.nodes[h].semantic
	if n.Attributes == nil && len(attrs) > 0 {
		n.Attributes = make(Attributes, len(attrs))
	}
	for k, v := range attrs {
		n.Attributes[k] = v.Clone()
	}
	return nil
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(nodeID string) (Node, error) {
	h, ok := s.byID[nodeID]
	if !ok {
		return nil, NewNotFoundError("Store.Node", ErrNotFound, map[string]any{"node_id": nodeID})
	}
	return s.nodes[h].node(), nil
}

// Has reports whether a node with the given id exists.
func (s *Store) Has(nodeID string) bool {
	_, ok := s.byID[nodeID]
	return ok
}

// Episode returns a copy of an episode node.
func (s *Store) Episode(nodeID string) (EpisodeNode, bool) {
	h, ok := s.byID[nodeID]
	if !ok || s.nodes[h].kind != NodeEpisode {
		return EpisodeNode{}, false
	}
	return s.nodes[h].episode.clone(), true
}

// Semantic returns a copy of a semantic node.
func (s *Store) Semantic(nodeID string) (SemanticNode, bool) {
	h, ok := s.byID[nodeID]
	if !ok || s.nodes[h].kind != NodeSemantic {
		return SemanticNode{}, false
	}
	return s.nodes[h].semantic.clone(), true
}

// Community returns a copy of a community node.
func (s *Store) Community(nodeID string) (CommunityNode, bool) {
	h, ok := s.byID[nodeID]
	if !ok || s.nodes[h].kind != NodeCommunity {
		return CommunityNode{}, false
	}
	return s.nodes[h].community.clone(), true
}

// Resolve returns the id of the semantic node with the given dedup key.
func (s *Store) Resolve(key DedupKey) (string, bool) {
	h, ok := s.dedup[key]
	if !ok {
		return "", false
	}
	return s.nodes[h].semantic.ID, true
}

// Order returns the creation order of a node.
func (s *Store) Order(nodeID string) (int, bool) {
	h, ok := s.byID[nodeID]
	return h, ok
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(edgeID string) (Edge, bool) {
	h, ok := s.edgeByID[edgeID]
	if !ok {
		return Edge{}, false
	}
	return s.edges[h].clone(), true
}

// EdgeOrder returns the insertion order of an edge.
func (s *Store) EdgeOrder(edgeID string) (int, bool) {
	h, ok := s.edgeByID[edgeID]
	return h, ok
}

// EdgesFor returns the edges incident to a node in insertion order.
func (s *Store) EdgesFor(nodeID string, dir Direction) ([]Edge, error) {
	const op = "Store.EdgesFor"
	h, ok := s.byID[nodeID]
	if !ok {
		return nil, NewNotFoundError(op, ErrNotFound, map[string]any{"node_id": nodeID})
	}
	var handles []int
	switch dir {
	case Out:
		handles = s.out[h]
	case In:
		handles = s.in[h]
	case Both:
		handles = mergeSorted(s.out[h], s.in[h])
	default:
		return nil, violation(op, ErrInvalidArgument, InvariantWellFormedArg, "direction", string(dir))
	}
	edges := make([]Edge, len(handles))
	for i, eh := range handles {
		edges[i] = s.edges[eh].clone()
	}
	return edges, nil
}

// mergeSorted merges two ascending handle lists. Self-loops are rejected, so
// the lists never share a handle.
func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// HasEdge reports whether at least one edge of type t runs from source to
// target.
func (s *Store) HasEdge(sourceID, targetID string, t EdgeType) bool {
	src, ok := s.byID[sourceID]
	if !ok {
		return false
	}
	tgt, ok := s.byID[targetID]
	if !ok {
		return false
	}
	return s.triples[triple{source: src, target: tgt, typ: t}] > 0
}

// Nodes returns copies of all nodes in creation order.
func (s *Store) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	for i, sl := range s.nodes {
		out[i] = sl.node()
	}
	return out
}

// Episodes returns copies of all episode nodes in creation order.
func (s *Store) Episodes() []EpisodeNode {
	var out []EpisodeNode
	for _, sl := range s.nodes {
		if sl.kind == NodeEpisode {
			out = append(out, sl.episode.clone())
		}
	}
	return out
}

// Semantics returns copies of all semantic nodes in creation order.
func (s *Store) Semantics() []SemanticNode {
	var out []SemanticNode
	for _, sl := range s.nodes {
		if sl.kind == NodeSemantic {
			out = append(out, sl.semantic.clone())
		}
	}
	return out
}

// SemanticsByType returns copies of the semantic nodes of type t in creation
// order.
func (s *Store) SemanticsByType(t SemanticType) []SemanticNode {
	var out []SemanticNode
	for _, sl := range s.nodes {
		if sl.kind == NodeSemantic && sl.semantic.Type == t {
			out = append(out, sl.semantic.clone())
		}
	}
	return out
}

// Communities returns copies of all community nodes in creation order.
func (s *Store) Communities() []CommunityNode {
	var out []CommunityNode
	for _, sl := range s.nodes {
		if sl.kind == NodeCommunity {
			out = append(out, sl.community.clone())
		}
	}
	return out
}

// Edges returns copies of all edges in insertion order.
func (s *Store) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.clone()
	}
	return out
}

// NodeCount returns the number of nodes of all kinds.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int { return len(s.edges) }

var _ Reader = (*Store)(nil)
