package graph

import (
	"cmp"
	"slices"
)

// TraversalOptions controls which edges a subgraph query follows.
type TraversalOptions struct {
	// EdgeTypes restricts traversal and the returned edges to these types.
	// If empty, every edge type is followed.
	EdgeTypes []EdgeType `json:"edge_types,omitempty" yaml:"edge_types,omitempty"`

	// ValidOnly skips invalidated edges, both for traversal and in the result.
	ValidOnly bool `json:"valid_only,omitempty" yaml:"valid_only,omitempty"`
}

// TraversalOption configures a subgraph query.
type TraversalOption func(*TraversalOptions)

// WithEdgeTypes restricts a subgraph query to the given edge types.
func WithEdgeTypes(types ...EdgeType) TraversalOption {
	return func(o *TraversalOptions) {
		o.EdgeTypes = append(o.EdgeTypes, types...)
	}
}

// ValidOnly restricts a subgraph query to edges that are still valid.
func ValidOnly() TraversalOption {
	return func(o *TraversalOptions) {
		o.ValidOnly = true
	}
}

func (o *TraversalOptions) allows(e Edge) bool {
	if o.ValidOnly && e.Invalidated() {
		return false
	}
	if len(o.EdgeTypes) == 0 {
		return true
	}
	for _, et := range o.EdgeTypes {
		if et == e.Type {
			return true
		}
	}
	return false
}

// SubgraphResult is the neighbourhood returned by Subgraph.
type SubgraphResult struct {
	StartID string `json:"start_id"`
	MaxHops int    `json:"max_hops"`

	// Nodes are listed in the order they were reached.
	Nodes []Node `json:"nodes"`

	// Edges are every edge with both endpoints in Nodes, in insertion order
	// and with their original direction.
	Edges []Edge `json:"edges"`

	// Depth maps each visited node id to its hop distance from the start.
	Depth map[string]int `json:"depth"`
}

// NodeIDs returns the ids of the visited nodes in visit order.
func (r *SubgraphResult) NodeIDs() []string {
	ids := make([]string, len(r.Nodes))
	for i, n := range r.Nodes {
		ids[i] = n.NodeID()
	}
	return ids
}

// Contains reports whether the node was visited.
func (r *SubgraphResult) Contains(nodeID string) bool {
	_, ok := r.Depth[nodeID]
	return ok
}

// Subgraph returns every node within maxHops undirected hops of startID and
// the edges among them. Within a level nodes are visited in the order they
// were first reached, and each node's neighbours in edge insertion order, so
// the result is deterministic for a given store.
func Subgraph(r Reader, startID string, maxHops int, opts ...TraversalOption) (*SubgraphResult, error) {
	const op = "Subgraph"
	if maxHops < 0 {
		return nil, violation(op, ErrInvalidArgument, InvariantWellFormedArg, "max_hops", maxHops)
	}
	start, err := r.Node(startID)
	if err != nil {
		return nil, NewNotFoundError(op, ErrNotFound, map[string]any{"node_id": startID})
	}

	var o TraversalOptions
	for _, opt := range opts {
		opt(&o)
	}

	res := &SubgraphResult{
		StartID: startID,
		MaxHops: maxHops,
		Nodes:   []Node{start},
		Depth:   map[string]int{startID: 0},
	}

	// Edges seen while expanding, keyed by id. Edges reaching beyond the last
	// level are discarded when the result is assembled.
	seen := make(map[string]Edge)
	frontier := []string{startID}
	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		var next []string
		for _, nodeID := range frontier {
			incident, err := r.EdgesFor(nodeID, Both)
			if err != nil {
				return nil, err
			}
			for _, e := range incident {
				if !o.allows(e) {
					continue
				}
				seen[e.ID] = e
				nb := e.Other(nodeID)
				if _, visited := res.Depth[nb]; visited {
					continue
				}
				n, err := r.Node(nb)
				if err != nil {
					return nil, err
				}
				res.Depth[nb] = depth
				res.Nodes = append(res.Nodes, n)
				next = append(next, nb)
			}
		}
		frontier = next
	}

	// Nodes on the last level were never expanded; pick up the edges that
	// connect them to each other.
	for _, nodeID := range frontier {
		incident, err := r.EdgesFor(nodeID, Both)
		if err != nil {
			return nil, err
		}
		for _, e := range incident {
			if o.allows(e) {
				seen[e.ID] = e
			}
		}
	}

	type ordered struct {
		order int
		edge  Edge
	}
	var kept []ordered
	for edgeID, e := range seen {
		if !res.Contains(e.SourceID) || !res.Contains(e.TargetID) {
			continue
		}
		ord, _ := r.EdgeOrder(edgeID)
		kept = append(kept, ordered{order: ord, edge: e})
	}
	slices.SortFunc(kept, func(a, b ordered) int { return cmp.Compare(a.order, b.order) })
	res.Edges = make([]Edge, len(kept))
	for i, k := range kept {
		res.Edges[i] = k.edge
	}
	return res, nil
}
