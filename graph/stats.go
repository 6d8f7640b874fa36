package graph

// Stats summarizes the composition of a graph.
type Stats struct {
	NodesByKind    map[NodeKind]int     `json:"nodes_by_kind" yaml:"nodes_by_kind"`
	SemanticByType map[SemanticType]int `json:"semantic_by_type" yaml:"semantic_by_type"`
	EdgesByType    map[EdgeType]int     `json:"edges_by_type" yaml:"edges_by_type"`
	TotalNodes     int                  `json:"total_nodes" yaml:"total_nodes"`
	TotalEdges     int                  `json:"total_edges" yaml:"total_edges"`

	// ValidEdges counts edges that have not been invalidated.
	ValidEdges int `json:"valid_edges" yaml:"valid_edges"`
}

// ComputeStats scans the whole graph. Every kind and type appears in the
// maps, with zero counts where nothing matches.
func ComputeStats(r Reader) Stats {
	st := Stats{
		NodesByKind:    make(map[NodeKind]int),
		SemanticByType: make(map[SemanticType]int),
		EdgesByType:    make(map[EdgeType]int),
	}
	for _, k := range NodeKinds() {
		st.NodesByKind[k] = 0
	}
	for _, t := range SemanticTypes() {
		st.SemanticByType[t] = 0
	}
	for _, t := range EdgeTypes() {
		st.EdgesByType[t] = 0
	}

	for _, n := range r.Nodes() {
		st.NodesByKind[n.Kind()]++
		st.TotalNodes++
		if sn, ok := n.(SemanticNode); ok {
			st.SemanticByType[sn.Type]++
		}
	}
	for _, e := range r.Edges() {
		st.EdgesByType[e.Type]++
		st.TotalEdges++
		if !e.Invalidated() {
			st.ValidEdges++
		}
	}
	return st
}
