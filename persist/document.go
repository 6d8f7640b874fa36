package persist

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Version is the document version written by Save.
const Version = 1

var (
	// ErrUnsupportedVersion indicates a document written by an unknown
	// version of the format.
	ErrUnsupportedVersion = errors.New("unsupported document version")

	// ErrMissingID indicates a node or edge without an id.
	ErrMissingID = errors.New("missing id")

	// ErrCollapsedNode indicates two semantic nodes that share a dedup key
	// and would merge on load.
	ErrCollapsedNode = errors.New("semantic nodes share a dedup key")

	// ErrNodeOrder indicates a node_order list that does not name every node
	// exactly once.
	ErrNodeOrder = errors.New("node order does not match the node lists")
)

// Document is the persisted form of a graph. Node kinds are distinguished by
// the list they appear in. Edges are listed in insertion order.
type Document struct {
	Version       int                   `json:"version" yaml:"version"`
	Episodes      []graph.EpisodeNode   `json:"episodes" yaml:"episodes"`
	SemanticNodes []graph.SemanticNode  `json:"semantic_nodes" yaml:"semantic_nodes"`
	Communities   []graph.CommunityNode `json:"communities" yaml:"communities"`
	Edges         []graph.Edge          `json:"edges" yaml:"edges"`

	// NodeOrder lists every node id in creation order across the three
	// lists. Documents without it load kind by kind.
	NodeOrder []string `json:"node_order,omitempty" yaml:"node_order,omitempty"`
}

// Save snapshots the graph into a Document. The document shares no state
// with the graph.
func Save(r graph.Reader) *Document {
	doc := &Document{
		Version:       Version,
		Episodes:      r.Episodes(),
		SemanticNodes: r.Semantics(),
		Communities:   r.Communities(),
		Edges:         r.Edges(),
	}
	if doc.Episodes == nil {
		doc.Episodes = []graph.EpisodeNode{}
	}
	if doc.SemanticNodes == nil {
		doc.SemanticNodes = []graph.SemanticNode{}
	}
	if doc.Communities == nil {
		doc.Communities = []graph.CommunityNode{}
	}
	if doc.Edges == nil {
		doc.Edges = []graph.Edge{}
	}
	for _, n := range r.Nodes() {
		doc.NodeOrder = append(doc.NodeOrder, n.NodeID())
	}
	return doc
}

// Load rebuilds a store from a document. Every node and edge goes through the
// store's validation; the first failure aborts the load and no store is
// returned.
//
// Nodes are created in NodeOrder when the document has one. Otherwise they
// are created episodes first, then semantic nodes, then communities, each in
// document order.
func Load(doc *Document) (*graph.Store, error) {
	const op = "persist.Load"
	if doc == nil {
		return nil, graph.NewLoadError(op, errors.New("nil document"), nil)
	}
	if doc.Version != Version {
		return nil, graph.NewLoadError(op, ErrUnsupportedVersion, map[string]any{"version": doc.Version})
	}

	order, err := nodeOrder(op, doc)
	if err != nil {
		return nil, err
	}
	s := graph.NewStore()
	for _, ref := range order {
		if err := addNode(op, s, doc, ref); err != nil {
			return nil, err
		}
	}
	for i, e := range doc.Edges {
		if e.ID == "" {
			return nil, loadError(op, ErrMissingID, "edges", i, "")
		}
		if _, err := s.AddEdge(e); err != nil {
			return nil, loadError(op, err, "edges", i, e.ID)
		}
	}
	return s, nil
}

// nodeRef addresses one node in a document.
type nodeRef struct {
	list  string
	index int
}

func nodeOrder(op string, doc *Document) ([]nodeRef, error) {
	total := len(doc.Episodes) + len(doc.SemanticNodes) + len(doc.Communities)
	refs := make([]nodeRef, 0, total)
	ids := make([]string, 0, total)
	for i, n := range doc.Episodes {
		refs = append(refs, nodeRef{list: "episodes", index: i})
		ids = append(ids, n.ID)
	}
	for i, n := range doc.SemanticNodes {
		refs = append(refs, nodeRef{list: "semantic_nodes", index: i})
		ids = append(ids, n.ID)
	}
	for i, n := range doc.Communities {
		refs = append(refs, nodeRef{list: "communities", index: i})
		ids = append(ids, n.ID)
	}
	if len(doc.NodeOrder) == 0 {
		return refs, nil
	}

	byID := make(map[string]nodeRef, total)
	for i, nodeID := range ids {
		ref := refs[i]
		if nodeID == "" {
			return nil, loadError(op, ErrMissingID, ref.list, ref.index, "")
		}
		if _, dup := byID[nodeID]; dup {
			return nil, loadError(op, graph.ErrDuplicateID, ref.list, ref.index, nodeID)
		}
		byID[nodeID] = ref
	}
	if len(doc.NodeOrder) != total {
		return nil, graph.NewLoadError(op, ErrNodeOrder, map[string]any{"listed": len(doc.NodeOrder), "nodes": total})
	}
	ordered := make([]nodeRef, 0, total)
	for i, nodeID := range doc.NodeOrder {
		ref, ok := byID[nodeID]
		if !ok {
			return nil, loadError(op, ErrNodeOrder, "node_order", i, nodeID)
		}
		delete(byID, nodeID)
		ordered = append(ordered, ref)
	}
	return ordered, nil
}

func addNode(op string, s *graph.Store, doc *Document, ref nodeRef) error {
	switch ref.list {
	case "episodes":
		n := doc.Episodes[ref.index]
		if _, err := s.AddEpisode(n); err != nil {
			return loadError(op, err, ref.list, ref.index, n.ID)
		}
	case "semantic_nodes":
		n := doc.SemanticNodes[ref.index]
		if n.ID == "" {
			return loadError(op, ErrMissingID, ref.list, ref.index, "")
		}
		got, err := s.AddSemantic(n)
		if err != nil {
			return loadError(op, err, ref.list, ref.index, n.ID)
		}
		if got != n.ID {
			return graph.NewLoadError(op, ErrCollapsedNode, map[string]any{
				"list":        ref.list,
				"index":       ref.index,
				"node_id":     n.ID,
				"existing_id": got,
			})
		}
	default:
		n := doc.Communities[ref.index]
		if _, err := s.AddCommunity(n); err != nil {
			return loadError(op, err, ref.list, ref.index, n.ID)
		}
	}
	return nil
}

func loadError(op string, err error, list string, index int, elemID string) error {
	ctx := map[string]any{"list": list, "index": index}
	if elemID != "" {
		ctx["id"] = elemID
	}
	return graph.NewLoadError(op, fmt.Errorf("%s[%d]: %w", list, index, err), ctx)
}
