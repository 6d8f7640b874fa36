package export

import (
	"path"
	"strings"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Link is a note's reference to a neighbouring node.
type Link struct {
	NodeID    string          `json:"node_id"`
	EdgeID    string          `json:"edge_id"`
	EdgeType  graph.EdgeType  `json:"edge_type"`
	Fact      string          `json:"fact,omitempty"`
	Direction graph.Direction `json:"direction"`
}

// Note is the memory record of one semantic node.
type Note struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       graph.SemanticType `json:"node_type"`
	FilePath   string             `json:"file_path,omitempty"`
	Content    string             `json:"content"`
	Keywords   []string           `json:"keywords"`
	Tags       []string           `json:"tags"`
	Attributes graph.Attributes   `json:"attributes,omitempty"`
	Links      []Link             `json:"links"`
}

// Notes returns one note per semantic node in creation order. Links list every
// incident edge that is still valid, in insertion order; Direction is relative
// to the note's node.
func Notes(r graph.Reader) []Note {
	sems := r.Semantics()
	out := make([]Note, 0, len(sems))
	for _, n := range sems {
		out = append(out, noteFor(r, n))
	}
	return out
}

func noteFor(r graph.Reader, n graph.SemanticNode) Note {
	note := Note{
		ID:         n.ID,
		Name:       n.Name,
		Type:       n.Type,
		FilePath:   n.FilePath,
		Content:    n.Summary,
		Keywords:   keywords(n),
		Tags:       []string{string(n.Type)},
		Attributes: n.Attributes,
		Links:      []Link{},
	}
	if note.Content == "" {
		note.Content = n.Name
	}

	edges, err := r.EdgesFor(n.ID, graph.Both)
	if err != nil {
		return note
	}
	for _, e := range edges {
		if e.Invalidated() {
			continue
		}
		dir := graph.Out
		if e.TargetID == n.ID {
			dir = graph.In
		}
		note.Links = append(note.Links, Link{
			NodeID:    e.Other(n.ID),
			EdgeID:    e.ID,
			EdgeType:  e.Type,
			Fact:      e.Fact,
			Direction: dir,
		})
	}
	return note
}

func keywords(n graph.SemanticNode) []string {
	kw := []string{n.Name}
	if n.FilePath != "" {
		base := path.Base(strings.ReplaceAll(n.FilePath, `\`, "/"))
		if base != n.Name {
			kw = append(kw, base)
		}
	}
	return kw
}
