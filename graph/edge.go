package graph

import "time"

// EdgeType is the closed set of relation types.
type EdgeType string

const (
	EdgeCalls       EdgeType = "CALLS"
	EdgeImports     EdgeType = "IMPORTS"
	EdgeDefinedIn   EdgeType = "DEFINED_IN"
	EdgeModifies    EdgeType = "MODIFIES"
	EdgeAccesses    EdgeType = "ACCESSES"
	EdgeCausedBy    EdgeType = "CAUSED_BY"
	EdgeRaisedBy    EdgeType = "RAISED_BY"
	EdgeSimilarTo   EdgeType = "SIMILAR_TO"
	EdgeEvolvedFrom EdgeType = "EVOLVED_FROM"
	EdgeRelatedTo   EdgeType = "RELATED_TO"
)

// EdgeTypes lists every edge type in canonical order.
func EdgeTypes() []EdgeType {
	return []EdgeType{
		EdgeCalls, EdgeImports, EdgeDefinedIn, EdgeModifies, EdgeAccesses,
		EdgeCausedBy, EdgeRaisedBy, EdgeSimilarTo, EdgeEvolvedFrom, EdgeRelatedTo,
	}
}

// Valid reports whether t belongs to the closed enumeration.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeCalls, EdgeImports, EdgeDefinedIn, EdgeModifies, EdgeAccesses,
		EdgeCausedBy, EdgeRaisedBy, EdgeSimilarTo, EdgeEvolvedFrom, EdgeRelatedTo:
		return true
	}
	return false
}

// String returns the type as a string.
func (t EdgeType) String() string { return string(t) }

// Edge is a directed, typed relation between two nodes. Several edges may
// connect the same ordered pair.
type Edge struct {
	ID       string   `json:"id" yaml:"id"`
	Type     EdgeType `json:"edge_type" yaml:"edge_type"`
	SourceID string   `json:"source_id" yaml:"source_id"`
	TargetID string   `json:"target_id" yaml:"target_id"`

	// Fact is a human-readable statement of the relation.
	Fact string `json:"fact,omitempty" yaml:"fact,omitempty"`

	Context   Attributes `json:"context,omitempty" yaml:"context,omitempty"`
	Weight    *float64   `json:"weight,omitempty" yaml:"weight,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`

	// SourceEpisodeIDs records the episodes the relation was observed in.
	SourceEpisodeIDs []string `json:"source_episode_ids,omitempty" yaml:"source_episode_ids,omitempty"`

	// ValidAt is when the fact became true. InvalidAt is set once a later
	// edge contradicts the fact; an edge with InvalidAt set is historical.
	ValidAt   *time.Time `json:"valid_at,omitempty" yaml:"valid_at,omitempty"`
	InvalidAt *time.Time `json:"invalid_at,omitempty" yaml:"invalid_at,omitempty"`
}

// Invalidated reports whether the edge has been superseded.
func (e Edge) Invalidated() bool { return e.InvalidAt != nil }

// supersedes reports whether e contradicts old: both state a fact about the
// same triple and the facts differ.
func (e Edge) supersedes(old Edge) bool {
	return old.InvalidAt == nil &&
		old.Type == e.Type && old.SourceID == e.SourceID && old.TargetID == e.TargetID &&
		old.Fact != "" && e.Fact != "" && old.Fact != e.Fact
}

// invalidationTime is the moment e makes contradicted edges invalid: its own
// validity start, else its timestamp, else now.
func (e Edge) invalidationTime(now func() time.Time) time.Time {
	switch {
	case e.ValidAt != nil:
		return e.ValidAt.UTC()
	case e.Timestamp != nil:
		return e.Timestamp.UTC()
	default:
		return now().UTC()
	}
}

// Other returns the endpoint opposite to id.
func (e Edge) Other(id string) string {
	if e.SourceID == id {
		return e.TargetID
	}
	return e.SourceID
}

func (e Edge) clone() Edge {
	c := e
	c.Context = e.Context.Clone()
	if e.Weight != nil {
		w := *e.Weight
		c.Weight = &w
	}
	if e.Timestamp != nil {
		ts := *e.Timestamp
		c.Timestamp = &ts
	}
	if e.SourceEpisodeIDs != nil {
		c.SourceEpisodeIDs = append([]string(nil), e.SourceEpisodeIDs...)
	}
	c.ValidAt = cloneTime(e.ValidAt)
	c.InvalidAt = cloneTime(e.InvalidAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Direction selects which incident edges EdgesFor returns.
type Direction string

const (
	// Out selects edges whose source is the node.
	Out Direction = "out"

	// In selects edges whose target is the node.
	In Direction = "in"

	// Both selects all incident edges.
	Both Direction = "both"
)
