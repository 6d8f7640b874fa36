package graph

import (
	"time"
)

// NodeKind distinguishes the three node layers of the context graph.
type NodeKind string

const (
	// NodeEpisode is a raw interaction record (one trajectory step).
	NodeEpisode NodeKind = "episode"

	// NodeSemantic is a code-domain entity.
	NodeSemantic NodeKind = "semantic"

	// NodeCommunity is a cluster of semantic nodes.
	NodeCommunity NodeKind = "community"
)

// NodeKinds lists every node kind in canonical order.
func NodeKinds() []NodeKind {
	return []NodeKind{NodeEpisode, NodeSemantic, NodeCommunity}
}

// SemanticType is the closed set of code-domain entity types.
type SemanticType string

const (
	TypeFile         SemanticType = "file"
	TypeFunction     SemanticType = "function"
	TypeClass        SemanticType = "class"
	TypeVariable     SemanticType = "variable"
	TypeErrorPattern SemanticType = "error_pattern"
	TypeModule       SemanticType = "module"
)

// SemanticTypes lists every semantic type in canonical order.
func SemanticTypes() []SemanticType {
	return []SemanticType{TypeFile, TypeFunction, TypeClass, TypeVariable, TypeErrorPattern, TypeModule}
}

// Valid reports whether t belongs to the closed enumeration.
func (t SemanticType) Valid() bool {
	switch t {
	case TypeFile, TypeFunction, TypeClass, TypeVariable, TypeErrorPattern, TypeModule:
		return true
	}
	return false
}

// String returns the type as a string.
func (t SemanticType) String() string { return string(t) }

// Node is implemented by EpisodeNode, SemanticNode and CommunityNode.
// Use a type switch to reach the concrete fields.
type Node interface {
	// NodeID returns the node's unique id.
	NodeID() string

	// Kind returns the node layer.
	Kind() NodeKind
}

// EpisodeNode records what happened at one trajectory step.
type EpisodeNode struct {
	ID          string     `json:"id" yaml:"id"`
	InstanceID  string     `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	StepIndex   int        `json:"step_index" yaml:"step_index"`
	Thought     string     `json:"thought" yaml:"thought"`
	Action      string     `json:"action" yaml:"action"`
	ActionType  string     `json:"action_type,omitempty" yaml:"action_type,omitempty"`
	Observation string     `json:"observation" yaml:"observation"`
	Timestamp   *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	State       Attributes `json:"state,omitempty" yaml:"state,omitempty"`
}

// NodeID implements Node.
func (n EpisodeNode) NodeID() string { return n.ID }

// Kind implements Node.
func (n EpisodeNode) Kind() NodeKind { return NodeEpisode }

func (n EpisodeNode) clone() EpisodeNode {
	c := n
	if n.Timestamp != nil {
		ts := *n.Timestamp
		c.Timestamp = &ts
	}
	c.State = n.State.Clone()
	return c
}

// SemanticNode is a code-domain entity. Two semantic nodes with the same
// DedupKey are the same entity.
type SemanticNode struct {
	ID         string       `json:"id" yaml:"id"`
	Type       SemanticType `json:"node_type" yaml:"node_type"`
	Name       string       `json:"name" yaml:"name"`
	FilePath   string       `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Summary    string       `json:"summary,omitempty" yaml:"summary,omitempty"`
	Attributes Attributes   `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// NodeID implements Node.
func (n SemanticNode) NodeID() string { return n.ID }

// Kind implements Node.
func (n SemanticNode) Kind() NodeKind { return NodeSemantic }

// DedupKey returns the identity of the entity independent of its id.
func (n SemanticNode) DedupKey() DedupKey {
	return DedupKey{Type: n.Type, Name: n.Name, FilePath: n.FilePath}
}

func (n SemanticNode) clone() SemanticNode {
	c := n
	c.Attributes = n.Attributes.Clone()
	return c
}

// DedupKey is the (node_type, name, file_path) triple used to merge repeated
// observations of one entity.
type DedupKey struct {
	Type     SemanticType
	Name     string
	FilePath string
}

// CommunityNode groups semantic nodes under a summary label.
type CommunityNode struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Summary   string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Keywords  []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty" yaml:"member_ids,omitempty"`
}

// NodeID implements Node.
func (n CommunityNode) NodeID() string { return n.ID }

// Kind implements Node.
func (n CommunityNode) Kind() NodeKind { return NodeCommunity }

func (n CommunityNode) clone() CommunityNode {
	c := n
	if n.Keywords != nil {
		c.Keywords = append([]string(nil), n.Keywords...)
	}
	if n.MemberIDs != nil {
		c.MemberIDs = append([]string(nil), n.MemberIDs...)
	}
	return c
}
