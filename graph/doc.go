// Package graph holds the in-memory context graph: episode, semantic and
// community nodes joined by typed, directed edges.
//
// # Data Model
//
// The graph is a directed multigraph with three node layers:
//   - EpisodeNode: one step of an agent trajectory (thought, action, observation)
//   - SemanticNode: a code entity such as a file, function or error pattern
//   - CommunityNode: a named cluster of semantic nodes
//
// Edges carry one of a closed set of relation types (CALLS, IMPORTS,
// ACCESSES, SIMILAR_TO, ...) plus a free-form fact and an attribute bag.
// Attribute values are tagged Values: strings, numbers, booleans, lists and
// maps.
//
// # Invariants
//
// Store checks every mutation and rejects it with a validation error that
// names the violated invariant:
//   - node ids are unique across all node kinds
//   - edge endpoints exist
//   - node and edge types belong to their closed enumerations
//   - edges never loop back to their source node
//   - edge ids are unique
//
// A rejected mutation leaves the store unchanged.
//
// # Deduplication
//
// Semantic nodes are identified by (type, name, file path). Adding a node
// whose key already exists returns the existing id and merges the new
// attributes into it:
//
//	store := graph.NewStore()
//	a, _ := store.AddSemantic(graph.SemanticNode{Type: graph.TypeFunction, Name: "parse", FilePath: "p.py"})
//	b, _ := store.AddSemantic(graph.SemanticNode{Type: graph.TypeFunction, Name: "parse", FilePath: "p.py"})
//	// a == b
//
// # Queries
//
// Subgraph returns the undirected neighbourhood of a node up to a hop limit,
// and ComputeStats counts nodes and edges by kind and type. Both accept a
// Reader, the read-only subset of Store.
//
// Store itself does no locking; callers sharing one store across goroutines
// must serialize access.
package graph
