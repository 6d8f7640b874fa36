// Package link infers relations between semantic nodes after they are
// added to a graph.
//
// Each call to Generator.Generate ranks the other semantic nodes against one
// node using shared file paths, overlapping names and episode co-occurrence,
// then inserts edges to the best candidates:
//
//	gen := link.New(link.WithTopK(5))
//	edges := gen.Generate(store, nodeID)
//
// Edge ids are derived from (source, target, type), so generating links for
// the same node twice never duplicates an edge.
package link
