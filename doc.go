// Package contextgraph builds and queries context graphs from agent
// trajectories.
//
// A context graph has three node layers: episodes record what an agent did at
// each step, semantic nodes are the code entities it touched (files,
// functions, classes, variables, error patterns, modules), and communities
// group semantic nodes. Typed, directed edges connect them.
//
// The Engine is the entry point. It owns one graph store and serializes
// access to it: builds, links and loads take the write lock, queries and
// exports take the read lock.
//
//	eng, err := contextgraph.New(contextgraph.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	trajectories, err := builder.ReadFile("runs.jsonl")
//	if err != nil {
//		return err
//	}
//	if _, err := eng.Build(ctx, trajectories...); err != nil {
//		return err
//	}
//	sub, err := eng.Subgraph("fn1", 2)
//
// The subpackages can also be used directly:
//
//   - graph: the store, traversal and statistics
//   - builder: trajectory ingestion
//   - link: link inference between semantic nodes
//   - persist: JSON/YAML documents, persist/sqlite for named snapshots
//   - export: Cypher statements and memory notes
//   - sink and queue: Neo4j and Redis transports
//   - config: file and environment configuration
//   - health: dependency checks
package contextgraph
