// Package export renders a context graph for downstream consumers.
//
// Cypher produces idempotent MERGE statements for a property-graph database.
// Notes produces one flat memory record per semantic node with its links.
package export
