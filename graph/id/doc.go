// Package id derives deterministic, content-addressable ids for context
// graph elements.
//
// # ID Format
//
// IDs follow the format: {kind}:{base64url(sha256(canonical)[:12])}
//
// Example:
//
//	function:Yl0wLX3qR0SyC7uV
//	link:8K7J6H5G4F3D2S1A
//
// The canonical string lists the identifying properties of the kind in
// alphabetical order with quoted values:
//
//	function:file_path="p.py"|name="parse"
//
// Semantic node kinds are identified by name and file_path, so re-observing
// an entity in a later trajectory yields the same id. Inferred links are
// identified by source, target and type. Episode ids are plain
// "ep_<instance>_<step>" strings.
package id
