package id

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Generator creates deterministic ids for graph elements.
// IDs are content-addressable and derived from a kind and its identifying
// properties.
type Generator interface {
	// Generate creates a deterministic ID from a kind and its properties.
	// The ID format is: {kind}:{base64url(sha256(canonical_properties)[:12])}
	//
	// Returns an error if:
	//   - The kind is not registered
	//   - Required identifying properties are missing
	Generate(kind string, properties map[string]string) (string, error)
}

// DeterministicGenerator implements Generator using SHA-256 hashing.
//
// ID Generation Algorithm:
//  1. Look up the identifying properties for the kind
//  2. Validate all identifying properties are present (empty values are allowed)
//  3. Build canonical string: kind:prop1="val1"|prop2="val2" (sorted keys, quoted values)
//  4. SHA-256 hash the canonical string
//  5. Base64url encode first 12 bytes (no padding)
//  6. Return {kind}:{encoded}
//
// Values are used verbatim. Semantic dedup keys are case sensitive, so two
// keys that differ only in case must not share an id.
type DeterministicGenerator struct {
	identifying map[string][]string
}

// LinkKind is the registered kind for inferred link edges.
const LinkKind = "link"

// SemanticKinds are the registered kinds for semantic nodes.
var SemanticKinds = []string{"file", "function", "class", "variable", "error_pattern", "module"}

// NewGenerator creates a DeterministicGenerator with the default registry:
// every semantic node type is identified by name and file_path, links by
// source, target and type.
func NewGenerator() *DeterministicGenerator {
	g := &DeterministicGenerator{identifying: make(map[string][]string)}
	for _, k := range SemanticKinds {
		g.Register(k, "name", "file_path")
	}
	g.Register(LinkKind, "source", "target", "type")
	return g
}

// Register sets the identifying properties for a kind, replacing any
// previous registration.
func (g *DeterministicGenerator) Register(kind string, props ...string) {
	sorted := append([]string(nil), props...)
	sort.Strings(sorted)
	g.identifying[kind] = sorted
}

// Generate creates a deterministic ID from kind and properties.
func (g *DeterministicGenerator) Generate(kind string, properties map[string]string) (string, error) {
	props, ok := g.identifying[kind]
	if !ok {
		return "", fmt.Errorf("kind %q is not registered", kind)
	}

	var missing []string
	for _, p := range props {
		if _, ok := properties[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing identifying properties for kind %q: %v", kind, missing)
	}

	pairs := make([]string, 0, len(props))
	for _, p := range props {
		pairs = append(pairs, p+"="+strconv.Quote(properties[p]))
	}
	canonical := kind + ":" + strings.Join(pairs, "|")

	hash := sha256.Sum256([]byte(canonical))
	return kind + ":" + base64.RawURLEncoding.EncodeToString(hash[:12]), nil
}

var defaultGenerator = NewGenerator()

// Semantic returns the id a semantic node gets when the caller supplies none.
// An unregistered type falls back to the "semantic" prefix; the store rejects
// such nodes anyway.
func Semantic(nodeType, name, filePath string) string {
	props := map[string]string{"name": name, "file_path": filePath}
	id, err := defaultGenerator.Generate(nodeType, props)
	if err != nil {
		hash := sha256.Sum256([]byte(nodeType + ":" + strconv.Quote(name) + "|" + strconv.Quote(filePath)))
		return "semantic:" + base64.RawURLEncoding.EncodeToString(hash[:12])
	}
	return id
}

// Link returns the id of an inferred edge between source and target.
func Link(sourceID, targetID, edgeType string) string {
	id, _ := defaultGenerator.Generate(LinkKind, map[string]string{
		"source": sourceID,
		"target": targetID,
		"type":   edgeType,
	})
	return id
}

// Episode returns the id of the episode node for one trajectory step.
func Episode(instanceID string, step int) string {
	if instanceID == "" {
		return fmt.Sprintf("ep_%d", step)
	}
	return fmt.Sprintf("ep_%s_%d", instanceID, step)
}
