package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Node labels. Every exported node carries LabelNode, which holds the id
// uniqueness constraint and anchors edge endpoint lookups; the kind label and,
// for semantic nodes, the type label come after it.
const (
	LabelNode      = "Node"
	LabelEpisode   = "Episode"
	LabelSemantic  = "Semantic"
	LabelCommunity = "Community"
)

// AttributePrefix is prepended to attribute keys when they become
// properties, so attributes never shadow the fixed node fields.
const AttributePrefix = "attr_"

// Statement is a parameterised Cypher statement.
type Statement struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
}

var typeLabels = map[graph.SemanticType]string{
	graph.TypeFile:         "File",
	graph.TypeFunction:     "Function",
	graph.TypeClass:        "Class",
	graph.TypeVariable:     "Variable",
	graph.TypeErrorPattern: "ErrorPattern",
	graph.TypeModule:       "Module",
}

// TypeLabel returns the secondary label of a semantic type.
func TypeLabel(t graph.SemanticType) string {
	return typeLabels[t]
}

// Labels returns the labels of a node, LabelNode first.
func Labels(n graph.Node) []string {
	switch v := n.(type) {
	case graph.EpisodeNode:
		return []string{LabelNode, LabelEpisode}
	case graph.SemanticNode:
		return []string{LabelNode, LabelSemantic, TypeLabel(v.Type)}
	case graph.CommunityNode:
		return []string{LabelNode, LabelCommunity}
	default:
		return nil
	}
}

// Cypher renders the graph as one MERGE statement per node, in creation
// order, followed by one statement per edge in insertion order. Running the
// statements twice leaves the target database unchanged.
func Cypher(r graph.Reader) []Statement {
	nodes := r.Nodes()
	edges := r.Edges()
	out := make([]Statement, 0, len(nodes)+len(edges))
	for _, n := range nodes {
		out = append(out, NodeStatement(n))
	}
	for _, e := range edges {
		out = append(out, EdgeStatement(e))
	}
	return out
}

// NodeStatement builds the MERGE statement for one node. The node is matched
// on LabelNode and its id alone; the remaining labels are set afterwards.
func NodeStatement(n graph.Node) Statement {
	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n:%s, n += $props", LabelNode, strings.Join(Labels(n)[1:], ":"))
	return Statement{
		Query:  query,
		Params: map[string]any{"id": n.NodeID(), "props": nodeProps(n)},
	}
}

// EdgeStatement builds the MERGE statement for one edge. Both endpoints must
// have been written first.
func EdgeStatement(e graph.Edge) Statement {
	query := fmt.Sprintf(
		"MATCH (a:%[1]s {id: $source}), (b:%[1]s {id: $target}) MERGE (a)-[r:%[2]s {id: $id}]->(b) SET r += $props",
		LabelNode, e.Type,
	)
	return Statement{
		Query: query,
		Params: map[string]any{
			"id":     e.ID,
			"source": e.SourceID,
			"target": e.TargetID,
			"props":  edgeProps(e),
		},
	}
}

func nodeProps(n graph.Node) map[string]any {
	props := map[string]any{}
	switch v := n.(type) {
	case graph.EpisodeNode:
		props["step_index"] = v.StepIndex
		props["thought"] = v.Thought
		props["action"] = v.Action
		props["observation"] = v.Observation
		setString(props, "instance_id", v.InstanceID)
		setString(props, "action_type", v.ActionType)
		setTime(props, "timestamp", v.Timestamp)
		setAttributes(props, v.State)
	case graph.SemanticNode:
		props["node_type"] = string(v.Type)
		props["name"] = v.Name
		setString(props, "file_path", v.FilePath)
		setString(props, "summary", v.Summary)
		setAttributes(props, v.Attributes)
	case graph.CommunityNode:
		props["name"] = v.Name
		setString(props, "summary", v.Summary)
		if len(v.Keywords) > 0 {
			props["keywords"] = append([]string(nil), v.Keywords...)
		}
		if len(v.MemberIDs) > 0 {
			props["member_ids"] = append([]string(nil), v.MemberIDs...)
		}
	}
	return props
}

func edgeProps(e graph.Edge) map[string]any {
	props := map[string]any{}
	setString(props, "fact", e.Fact)
	if e.Weight != nil {
		props["weight"] = *e.Weight
	}
	setTime(props, "timestamp", e.Timestamp)
	setTime(props, "valid_at", e.ValidAt)
	setTime(props, "invalid_at", e.InvalidAt)
	if len(e.SourceEpisodeIDs) > 0 {
		props["source_episode_ids"] = append([]string(nil), e.SourceEpisodeIDs...)
	}
	setAttributes(props, e.Context)
	return props
}

func setString(props map[string]any, key, v string) {
	if v != "" {
		props[key] = v
	}
}

func setTime(props map[string]any, key string, t *time.Time) {
	if t != nil {
		props[key] = t.UTC().Format(time.RFC3339Nano)
	}
}

func setAttributes(props map[string]any, attrs graph.Attributes) {
	for k, v := range attrs {
		props[AttributePrefix+k] = PropertyValue(v)
	}
}

// PropertyValue converts an attribute value to a property value. Scalars map
// directly and homogeneous lists of scalars become lists. Maps and any other
// lists are stored as JSON strings.
func PropertyValue(v graph.Value) any {
	switch v.Kind() {
	case graph.ValueString, graph.ValueNumber, graph.ValueBool:
		return v.Interface()
	case graph.ValueList:
		items, _ := v.AsList()
		if homogeneousScalars(items) {
			out := make([]any, len(items))
			for i, it := range items {
				out[i] = it.Interface()
			}
			return out
		}
	}
	return v.String()
}

func homogeneousScalars(items []graph.Value) bool {
	if len(items) == 0 {
		return true
	}
	k := items[0].Kind()
	if k != graph.ValueString && k != graph.ValueNumber && k != graph.ValueBool {
		return false
	}
	for _, it := range items[1:] {
		if it.Kind() != k {
			return false
		}
	}
	return true
}

var paramRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Inline renders the statement with its parameters substituted as escaped
// literals, for tools that cannot pass parameters.
func (s Statement) Inline() string {
	return paramRe.ReplaceAllStringFunc(s.Query, func(m string) string {
		v, ok := s.Params[m[1:]]
		if !ok {
			return m
		}
		return Literal(v)
	})
}

// WriteScript writes the statements inlined, one per line, each terminated by
// a semicolon.
func WriteScript(w io.Writer, stmts []Statement) error {
	for _, s := range stmts {
		if _, err := io.WriteString(w, s.Inline()+";\n"); err != nil {
			return fmt.Errorf("write cypher script: %w", err)
		}
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Literal renders v as a Cypher literal.
func Literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatFloat(t)
	case []string:
		parts := make([]string, len(t))
		for i, s := range t {
			parts[i] = quote(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(t))
		for i, it := range t {
			parts[i] = Literal(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = key(k) + ": " + Literal(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return quote(fmt.Sprint(t))
		}
		return quote(string(data))
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func key(k string) string {
	if identRe.MatchString(k) {
		return k
	}
	return "`" + strings.ReplaceAll(k, "`", "``") + "`"
}

var quoter = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}
