package builder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Trajectory is one agent run with its extracted entities and relations.
type Trajectory struct {
	InstanceID string     `json:"instance_id" yaml:"instance_id"`
	Repo       string     `json:"repo,omitempty" yaml:"repo,omitempty"`
	Resolved   bool       `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	Steps      []Step     `json:"steps" yaml:"steps"`
	Entities   []Entity   `json:"entities,omitempty" yaml:"entities,omitempty"`
	Relations  []Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Step is one thought/action/observation record.
type Step struct {
	StepID      int              `json:"step_id" yaml:"step_id"`
	Thought     string           `json:"thought" yaml:"thought"`
	Action      string           `json:"action" yaml:"action"`
	ActionType  string           `json:"action_type,omitempty" yaml:"action_type,omitempty"`
	Observation string           `json:"observation" yaml:"observation"`
	Timestamp   *time.Time       `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	State       graph.Attributes `json:"state,omitempty" yaml:"state,omitempty"`

	// EntityIDs lists the entities the step touched. Each becomes an
	// ACCESSES edge from the step's episode.
	EntityIDs []string `json:"entity_ids,omitempty" yaml:"entity_ids,omitempty"`
}

// Entity is an extracted code entity. EntityID is the reference used by
// relations and steps within the same trajectory.
type Entity struct {
	EntityID   string             `json:"entity_id" yaml:"entity_id"`
	EntityType graph.SemanticType `json:"entity_type" yaml:"entity_type"`
	Name       string             `json:"name" yaml:"name"`
	FilePath   string             `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Summary    string             `json:"summary,omitempty" yaml:"summary,omitempty"`
	Attributes graph.Attributes   `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Relation is an extracted relation between two entity references. An
// endpoint may also name a node already in the graph.
type Relation struct {
	RelationID   string           `json:"relation_id,omitempty" yaml:"relation_id,omitempty"`
	SourceID     string           `json:"source_id" yaml:"source_id"`
	TargetID     string           `json:"target_id" yaml:"target_id"`
	RelationType graph.EdgeType   `json:"relation_type" yaml:"relation_type"`
	Fact         string           `json:"fact,omitempty" yaml:"fact,omitempty"`
	Context      graph.Attributes `json:"context,omitempty" yaml:"context,omitempty"`

	// ValidAt is when the relation became true. If unset, the timestamp of
	// its first listed step is used.
	ValidAt *time.Time `json:"valid_at,omitempty" yaml:"valid_at,omitempty"`

	// StepIDs lists the steps the relation was observed in.
	StepIDs []int `json:"step_ids,omitempty" yaml:"step_ids,omitempty"`
}

// ReadFile decodes the trajectories stored at path. The format follows the
// extension:
//   - .json: one trajectory object or an array of them
//   - .jsonl: one trajectory object per line
//   - .yaml, .yml: one trajectory per YAML document
func ReadFile(path string) ([]Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return DecodeJSON(f)
	case ".jsonl":
		return DecodeJSONLines(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	default:
		return nil, fmt.Errorf("unsupported trajectory file extension %q", ext)
	}
}

// DecodeJSON reads a single trajectory object or an array of trajectories.
func DecodeJSON(r io.Reader) ([]Trajectory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trajectories: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ts []Trajectory
		if err := json.Unmarshal(data, &ts); err != nil {
			return nil, fmt.Errorf("decode trajectory array: %w", err)
		}
		return ts, nil
	}
	var t Trajectory
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode trajectory: %w", err)
	}
	return []Trajectory{t}, nil
}

// DecodeJSONLines reads one trajectory per non-blank line.
func DecodeJSONLines(r io.Reader) ([]Trajectory, error) {
	var ts []Trajectory
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var t Trajectory
		if err := json.Unmarshal(text, &t); err != nil {
			return nil, fmt.Errorf("decode trajectory on line %d: %w", line, err)
		}
		ts = append(ts, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trajectories: %w", err)
	}
	return ts, nil
}

// DecodeYAML reads one trajectory per YAML document.
func DecodeYAML(r io.Reader) ([]Trajectory, error) {
	dec := yaml.NewDecoder(r)
	var ts []Trajectory
	for {
		var t Trajectory
		err := dec.Decode(&t)
		if errors.Is(err, io.EOF) {
			return ts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode trajectory document %d: %w", len(ts)+1, err)
		}
		ts = append(ts, t)
	}
}
