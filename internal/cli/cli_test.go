package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/contextgraph/builder"
	"github.com/zero-day-ai/contextgraph/config"
	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/persist"
)

type env struct {
	dir    string
	config string
	graph  string
}

func newEnv(t *testing.T, edit func(*config.Config)) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Snapshots = filepath.Join(dir, "snapshots.db")
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, config.Write(path, cfg, false))
	return &env{dir: dir, config: path, graph: filepath.Join(dir, "graph.json")}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.config, "--graph", e.graph}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) writeTrajectory(t *testing.T) string {
	t.Helper()
	tr := builder.Trajectory{
		InstanceID: "marshmallow-1",
		Steps: []builder.Step{
			{StepID: 0, Thought: "read", Action: "open fields.py", Observation: "class Field", EntityIDs: []string{"file"}},
			{StepID: 1, Thought: "run", Action: "python repro.py", Observation: "ValueError", EntityIDs: []string{"fn", "err"}},
		},
		Entities: []builder.Entity{
			{EntityID: "file", EntityType: graph.TypeFile, Name: "fields.py", FilePath: "src/fields.py"},
			{EntityID: "fn", EntityType: graph.TypeFunction, Name: "_serialize", FilePath: "src/fields.py"},
			{EntityID: "err", EntityType: graph.TypeErrorPattern, Name: "ValueError"},
		},
		Relations: []builder.Relation{
			{SourceID: "fn", TargetID: "file", RelationType: graph.EdgeDefinedIn},
			{SourceID: "err", TargetID: "fn", RelationType: graph.EdgeRaisedBy},
		},
	}
	data, err := json.Marshal(tr)
	require.NoError(t, err)
	path := filepath.Join(e.dir, "trajectory.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (e *env) stats(t *testing.T) graph.Stats {
	t.Helper()
	out, err := e.run(t, "stats", "--json")
	require.NoError(t, err)
	var st graph.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	return st
}

func TestBuildAndStats(t *testing.T) {
	e := newEnv(t, nil)
	path := e.writeTrajectory(t)

	out, err := e.run(t, "build", path)
	require.NoError(t, err)
	assert.Contains(t, out, "marshmallow-1")
	assert.FileExists(t, e.graph)

	st := e.stats(t)
	assert.Equal(t, 5, st.TotalNodes)
	assert.Equal(t, 2, st.NodesByKind[graph.NodeEpisode])
	assert.Equal(t, 3, st.NodesByKind[graph.NodeSemantic])

	// An instance already in the graph is rejected unless --fresh is given.
	_, err = e.run(t, "build", path)
	require.Error(t, err)
	_, err = e.run(t, "build", "--fresh", path)
	require.NoError(t, err)
	assert.Equal(t, 5, e.stats(t).TotalNodes)

	out, err = e.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Nodes:")
	assert.Contains(t, out, "DEFINED_IN:")
}

func TestStatsWithoutGraph(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), e.graph)
}

func TestSubgraph(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "build", "--source-ids", "--no-link", e.writeTrajectory(t))
	require.NoError(t, err)

	out, err := e.run(t, "subgraph", "fn", "--hops", "1", "-o", "ids")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "0\tfn", lines[0])
	assert.Contains(t, out, "1\tfile")
	assert.Contains(t, out, "1\terr")

	out, err = e.run(t, "subgraph", "fn", "--edge-type", "DEFINED_IN", "-o", "ids")
	require.NoError(t, err)
	assert.Equal(t, "0\tfn\n1\tfile\n", out)

	_, err = e.run(t, "subgraph", "fn", "--edge-type", "BOGUS")
	require.Error(t, err)
	_, err = e.run(t, "subgraph", "missing")
	require.Error(t, err)
	_, err = e.run(t, "subgraph", "fn", "-o", "xml")
	require.Error(t, err)
}

func TestNodes(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "build", "--source-ids", "--no-link", e.writeTrajectory(t))
	require.NoError(t, err)

	out, err := e.run(t, "nodes", "--type", "function")
	require.NoError(t, err)
	assert.Equal(t, "fn\t_serialize\tsrc/fields.py\n", out)

	out, err = e.run(t, "nodes", "-t", "class", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = e.run(t, "nodes", "--type", "bogus")
	require.Error(t, err)
}

func TestInvalidate(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "build", "--source-ids", "--no-link", e.writeTrajectory(t))
	require.NoError(t, err)

	g, err := persist.LoadFile(e.graph)
	require.NoError(t, err)
	var defined string
	for _, edge := range g.Edges() {
		if edge.Type == graph.EdgeDefinedIn {
			defined = edge.ID
		}
	}
	require.NotEmpty(t, defined)

	out, err := e.run(t, "invalidate", defined, "--at", "2024-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "invalidated "+defined+"\n", out)

	st := e.stats(t)
	assert.Equal(t, st.TotalEdges-1, st.ValidEdges)
	out, err = e.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Valid edges:")

	g, err = persist.LoadFile(e.graph)
	require.NoError(t, err)
	edge, ok := g.Edge(defined)
	require.True(t, ok)
	require.NotNil(t, edge.InvalidAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), edge.InvalidAt.UTC())

	out, err = e.run(t, "subgraph", "fn", "--edge-type", "DEFINED_IN", "-o", "ids")
	require.NoError(t, err)
	assert.Equal(t, "0\tfn\n1\tfile\n", out)
	out, err = e.run(t, "subgraph", "fn", "--edge-type", "DEFINED_IN", "--valid-only", "-o", "ids")
	require.NoError(t, err)
	assert.Equal(t, "0\tfn\n", out)

	_, err = e.run(t, "invalidate", "missing")
	require.Error(t, err)
	_, err = e.run(t, "invalidate", defined, "--at", "yesterday")
	require.Error(t, err)
}

func TestLink(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "build", "--source-ids", "--no-link", e.writeTrajectory(t))
	require.NoError(t, err)
	before := e.stats(t).EdgesByType[graph.EdgeRelatedTo]
	assert.Zero(t, before)

	out, err := e.run(t, "link")
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	assert.Positive(t, e.stats(t).EdgesByType[graph.EdgeRelatedTo])

	out, err = e.run(t, "link")
	require.NoError(t, err)
	assert.Equal(t, "created 0 links\n", out)

	_, err = e.run(t, "link", "missing")
	require.Error(t, err)
	_, err = e.run(t, "link", "--top-k", "-1")
	require.Error(t, err)
}

func TestExport(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "build", "--source-ids", e.writeTrajectory(t))
	require.NoError(t, err)

	out, err := e.run(t, "export", "cypher")
	require.NoError(t, err)
	assert.Contains(t, out, "MERGE (n:Node {id: 'fn'}) SET n:Semantic:Function")
	assert.Contains(t, out, ":DEFINED_IN")

	path := filepath.Join(e.dir, "notes.jsonl")
	_, err = e.run(t, "export", "notes", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	var note struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &note))
	assert.NotEmpty(t, note.ID)
}

func TestSnapshots(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "build", e.writeTrajectory(t))
	require.NoError(t, err)

	out, err := e.run(t, "snapshot", "save", "baseline")
	require.NoError(t, err)
	assert.Equal(t, "saved snapshot \"baseline\"\n", out)

	out, err = e.run(t, "snapshot", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "baseline")

	require.NoError(t, os.Remove(e.graph))
	_, err = e.run(t, "snapshot", "load", "baseline")
	require.NoError(t, err)
	assert.Equal(t, 5, e.stats(t).TotalNodes)

	_, err = e.run(t, "snapshot", "delete", "baseline")
	require.NoError(t, err)
	_, err = e.run(t, "snapshot", "load", "baseline")
	require.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t, func(c *config.Config) { c.Traversal.MaxHops = 4 })

	out, err := e.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_hops: 4")

	path := filepath.Join(e.dir, "fresh.yaml")
	_, err = e.run(t, "config", "init", path)
	require.NoError(t, err)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Traversal.MaxHops, cfg.Traversal.MaxHops)

	_, err = e.run(t, "config", "init", path)
	require.Error(t, err)
	_, err = e.run(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestLogLevelOverride(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.run(t, "--log-level", "loud", "config", "show")
	require.Error(t, err)
}

func TestRedisPushPull(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newEnv(t, func(c *config.Config) { c.Redis.URL = "redis://" + mr.Addr() })
	_, err := e.run(t, "build", e.writeTrajectory(t))
	require.NoError(t, err)

	out, err := e.run(t, "push", "redis", "--name", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "pushed document to contextgraph:documents\n", out)

	out, err = e.run(t, "push", "redis", "--notes")
	require.NoError(t, err)
	assert.Equal(t, "pushed 3 notes to contextgraph:notes\n", out)

	require.NoError(t, os.Remove(e.graph))
	out, err = e.run(t, "pull", "redis", "--timeout", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, `pulled "run-1"`)
	assert.Equal(t, 5, e.stats(t).TotalNodes)
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	e := newEnv(t, nil)
	out, err := e.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ctxgraph 1.2.3")
	assert.Contains(t, out, "commit: abc")
}

func TestDoctor(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newEnv(t, func(c *config.Config) {
		c.Redis.URL = "redis://" + mr.Addr()
		c.Neo4j.URI = "neo4j://127.0.0.1:1"
	})

	// Without a graph document the required graph check fails.
	out, err := e.run(t, "doctor", "--timeout", "2s")
	require.Error(t, err)
	assert.Contains(t, out, "graph")

	_, err = e.run(t, "build", e.writeTrajectory(t))
	require.NoError(t, err)

	out, err = e.run(t, "doctor", "--json", "--timeout", "2s")
	require.NoError(t, err)
	var report struct {
		Checks  []map[string]any `json:"checks"`
		Overall map[string]any   `json:"overall"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Checks, 4)
	status := map[string]any{}
	for _, c := range report.Checks {
		status[c["name"].(string)] = c["status"]
	}
	assert.Equal(t, "healthy", status["graph"])
	assert.Equal(t, "healthy", status["snapshots"])
	assert.Equal(t, "healthy", status["redis"])
	assert.Equal(t, "degraded", status["neo4j"])
	assert.Equal(t, "degraded", report.Overall["status"])
}

func TestWatchBuildEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newEnv(t, func(c *config.Config) { c.Redis.URL = "redis://" + mr.Addr() })
	path := e.writeTrajectory(t)

	var (
		out string
		err error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out, err = e.run(t, "watch", "--count", "1", "--timeout", "5s")
	}()

	// The subscription may not exist yet, so keep announcing until watch exits.
	_, buildErr := e.run(t, "build", "--publish", path)
	require.NoError(t, buildErr)
	for {
		select {
		case <-done:
			require.NoError(t, err)
			assert.Contains(t, out, "built")
			assert.Contains(t, out, "nodes=5")
			return
		case <-time.After(20 * time.Millisecond):
			_, pubErr := e.run(t, "build", "--fresh", "--publish", path)
			require.NoError(t, pubErr)
		}
	}
}
