package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/contextgraph/export"
	"github.com/zero-day-ai/contextgraph/graph/graphtest"
)

// fakeDB records statements and commits them only when the work succeeds.
type fakeDB struct {
	committed [][]string
	failOn    string
	txs       int
}

func (f *fakeDB) write(ctx context.Context, work func(run runFunc) error) error {
	f.txs++
	var pending []string
	err := work(func(_ context.Context, query string, _ map[string]any) error {
		if f.failOn != "" && query == f.failOn {
			return errors.New("constraint violation")
		}
		pending = append(pending, query)
		return nil
	})
	if err != nil {
		return err
	}
	f.committed = append(f.committed, pending)
	return nil
}

func TestApply(t *testing.T) {
	db := &fakeDB{}
	s := newSink(db.write)

	stmts := export.Cypher(graphtest.Scenario(t))
	require.NoError(t, s.Apply(context.Background(), stmts))

	assert.Equal(t, 1, db.txs)
	require.Len(t, db.committed, 1)
	require.Len(t, db.committed[0], len(stmts))
	assert.Equal(t, stmts[0].Query, db.committed[0][0])
}

func TestApplyAllOrNothing(t *testing.T) {
	stmts := export.Cypher(graphtest.Scenario(t))
	db := &fakeDB{failOn: stmts[len(stmts)-1].Query}
	s := newSink(db.write)

	err := s.Apply(context.Background(), stmts)
	require.Error(t, err)
	assert.ErrorContains(t, err, "constraint violation")
	assert.Empty(t, db.committed)
}

func TestApplyEmpty(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, newSink(db.write).Apply(context.Background(), nil))
	assert.Zero(t, db.txs)
}

func TestWrite(t *testing.T) {
	db := &fakeDB{}
	g := graphtest.Scenario(t)
	require.NoError(t, newSink(db.write).Write(context.Background(), g))
	require.Len(t, db.committed, 1)
	assert.Len(t, db.committed[0], g.NodeCount()+g.EdgeCount())
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, newSink(db.write).EnsureSchema(context.Background()))

	assert.Equal(t, 2, db.txs)
	assert.Equal(t, []string{
		"CREATE CONSTRAINT node_id IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE",
	}, db.committed[0])
	assert.Contains(t, db.committed[1][0], "(n:Semantic)")

	db = &fakeDB{failOn: SchemaStatements()[1]}
	assert.Error(t, newSink(db.write).EnsureSchema(context.Background()))
}

func TestNeo4jConfigValidate(t *testing.T) {
	assert.Error(t, Neo4jConfig{}.Validate())
	assert.NoError(t, Neo4jConfig{URI: "neo4j://localhost:7687"}.Validate())

	_, err := NewNeo4jSink(context.Background(), Neo4jConfig{})
	assert.Error(t, err)
}

func TestCloseWithoutDriver(t *testing.T) {
	assert.NoError(t, newSink((&fakeDB{}).write).Close(context.Background()))
}
