package contextgraph

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/persist"
)

// mockCloser is a test double that implements io.Closer
type mockCloser struct {
	closeErr   error
	closeCalls int
}

func (m *mockCloser) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestCloseWithLog(t *testing.T) {
	t.Run("nil closer", func(t *testing.T) {
		var logBuf bytes.Buffer
		CloseWithLog(nil, slog.New(slog.NewTextHandler(&logBuf, nil)), "snapshot store")
		assert.Empty(t, logBuf.String())
	})

	t.Run("successful close", func(t *testing.T) {
		closer := &mockCloser{}
		var logBuf bytes.Buffer
		CloseWithLog(closer, slog.New(slog.NewTextHandler(&logBuf, nil)), "snapshot store")
		assert.Equal(t, 1, closer.closeCalls)
		assert.Empty(t, logBuf.String())
	})

	t.Run("close error", func(t *testing.T) {
		closer := &mockCloser{closeErr: errors.New("database is locked")}
		var logBuf bytes.Buffer
		CloseWithLog(closer, slog.New(slog.NewTextHandler(&logBuf, nil)), "snapshot store")

		out := logBuf.String()
		assert.Contains(t, out, "failed to close resource")
		assert.Contains(t, out, "snapshot store")
		assert.Contains(t, out, "database is locked")
	})
}

func TestErrorKinds(t *testing.T) {
	_, err := graph.NewStore().AddEdge(graph.Edge{Type: graph.EdgeCalls, SourceID: "a", TargetID: "b"})
	assert.True(t, IsValidation(err))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, IsNotFound(err))

	var gerr *Error
	assert.True(t, errors.As(err, &gerr))
	assert.Equal(t, graph.KindValidation, gerr.Kind)
}

func TestLoadErrorKeepsWrappedKind(t *testing.T) {
	doc := persist.Save(graph.NewStore())
	doc.Edges = []graph.Edge{{ID: "r1", Type: graph.EdgeCalls, SourceID: "ghost", TargetID: "other"}}

	_, err := persist.Load(doc)
	assert.True(t, IsLoad(err))
	assert.True(t, IsValidation(err), "dangling edge is still a validation failure")
	assert.False(t, IsNotFound(err))

	var gerr *Error
	assert.True(t, errors.As(err, &gerr))
	assert.Equal(t, graph.KindLoad, gerr.Kind)

	_, err = persist.Load(&persist.Document{Version: 99})
	assert.True(t, IsLoad(err))
	assert.False(t, IsValidation(err), "version mismatch wraps no validation error")
}
