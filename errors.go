package contextgraph

import (
	"io"
	"log/slog"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Error is the structured error returned by graph operations.
type Error = graph.Error

// Kind sentinels. Every error returned by the engine's graph operations
// matches at least one of them with errors.Is. A load error that wraps a
// rejected node or edge also matches the kind of the wrapped error, so it
// satisfies both IsLoad and IsValidation.
var (
	ErrValidation = graph.ErrValidation
	ErrNotFound   = graph.ErrNotFound
	ErrLoad       = graph.ErrLoad
)

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return graph.IsValidation(err) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return graph.IsNotFound(err) }

// IsLoad reports whether err is a load error.
func IsLoad(err error) bool { return graph.IsLoad(err) }

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// If logger is nil, slog.Default() is used.
//
//	defer contextgraph.CloseWithLog(snapshots, logger, "snapshot store")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
