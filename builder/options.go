package builder

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/contextgraph/link"
)

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. Skipped relations and accesses are logged at
// debug level, completed builds at info level.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracer sets an OpenTelemetry tracer. Every Build runs in a
// "builder.Build" span.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Builder) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// WithMeter enables the builder metrics.
func WithMeter(meter metric.Meter) Option {
	return func(b *Builder) {
		b.meter = meter
	}
}

// WithLinker runs the link generator for every semantic node a build
// creates, after all of the build's edges are present.
func WithLinker(g *link.Generator) Option {
	return func(b *Builder) {
		b.linker = g
	}
}

// WithSourceIDs makes the builder use entity and relation ids as node and
// edge ids. By default they are trajectory-local references: semantic nodes
// get the deterministic id of their dedup key and edges get a generated id,
// so trajectories from independent extractors can share one store.
func WithSourceIDs() Option {
	return func(b *Builder) {
		b.sourceIDs = true
	}
}
