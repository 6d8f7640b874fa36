package contextgraph

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/contextgraph/link"
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	link        link.Config
	linkOnBuild bool
	sourceIDs   bool
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:      slog.New(slog.DiscardHandler),
		link:        link.DefaultConfig(),
		linkOnBuild: true,
	}
}

// WithLogger sets the logger shared by the engine's components.
// If not provided, logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets an OpenTelemetry tracer for builds.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeter enables build and link metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *engineConfig) {
		c.meter = meter
	}
}

// WithLinkConfig sets the link generator's tunables.
func WithLinkConfig(cfg link.Config) Option {
	return func(c *engineConfig) {
		c.link = cfg
	}
}

// WithBuildLinking controls whether builds link the semantic nodes they
// create. Enabled by default.
func WithBuildLinking(enabled bool) Option {
	return func(c *engineConfig) {
		c.linkOnBuild = enabled
	}
}

// WithSourceIDs keeps trajectory entity and relation ids as graph ids.
func WithSourceIDs() Option {
	return func(c *engineConfig) {
		c.sourceIDs = true
	}
}
