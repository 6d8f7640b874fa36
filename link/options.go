package link

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Config holds the link generator's tunables.
type Config struct {
	// TopK caps the number of links created per call. Default is 5.
	TopK int `yaml:"top_k" json:"top_k" mapstructure:"top_k"`

	// MinNameLength is the shortest name the substring rule accepts as the
	// contained name. Default is 3.
	MinNameLength int `yaml:"min_name_length" json:"min_name_length" mapstructure:"min_name_length"`

	FileWeight         float64 `yaml:"file_weight" json:"file_weight" mapstructure:"file_weight"`
	NameWeight         float64 `yaml:"name_weight" json:"name_weight" mapstructure:"name_weight"`
	CoOccurrenceWeight float64 `yaml:"co_occurrence_weight" json:"co_occurrence_weight" mapstructure:"co_occurrence_weight"`

	// Evolve records each new link on its target node: the source is
	// appended to the target's related_entities attribute and the source
	// summary is stored as latest_related_info. Off by default.
	Evolve bool `yaml:"evolve" json:"evolve" mapstructure:"evolve"`
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		TopK:               5,
		MinNameLength:      3,
		FileWeight:         1.0,
		NameWeight:         0.6,
		CoOccurrenceWeight: 0.4,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.TopK < 0 {
		errs = append(errs, fmt.Errorf("top_k must be >= 0, got %d", c.TopK))
	}
	if c.MinNameLength < 1 {
		errs = append(errs, fmt.Errorf("min_name_length must be >= 1, got %d", c.MinNameLength))
	}
	weights := []struct {
		name string
		w    float64
	}{
		{"file_weight", c.FileWeight},
		{"name_weight", c.NameWeight},
		{"co_occurrence_weight", c.CoOccurrenceWeight},
	}
	for _, w := range weights {
		if w.w <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %v", w.name, w.w))
		}
	}
	return errors.Join(errs...)
}

// Option configures a Generator.
type Option func(*Generator)

// WithConfig replaces the generator's configuration.
func WithConfig(cfg Config) Option {
	return func(g *Generator) {
		g.cfg = cfg
	}
}

// WithTopK sets the maximum number of links created per call.
func WithTopK(k int) Option {
	return func(g *Generator) {
		g.cfg.TopK = k
	}
}

// WithEvolve turns target enrichment on or off.
func WithEvolve(on bool) Option {
	return func(g *Generator) {
		g.cfg.Evolve = on
	}
}

// WithClock sets the time source used to stamp enrichment entries.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMeter records the number of created links on the
// "contextgraph.links.created" counter.
func WithMeter(meter metric.Meter) Option {
	return func(g *Generator) {
		if meter == nil {
			return
		}
		counter, err := meter.Int64Counter(
			"contextgraph.links.created",
			metric.WithDescription("Number of links created by the link generator"),
			metric.WithUnit("1"),
		)
		if err != nil {
			g.logger.Warn("create link counter", "error", err)
			return
		}
		g.created = counter
	}
}
