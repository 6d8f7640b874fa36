package builder

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics holds the metric instruments of a Builder. They are created
// once in New and reused for every build.
type otelMetrics struct {
	// trajectories counts completed builds
	trajectories metric.Int64Counter

	// elements counts inserted nodes and edges, by element kind
	elements metric.Int64Counter

	// skipped counts relations and accesses dropped for unresolved
	// endpoints
	skipped metric.Int64Counter

	// duration records build duration in milliseconds
	duration metric.Float64Histogram
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	m := &otelMetrics{}
	var err error

	m.trajectories, err = meter.Int64Counter(
		"contextgraph.builder.trajectories",
		metric.WithDescription("Number of trajectories built into the graph"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create trajectories counter: %w", err)
	}

	m.elements, err = meter.Int64Counter(
		"contextgraph.builder.elements",
		metric.WithDescription("Number of nodes and edges inserted by the builder"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create elements counter: %w", err)
	}

	m.skipped, err = meter.Int64Counter(
		"contextgraph.builder.skipped",
		metric.WithDescription("Number of relations and accesses skipped for unresolved endpoints"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"contextgraph.builder.duration",
		metric.WithDescription("Trajectory build duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

func (m *otelMetrics) record(ctx context.Context, r *Report, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.trajectories.Add(ctx, 1)
	m.elements.Add(ctx, int64(r.EpisodesAdded+r.EntitiesAdded),
		metric.WithAttributes(attribute.String("element", "node")))
	m.elements.Add(ctx, int64(r.RelationsAdded+r.AccessesAdded+r.LinksAdded),
		metric.WithAttributes(attribute.String("element", "edge")))
	m.skipped.Add(ctx, int64(r.RelationsSkipped),
		metric.WithAttributes(attribute.String("reason", "relation")))
	m.skipped.Add(ctx, int64(r.AccessesSkipped),
		metric.WithAttributes(attribute.String("reason", "access")))
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000)
}
