package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/contextgraph/graph"
	"github.com/zero-day-ai/contextgraph/graph/id"
	"github.com/zero-day-ai/contextgraph/link"
)

// Report summarizes one Build call.
type Report struct {
	InstanceID string `json:"instance_id"`

	EpisodesAdded  int `json:"episodes_added"`
	EntitiesAdded  int `json:"entities_added"`
	EntitiesMerged int `json:"entities_merged"`
	RelationsAdded int `json:"relations_added"`
	AccessesAdded  int `json:"accesses_added"`
	LinksAdded     int `json:"links_added"`

	// RelationsSkipped counts relations with an unresolved endpoint or whose
	// endpoints collapsed into one node after deduplication.
	RelationsSkipped int `json:"relations_skipped"`

	// AccessesSkipped counts step entity references that did not resolve.
	AccessesSkipped int `json:"accesses_skipped"`

	// NewNodeIDs lists the semantic nodes this build created, in creation
	// order.
	NewNodeIDs []string `json:"new_node_ids,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Builder ingests trajectories into a shared store. Several Build calls on
// one Builder merge their trajectories through semantic deduplication.
//
// Builder is not safe for concurrent use.
type Builder struct {
	store     *graph.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	metrics   *otelMetrics
	linker    *link.Generator
	sourceIDs bool
}

// New creates a Builder writing into store.
func New(store *graph.Store, opts ...Option) (*Builder, error) {
	b := &Builder{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		tracer: noop.NewTracerProvider().Tracer("contextgraph/builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	m, err := newOTelMetrics(b.meter)
	if err != nil {
		return nil, fmt.Errorf("init builder metrics: %w", err)
	}
	b.metrics = m
	return b, nil
}

// Store returns the store the builder writes into.
func (b *Builder) Store() *graph.Store { return b.store }

// Build adds one trajectory to the store:
//  1. an episode node per step
//  2. a semantic node per entity, deduplicated against the store
//  3. an edge per relation whose endpoints resolve to distinct nodes
//  4. an ACCESSES edge from each step's episode to every entity it touched
//  5. inferred links for the new semantic nodes, when a linker is set
//
// The whole trajectory is validated first; a validation error leaves the
// store untouched. Unresolved relation endpoints and entity references are
// not errors; they are counted in the report.
func (b *Builder) Build(ctx context.Context, t Trajectory) (*Report, error) {
	ctx, span := b.tracer.Start(ctx, "builder.Build",
		trace.WithAttributes(
			attribute.String("trajectory.instance_id", t.InstanceID),
			attribute.Int("trajectory.steps", len(t.Steps)),
			attribute.Int("trajectory.entities", len(t.Entities)),
			attribute.Int("trajectory.relations", len(t.Relations)),
		))
	defer span.End()
	start := time.Now()

	if err := b.validate(t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trajectory rejected")
		return nil, err
	}

	report := &Report{InstanceID: t.InstanceID}
	if err := b.apply(t, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return report, err
	}

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("build.episodes_added", report.EpisodesAdded),
		attribute.Int("build.entities_added", report.EntitiesAdded),
		attribute.Int("build.entities_merged", report.EntitiesMerged),
		attribute.Int("build.relations_added", report.RelationsAdded),
		attribute.Int("build.relations_skipped", report.RelationsSkipped),
		attribute.Int("build.links_added", report.LinksAdded),
	)
	span.SetStatus(codes.Ok, "")
	b.metrics.record(ctx, report, report.Duration)

	b.logger.Info("trajectory built",
		"instance_id", t.InstanceID,
		"episodes", report.EpisodesAdded,
		"entities_added", report.EntitiesAdded,
		"entities_merged", report.EntitiesMerged,
		"relations", report.RelationsAdded,
		"relations_skipped", report.RelationsSkipped,
		"accesses", report.AccessesAdded,
		"accesses_skipped", report.AccessesSkipped,
		"links", report.LinksAdded,
		"duration", report.Duration)
	return report, nil
}

// BuildAll builds several trajectories in order and stops at the first
// error. The returned reports cover the trajectories built so far.
func (b *Builder) BuildAll(ctx context.Context, ts []Trajectory) ([]*Report, error) {
	reports := make([]*Report, 0, len(ts))
	for _, t := range ts {
		r, err := b.Build(ctx, t)
		if err != nil {
			return reports, fmt.Errorf("build trajectory %q: %w", t.InstanceID, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (b *Builder) apply(t Trajectory, report *Report) error {
	episodes := make(map[int]string, len(t.Steps))
	stepTimes := make(map[int]*time.Time, len(t.Steps))
	for _, st := range t.Steps {
		stepTimes[st.StepID] = st.Timestamp
		epID, err := b.store.AddEpisode(graph.EpisodeNode{
			ID:          id.Episode(t.InstanceID, st.StepID),
			InstanceID:  t.InstanceID,
			StepIndex:   st.StepID,
			Thought:     st.Thought,
			Action:      st.Action,
			ActionType:  st.ActionType,
			Observation: st.Observation,
			Timestamp:   st.Timestamp,
			State:       st.State,
		})
		if err != nil {
			return err
		}
		episodes[st.StepID] = epID
		report.EpisodesAdded++
	}

	alias := make(map[string]string, len(t.Entities))
	for _, e := range t.Entities {
		n := graph.SemanticNode{
			Type:       e.EntityType,
			Name:       e.Name,
			FilePath:   e.FilePath,
			Summary:    e.Summary,
			Attributes: e.Attributes,
		}
		if b.sourceIDs {
			n.ID = e.EntityID
		}
		before := b.store.NodeCount()
		nodeID, err := b.store.AddSemantic(n)
		if err != nil {
			return err
		}
		alias[e.EntityID] = nodeID
		if b.store.NodeCount() > before {
			report.EntitiesAdded++
			report.NewNodeIDs = append(report.NewNodeIDs, nodeID)
		} else {
			report.EntitiesMerged++
		}
	}

	resolve := func(ref string) (string, bool) {
		if nodeID, ok := alias[ref]; ok {
			return nodeID, true
		}
		if b.store.Has(ref) {
			return ref, true
		}
		return "", false
	}

	for _, r := range t.Relations {
		src, okSrc := resolve(r.SourceID)
		tgt, okTgt := resolve(r.TargetID)
		if !okSrc || !okTgt {
			report.RelationsSkipped++
			b.logger.Debug("relation skipped: unresolved endpoint",
				"instance_id", t.InstanceID,
				"relation_id", r.RelationID,
				"source_id", r.SourceID,
				"target_id", r.TargetID)
			continue
		}
		if src == tgt {
			report.RelationsSkipped++
			b.logger.Debug("relation skipped: endpoints merged into one node",
				"instance_id", t.InstanceID,
				"relation_id", r.RelationID,
				"node_id", src)
			continue
		}

		e := graph.Edge{
			Type:     r.RelationType,
			SourceID: src,
			TargetID: tgt,
			Fact:     r.Fact,
			Context:  r.Context,
			ValidAt:  r.ValidAt,
		}
		if b.sourceIDs {
			e.ID = r.RelationID
		}
		if e.ValidAt == nil && len(r.StepIDs) > 0 {
			e.ValidAt = stepTimes[r.StepIDs[0]]
		}
		for _, stepID := range r.StepIDs {
			if epID, ok := episodes[stepID]; ok {
				e.SourceEpisodeIDs = append(e.SourceEpisodeIDs, epID)
			}
		}
		if _, err := b.store.AddEdge(e); err != nil {
			return err
		}
		report.RelationsAdded++
	}

	for _, st := range t.Steps {
		epID := episodes[st.StepID]
		for _, ref := range st.EntityIDs {
			tgt, ok := resolve(ref)
			if !ok || tgt == epID {
				report.AccessesSkipped++
				b.logger.Debug("access skipped: unresolved entity",
					"instance_id", t.InstanceID,
					"step_id", st.StepID,
					"entity_id", ref)
				continue
			}
			if b.store.HasEdge(epID, tgt, graph.EdgeAccesses) {
				continue
			}
			if _, err := b.store.AddEdge(graph.Edge{
				Type:             graph.EdgeAccesses,
				SourceID:         epID,
				TargetID:         tgt,
				Fact:             fmt.Sprintf("step %d accessed %s", st.StepID, ref),
				Timestamp:        st.Timestamp,
				ValidAt:          st.Timestamp,
				SourceEpisodeIDs: []string{epID},
			}); err != nil {
				return err
			}
			report.AccessesAdded++
		}
	}

	if b.linker != nil {
		for _, nodeID := range report.NewNodeIDs {
			report.LinksAdded += len(b.linker.Generate(b.store, nodeID))
		}
	}
	return nil
}

// validate checks the whole trajectory against the store before anything is
// written.
func (b *Builder) validate(t Trajectory) error {
	const op = "Builder.Build"
	fail := func(cause error, kv ...any) error {
		ctx := map[string]any{"instance_id": t.InstanceID}
		for i := 0; i+1 < len(kv); i += 2 {
			ctx[kv[i].(string)] = kv[i+1]
		}
		return graph.NewValidationError(op, cause, ctx)
	}
	attrFail := func(err error, kv ...any) error {
		cause := graph.ErrInvalidArgument
		if errors.Is(err, graph.ErrInvalidText) {
			cause = graph.ErrInvalidText
		}
		return fail(cause, append(kv, "detail", err.Error())...)
	}

	if f := graph.InvalidText("instance_id", t.InstanceID, "repo", t.Repo); f != "" {
		return fail(graph.ErrInvalidText, "field", f)
	}

	claimed := make(map[string]bool)
	steps := make(map[int]bool, len(t.Steps))
	for _, st := range t.Steps {
		if steps[st.StepID] {
			return fail(graph.ErrDuplicateID, "step_id", st.StepID)
		}
		steps[st.StepID] = true
		epID := id.Episode(t.InstanceID, st.StepID)
		if b.store.Has(epID) {
			return fail(graph.ErrDuplicateID, "node_id", epID)
		}
		claimed[epID] = true
		if f := graph.InvalidText("thought", st.Thought, "action", st.Action, "action_type", st.ActionType, "observation", st.Observation); f != "" {
			return fail(graph.ErrInvalidText, "step_id", st.StepID, "field", f)
		}
		if err := st.State.Validate(); err != nil {
			return attrFail(err, "step_id", st.StepID)
		}
	}

	refs := make(map[string]bool, len(t.Entities))
	batch := make(map[graph.DedupKey]string)
	for _, e := range t.Entities {
		switch {
		case e.EntityID == "":
			return fail(graph.ErrInvalidArgument, "field", "entity_id")
		case refs[e.EntityID]:
			return fail(graph.ErrDuplicateID, "entity_id", e.EntityID)
		case !e.EntityType.Valid():
			return fail(graph.ErrUnknownNodeType, "entity_id", e.EntityID, "entity_type", string(e.EntityType))
		case e.Name == "":
			return fail(graph.ErrInvalidArgument, "entity_id", e.EntityID, "field", "name")
		}
		refs[e.EntityID] = true
		if f := graph.InvalidText("entity_id", e.EntityID, "name", e.Name, "file_path", e.FilePath, "summary", e.Summary); f != "" {
			return fail(graph.ErrInvalidText, "entity_id", e.EntityID, "field", f)
		}
		if err := e.Attributes.Validate(); err != nil {
			return attrFail(err, "entity_id", e.EntityID)
		}
		if !b.sourceIDs {
			continue
		}

		key := graph.DedupKey{Type: e.EntityType, Name: e.Name, FilePath: e.FilePath}
		resolved, hit := batch[key]
		if !hit {
			resolved, hit = b.store.Resolve(key)
		}
		taken := b.store.Has(e.EntityID) || claimed[e.EntityID]
		if hit {
			if e.EntityID != resolved && taken {
				return fail(graph.ErrDuplicateID, "entity_id", e.EntityID, "resolved_id", resolved)
			}
			continue
		}
		if taken {
			return fail(graph.ErrDuplicateID, "entity_id", e.EntityID)
		}
		claimed[e.EntityID] = true
		batch[key] = e.EntityID
	}

	edgeIDs := make(map[string]bool)
	for _, r := range t.Relations {
		if !r.RelationType.Valid() {
			return fail(graph.ErrUnknownEdgeType, "relation_id", r.RelationID, "relation_type", string(r.RelationType))
		}
		if f := graph.InvalidText("relation_id", r.RelationID, "source_id", r.SourceID, "target_id", r.TargetID, "fact", r.Fact); f != "" {
			return fail(graph.ErrInvalidText, "relation_id", r.RelationID, "field", f)
		}
		if err := r.Context.Validate(); err != nil {
			return attrFail(err, "relation_id", r.RelationID)
		}
		if !b.sourceIDs || r.RelationID == "" {
			continue
		}
		if _, exists := b.store.Edge(r.RelationID); exists || edgeIDs[r.RelationID] {
			return fail(graph.ErrDuplicateEdgeID, "relation_id", r.RelationID)
		}
		edgeIDs[r.RelationID] = true
	}
	return nil
}
