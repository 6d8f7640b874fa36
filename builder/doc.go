// Package builder turns agent trajectories into context graph nodes and
// edges.
//
// A Trajectory carries the raw steps of one agent run together with the
// entities and relations an upstream extractor found in it. Build writes a
// trajectory into a shared graph.Store:
//
//	store := graph.NewStore()
//	b, err := builder.New(store, builder.WithLinker(link.New()))
//	if err != nil {
//	    return err
//	}
//	report, err := b.Build(ctx, trajectory)
//
// Entities are deduplicated on (type, name, file path), so building several
// trajectories into one store merges what they observed about the same code.
// Relations whose endpoints cannot be resolved are skipped and counted in the
// Report instead of failing the build.
package builder
