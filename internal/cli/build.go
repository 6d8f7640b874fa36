package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph"
	"github.com/zero-day-ai/contextgraph/builder"
)

func newBuildCmd(a *app) *cobra.Command {
	var (
		fresh     bool
		noLink    bool
		sourceIDs bool
		asJSON    bool
		publish   bool
	)
	cmd := &cobra.Command{
		Use:   "build TRAJECTORY...",
		Short: "Add trajectories to the graph",
		Long: `Read trajectories from .json, .jsonl, .yaml or .yml files and add them to
the graph document. Entities are merged with existing nodes of the same
type, name and file path.

Without --fresh the existing graph is extended.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var trajectories []builder.Trajectory
			for _, path := range args {
				ts, err := builder.ReadFile(path)
				if err != nil {
					return err
				}
				trajectories = append(trajectories, ts...)
			}

			var extra []contextgraph.Option
			if noLink {
				extra = append(extra, contextgraph.WithBuildLinking(false))
			}
			if sourceIDs {
				extra = append(extra, contextgraph.WithSourceIDs())
			}
			eng, err := a.engine(extra...)
			if err != nil {
				return err
			}
			if fresh {
				eng.Clear()
			}

			reports, err := eng.Build(cmd.Context(), trajectories...)
			if err != nil {
				return err
			}
			if err := eng.SaveFile(a.graphPath); err != nil {
				return err
			}
			if publish {
				if err := a.publishBuilt(cmd, eng); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			out := cmd.OutOrStdout()
			for _, r := range reports {
				fmt.Fprintf(out, "%-24s episodes=%d entities=%d merged=%d relations=%d skipped=%d accesses=%d links=%d\n",
					r.InstanceID, r.EpisodesAdded, r.EntitiesAdded, r.EntitiesMerged,
					r.RelationsAdded, r.RelationsSkipped, r.AccessesAdded, r.LinksAdded)
			}
			st := eng.Stats()
			fmt.Fprintf(out, "graph %s: %d nodes, %d edges\n", a.graphPath, st.TotalNodes, st.TotalEdges)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "start from an empty graph")
	cmd.Flags().BoolVar(&noLink, "no-link", false, "do not link new entities")
	cmd.Flags().BoolVar(&sourceIDs, "source-ids", false, "keep entity and relation ids as graph ids")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build reports as JSON")
	cmd.Flags().BoolVar(&publish, "publish", false, "announce the build on the Redis event channel")
	return cmd
}
