package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/contextgraph/graph"
)

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count nodes and edges by kind and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			st := eng.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %-24s %d\n", "Nodes:", st.TotalNodes)
			for _, k := range graph.NodeKinds() {
				fmt.Fprintf(out, "    %-22s %d\n", string(k)+":", st.NodesByKind[k])
			}
			fmt.Fprintln(out, "\n  Semantic nodes by type:")
			for _, t := range graph.SemanticTypes() {
				fmt.Fprintf(out, "    %-22s %d\n", string(t)+":", st.SemanticByType[t])
			}
			fmt.Fprintf(out, "\n  %-24s %d\n", "Edges:", st.TotalEdges)
			fmt.Fprintf(out, "  %-24s %d\n", "Valid edges:", st.ValidEdges)
			for _, t := range graph.EdgeTypes() {
				fmt.Fprintf(out, "    %-22s %d\n", string(t)+":", st.EdgesByType[t])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newSubgraphCmd(a *app) *cobra.Command {
	var (
		hops      int
		edgeTypes []string
		validOnly bool
		format    string
	)
	cmd := &cobra.Command{
		Use:   "subgraph NODE_ID",
		Short: "Print the neighbourhood of a node",
		Long: `Print every node within --hops edges of NODE_ID, ignoring edge direction,
and the edges among them. --edge-type restricts which edges are followed and
--valid-only skips edges whose fact has been superseded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("hops") {
				hops = a.cfg.Traversal.MaxHops
			}
			if !cmd.Flags().Changed("edge-type") {
				edgeTypes = a.cfg.Traversal.EdgeTypes
			}
			if !cmd.Flags().Changed("valid-only") {
				validOnly = a.cfg.Traversal.ValidOnly
			}
			types, err := parseEdgeTypes(edgeTypes)
			if err != nil {
				return err
			}

			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			var opts []graph.TraversalOption
			if len(types) > 0 {
				opts = append(opts, graph.WithEdgeTypes(types...))
			}
			if validOnly {
				opts = append(opts, graph.ValidOnly())
			}
			sub, err := eng.Subgraph(args[0], hops, opts...)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), sub)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(sub); err != nil {
					return err
				}
				return enc.Close()
			case "ids":
				ids := sub.NodeIDs()
				sort.SliceStable(ids, func(i, j int) bool { return sub.Depth[ids[i]] < sub.Depth[ids[j]] })
				for _, id := range ids {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", sub.Depth[id], id)
				}
				return nil
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
		},
	}
	cmd.Flags().IntVar(&hops, "hops", 2, "maximum distance from the start node")
	cmd.Flags().StringSliceVar(&edgeTypes, "edge-type", nil, "edge types to follow (repeatable)")
	cmd.Flags().BoolVar(&validOnly, "valid-only", false, "skip invalidated edges")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json, yaml or ids")
	return cmd
}

func parseEdgeTypes(names []string) ([]graph.EdgeType, error) {
	out := make([]graph.EdgeType, 0, len(names))
	for _, n := range names {
		t := graph.EdgeType(n)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown edge type %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

func newLinkCmd(a *app) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "link [NODE_ID...]",
		Short: "Infer links between semantic nodes",
		Long: `Link the given semantic nodes, or every semantic node when none is given,
to their most related peers: same file, overlapping names, or accessed in
the same step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("top-k") {
				a.cfg.Link.TopK = topK
				if err := a.cfg.Link.Validate(); err != nil {
					return err
				}
			}
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}

			created := 0
			if len(args) == 0 {
				created = eng.LinkAll()
			} else {
				for _, id := range args {
					if _, err := eng.Node(id); err != nil {
						return err
					}
					created += len(eng.Link(id))
				}
			}
			if err := eng.SaveFile(a.graphPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d links\n", created)
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 5, "maximum links per node")
	return cmd
}

func newNodesCmd(a *app) *cobra.Command {
	var (
		nodeType string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List semantic nodes of one type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := graph.SemanticType(nodeType)
			if !t.Valid() {
				return fmt.Errorf("unknown node type %q", nodeType)
			}
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			nodes := eng.NodesByType(t)
			if asJSON {
				if nodes == nil {
					nodes = []graph.SemanticNode{}
				}
				return writeJSON(cmd.OutOrStdout(), nodes)
			}
			for _, n := range nodes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", n.ID, n.Name, n.FilePath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&nodeType, "type", "t", string(graph.TypeFunction), "semantic node type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newInvalidateCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "invalidate EDGE_ID",
		Short: "Mark an edge as no longer valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				when = t
			}
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			if err := eng.Invalidate(args[0], when); err != nil {
				return err
			}
			if err := eng.SaveFile(a.graphPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "invalidation time (RFC 3339, default now)")
	return cmd
}
