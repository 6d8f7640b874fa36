package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph"
	"github.com/zero-day-ai/contextgraph/persist/sqlite"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Keep named copies of the graph in SQLite",
		Long: `Save, restore and list named graph snapshots in the SQLite database at
store.snapshots (or --db).`,
	}
	cmd.PersistentFlags().StringVar(&db, "db", "", "snapshot database (default: store.snapshots)")

	open := func(cmd *cobra.Command) (*sqlite.Store, error) {
		path := db
		if path == "" {
			path = a.cfg.Store.Snapshots
		}
		return sqlite.Open(cmd.Context(), path, sqlite.WithLogger(a.logger))
	}

	save := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the graph under NAME, replacing any snapshot with that name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			store, err := open(cmd)
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(store, a.logger, "snapshot store")

			if err := store.Save(cmd.Context(), args[0], eng.Snapshot()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved snapshot %q\n", args[0])
			return nil
		},
	}

	load := &cobra.Command{
		Use:   "load NAME",
		Short: "Replace the graph document with snapshot NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd)
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(store, a.logger, "snapshot store")

			doc, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			eng, err := contextgraph.New(contextgraph.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := eng.Restore(doc); err != nil {
				return err
			}
			if err := eng.SaveFile(a.graphPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored snapshot %q to %s\n", args[0], a.graphPath)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd)
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(store, a.logger, "snapshot store")

			snaps, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tNODES\tEDGES\tCREATED")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Name, s.Nodes, s.Edges, s.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete snapshot NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd)
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(store, a.logger, "snapshot store")
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted snapshot %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(save, load, list, del)
	return cmd
}
