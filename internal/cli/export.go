package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph"
	"github.com/zero-day-ai/contextgraph/export"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph for other systems",
	}
	cmd.AddCommand(newExportCypherCmd(a), newExportNotesCmd(a))
	return cmd
}

// withOutput runs fn against --out, or stdout when --out is empty.
func withOutput(cmd *cobra.Command, path string, fn func(w io.Writer) error) error {
	if path == "" {
		return fn(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newExportCypherCmd(a *app) *cobra.Command {
	var (
		out    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "cypher",
		Short: "Write the graph as Cypher MERGE statements",
		Long: `Write one MERGE statement per node and per edge. By default parameters are
inlined into a script runnable with cypher-shell. --json writes the
parameterised statements instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			stmts := eng.Cypher()
			return withOutput(cmd, out, func(w io.Writer) error {
				if asJSON {
					return writeJSON(w, stmts)
				}
				return export.WriteScript(w, stmts)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write parameterised statements as JSON")
	return cmd
}

func newExportNotesCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Write one memory note per semantic node as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			return withOutput(cmd, out, func(w io.Writer) error {
				return writeNotes(w, eng)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func writeNotes(w io.Writer, eng *contextgraph.Engine) error {
	enc := json.NewEncoder(w)
	for _, n := range eng.Notes() {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("encode note %s: %w", n.ID, err)
		}
	}
	return nil
}
