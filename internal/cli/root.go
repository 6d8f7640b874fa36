// Package cli implements the ctxgraph command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph"
	"github.com/zero-day-ai/contextgraph/config"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// app is the state shared by all commands of one invocation.
type app struct {
	configPath string
	graphPath  string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the ctxgraph command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ctxgraph",
		Short: "Build and query context graphs from agent trajectories",
		Long: `ctxgraph turns agent trajectories into a context graph of episodes,
code entities and the relations between them.

The graph lives in a JSON or YAML document (--graph). Commands read it,
change it and write it back. Named snapshots can be kept in SQLite, and
graphs can be pushed to Neo4j or Redis.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ctxgraph.yaml in the working directory or a parent)")
	root.PersistentFlags().StringVarP(&a.graphPath, "graph", "g", "graph.json", "graph document (.json, .yaml or .yml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newBuildCmd(a),
		newStatsCmd(a),
		newSubgraphCmd(a),
		newNodesCmd(a),
		newInvalidateCmd(a),
		newLinkCmd(a),
		newExportCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newWatchCmd(a),
		newSnapshotCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if _, err := config.ParseLevel(a.logLevel); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
	return nil
}

// engine creates an engine configured from the loaded config and, when the
// graph document exists, loads it.
func (a *app) engine(extra ...contextgraph.Option) (*contextgraph.Engine, error) {
	opts := []contextgraph.Option{
		contextgraph.WithLogger(a.logger),
		contextgraph.WithLinkConfig(a.cfg.Link),
		contextgraph.WithBuildLinking(a.cfg.Builder.Link),
	}
	if a.cfg.Builder.SourceIDs {
		opts = append(opts, contextgraph.WithSourceIDs())
	}
	eng, err := contextgraph.New(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(a.graphPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return eng, nil
		}
		return nil, err
	}
	if err := eng.LoadFile(a.graphPath); err != nil {
		return nil, fmt.Errorf("load %s: %w", a.graphPath, err)
	}
	return eng, nil
}

// existingEngine is engine for commands that need a graph to exist.
func (a *app) existingEngine() (*contextgraph.Engine, error) {
	if _, err := os.Stat(a.graphPath); err != nil {
		return nil, fmt.Errorf("graph %s: %w", a.graphPath, err)
	}
	return a.engine()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ctxgraph %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}
