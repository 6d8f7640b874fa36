package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph"
	"github.com/zero-day-ai/contextgraph/queue"
	"github.com/zero-day-ai/contextgraph/sink"
)

func newPushCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send the graph to an external store",
	}
	cmd.AddCommand(newPushNeo4jCmd(a), newPushRedisCmd(a))
	return cmd
}

func newPushNeo4jCmd(a *app) *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "neo4j",
		Short: "Write the graph to Neo4j in one transaction",
		Long: `Write the graph to the Neo4j server in the neo4j config section. Statements
are idempotent MERGEs, so pushing the same graph twice changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := sink.NewNeo4jSink(ctx, a.cfg.Neo4j, sink.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(ctx); err != nil {
					a.logger.Warn("failed to close resource", "resource", "neo4j driver", "error", err)
				}
			}()

			if schema {
				if err := s.EnsureSchema(ctx); err != nil {
					return err
				}
			}
			stmts := eng.Cypher()
			if err := s.Apply(ctx, stmts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements to %s\n", len(stmts), a.cfg.Neo4j.URI)
			return nil
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", true, "create id uniqueness constraints first")
	return cmd
}

func newPushRedisCmd(a *app) *cobra.Command {
	var (
		name  string
		notes bool
	)
	cmd := &cobra.Command{
		Use:   "redis",
		Short: "Queue the graph document, or its notes, on Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.existingEngine()
			if err != nil {
				return err
			}
			if name == "" {
				name = a.graphPath
			}
			client, err := a.redisClient()
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(client, a.logger, "redis client")

			return pushRedis(cmd, a, eng, client, name, notes)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "message name (default: the graph path)")
	cmd.Flags().BoolVar(&notes, "notes", false, "push memory notes instead of the document")
	return cmd
}

func pushRedis(cmd *cobra.Command, a *app, eng *contextgraph.Engine, client queue.Client, name string, notes bool) error {
	ctx := cmd.Context()
	var target string
	if notes {
		ns := eng.Notes()
		if err := client.PushNotes(ctx, a.cfg.Redis.NoteQueue, name, ns); err != nil {
			return err
		}
		target = fmt.Sprintf("%d notes to %s", len(ns), a.cfg.Redis.NoteQueue)
	} else {
		if err := client.PushDocument(ctx, a.cfg.Redis.DocumentQueue, name, eng.Snapshot()); err != nil {
			return err
		}
		target = "document to " + a.cfg.Redis.DocumentQueue
	}

	st := eng.Stats()
	ev := queue.Event{Kind: queue.EventPushed, Name: name, Nodes: st.TotalNodes, Edges: st.TotalEdges}
	if err := client.Publish(ctx, a.cfg.Redis.EventChannel, ev); err != nil {
		a.logger.Warn("failed to publish push event", "error", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %s\n", target)
	return nil
}

func newPullCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Replace the graph with one received from a queue",
	}
	redisCmd := &cobra.Command{
		Use:   "redis",
		Short: "Pop the oldest graph document from the Redis document queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.redisClient()
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(client, a.logger, "redis client")
			return pullRedis(cmd, a, client, timeout)
		},
	}
	redisCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for a document (0 waits forever)")
	cmd.AddCommand(redisCmd)
	return cmd
}

func pullRedis(cmd *cobra.Command, a *app, client queue.Client, timeout time.Duration) error {
	ctx := cmd.Context()
	msg, err := client.PopDocument(ctx, a.cfg.Redis.DocumentQueue, timeout)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("no document on %s after %s", a.cfg.Redis.DocumentQueue, timeout)
	}

	eng, err := contextgraph.New(contextgraph.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := eng.Restore(msg.Document); err != nil {
		return fmt.Errorf("document %q: %w", msg.Name, err)
	}
	if err := eng.SaveFile(a.graphPath); err != nil {
		return err
	}

	st := eng.Stats()
	ev := queue.Event{Kind: queue.EventLoaded, Name: msg.Name, Nodes: st.TotalNodes, Edges: st.TotalEdges}
	if err := client.Publish(ctx, a.cfg.Redis.EventChannel, ev); err != nil {
		a.logger.Warn("failed to publish load event", "error", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pulled %q into %s: %d nodes, %d edges\n", msg.Name, a.graphPath, st.TotalNodes, st.TotalEdges)
	return nil
}
