package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph/health"
	"github.com/zero-day-ai/contextgraph/persist/sqlite"
	"github.com/zero-day-ai/contextgraph/queue"
	"github.com/zero-day-ai/contextgraph/sink"
)

func newDoctorCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the graph document and configured stores",
		Long: `Load the graph document, open the snapshot database and connect to Redis
and Neo4j. The graph document and the snapshot database are required;
Redis and Neo4j only degrade the result when unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := health.Run(cmd.Context(), timeout, a.checks()...)
			overall := health.Combine(results...)

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"checks": results, "overall": overall}); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Status, r.Message)
				}
				fmt.Fprintf(tw, "\t%s\t%s\n", overall.Status, overall.Message)
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if overall.IsUnhealthy() {
				return errors.New(overall.Message)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-check timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func (a *app) checks() []health.Check {
	return []health.Check{
		{
			Name: "graph",
			Probe: func(context.Context) error {
				_, err := a.existingEngine()
				return err
			},
		},
		{
			Name: "snapshots",
			Probe: func(ctx context.Context) error {
				store, err := sqlite.Open(ctx, a.cfg.Store.Snapshots, sqlite.WithLogger(a.logger))
				if err != nil {
					return err
				}
				return store.Close()
			},
		},
		{
			Name:     "redis",
			Optional: true,
			Probe: func(ctx context.Context) error {
				timeout := a.cfg.Redis.GetConnectTimeout()
				if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
					timeout = time.Until(dl)
				}
				client, err := queue.NewRedisClient(queue.RedisOptions{
					URL:            a.cfg.Redis.URL,
					ConnectTimeout: timeout,
					Logger:         a.logger,
				})
				if err != nil {
					return err
				}
				return client.Close()
			},
		},
		{
			Name:     "neo4j",
			Optional: true,
			Probe: func(ctx context.Context) error {
				s, err := sink.NewNeo4jSink(ctx, a.cfg.Neo4j, sink.WithLogger(a.logger))
				if err != nil {
					return err
				}
				return s.Close(ctx)
			},
		},
	}
}
