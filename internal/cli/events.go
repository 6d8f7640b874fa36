package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/contextgraph"
	"github.com/zero-day-ai/contextgraph/queue"
)

func (a *app) redisClient() (*queue.RedisClient, error) {
	return queue.NewRedisClient(queue.RedisOptions{
		URL:            a.cfg.Redis.URL,
		ConnectTimeout: a.cfg.Redis.GetConnectTimeout(),
		Logger:         a.logger,
	})
}

func (a *app) publishBuilt(cmd *cobra.Command, eng *contextgraph.Engine) error {
	client, err := a.redisClient()
	if err != nil {
		return err
	}
	defer contextgraph.CloseWithLog(client, a.logger, "redis client")

	st := eng.Stats()
	return client.Publish(cmd.Context(), a.cfg.Redis.EventChannel, queue.Event{
		Kind:  queue.EventBuilt,
		Name:  a.graphPath,
		Nodes: st.TotalNodes,
		Edges: st.TotalEdges,
	})
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		count   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print graph events from the Redis event channel",
		Long: `Subscribe to redis.event_channel and print one line per event until
interrupted, --count events have arrived or --timeout elapses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client, err := a.redisClient()
			if err != nil {
				return err
			}
			defer contextgraph.CloseWithLog(client, a.logger, "redis client")

			events, err := client.Subscribe(ctx, a.cfg.Redis.EventChannel)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			seen := 0
			for ev := range events {
				fmt.Fprintf(out, "%s\t%s\t%s\tnodes=%d edges=%d\n",
					time.UnixMilli(ev.At).Format(time.RFC3339), ev.Kind, ev.Name, ev.Nodes, ev.Edges)
				seen++
				if count > 0 && seen >= count {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many events (0 = no limit)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "exit after this long (0 = no limit)")
	return cmd
}
