package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) loadCmd() *cobra.Command {
	var param string
	cmd := &cobra.Command{
		Use:   "load PATH",
		Short: "Load an edge list into one table on every server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			if _, err := a.client.Load(ctx, a.tableID, args[0], param).Wait(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s into table %d\n", args[0], a.tableID)
			return nil
		},
	}
	cmd.Flags().StringVar(&param, "param", "", `load options, e.g. "gzip"`)
	return cmd
}

func (a *app) loadAllCmd() *cobra.Command {
	var param string
	cmd := &cobra.Command{
		Use:   "load-all PATH",
		Short: "Load an edge list into every table on every server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			if _, err := a.client.LoadAll(ctx, args[0], param).Wait(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s into all tables\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&param, "param", "", `load options, e.g. "zstd"`)
	return cmd
}

func (a *app) sampleCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "sample ID [ID...]",
		Short: "Sample up to k neighbors of each node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			if len(ids) == 1 {
				edges, err := a.client.Sample(ctx, a.tableID, ids[0], k).Wait(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatSample(ids[0], edges))
				return nil
			}
			slots, err := a.client.SampleBatch(ctx, a.tableID, ids, k).Wait(ctx)
			if err != nil {
				return err
			}
			for i, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), formatSample(id, slots[i]))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "count", "k", 10, "neighbors per node")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var server, start, size int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a window of nodes held by one server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			nodes, err := a.client.PullGraphList(ctx, a.tableID, server, start, size).Wait(ctx)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				fmt.Fprintln(cmd.OutOrStdout(), formatNode(n))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&server, "server", 0, "server rank")
	f.IntVar(&start, "start", 0, "offset into the server's nodes")
	f.IntVar(&size, "size", 100, "maximum nodes to list")
	return cmd
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Print node and edge counts summed across servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			st, err := a.client.Stat(ctx, a.tableID).Wait(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %d: %d nodes, %d edges\n", a.tableID, st.Nodes, st.Edges)
			return nil
		},
	}
}

func (a *app) barrierCmd() *cobra.Command {
	var barrierType string
	cmd := &cobra.Command{
		Use:   "barrier",
		Short: "Wait until every trainer reaches the barrier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			_, err := a.client.Barrier(ctx, a.tableID, barrierType).Wait(ctx)
			return err
		},
	}
	cmd.Flags().StringVar(&barrierType, "type", "default", "barrier name")
	return cmd
}

func (a *app) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Shut down every server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			_, err := a.client.StopServer(ctx).Wait(ctx)
			return err
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Start or stop CPU profiling on every server",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "start",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				_, err := a.client.StartProfiler(ctx).Wait(ctx)
				return err
			},
		},
		&cobra.Command{
			Use:  "stop",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				_, err := a.client.StopProfiler(ctx).Wait(ctx)
				return err
			},
		},
	)
	return cmd
}
