package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/sim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		opts    sim.Options
		script  = sim.DefaultScript()
		verbose bool
	)
	cmd := &cobra.Command{
		Use:          "zephyrdht-sim",
		Short:        "Simulate a cluster on a lossy in-process network",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.DropRate < 0 || opts.DropRate > 1 {
				return fmt.Errorf("drop rate %v outside [0,1]", opts.DropRate)
			}
			log := zap.NewNop()
			if verbose {
				var err error
				if log, err = zap.NewDevelopment(); err != nil {
					return err
				}
				defer log.Sync()
				opts.Events = eventlog.NewZap(log)
			}
			opts.Logger = log

			c, err := sim.New(opts)
			if err != nil {
				return err
			}
			c.Start()
			rep := c.Play(script)
			printReport(cmd, c, rep)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Nodes, "nodes", 10, "cluster size")
	f.Int64Var(&opts.JoinEvery, "join-every", 1, "rounds between node joins")
	f.Float64Var(&opts.DropRate, "drop", 0, "message loss probability")
	f.Uint64Var(&opts.Seed, "seed", 1, "seed for loss and gossip target choice")
	f.IntVar(&script.Keys, "keys", script.Keys, "keys created")
	f.Int64Var(&script.CreateAt, "create-at", script.CreateAt, "round of the creates")
	f.Int64Var(&script.FailAt, "fail-at", script.FailAt, "round of the failures")
	f.IntVar(&script.Fail, "fail", script.Fail, "nodes failed")
	f.Int64Var(&script.ReadAt, "read-at", script.ReadAt, "round of the reads")
	f.Int64Var(&script.UpdateAt, "update-at", script.UpdateAt, "round of the updates")
	f.Int64Var(&script.DeleteAt, "delete-at", script.DeleteAt, "round of the deletes")
	f.Int64Var(&script.Settle, "settle", script.Settle, "rounds run after the deletes")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every event")
	return cmd
}

func printReport(cmd *cobra.Command, c *sim.Cluster, rep sim.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, rep)

	var changes [2]int
	for _, ch := range c.Events().Changes() {
		if ch.Added {
			changes[0]++
		} else {
			changes[1]++
		}
	}
	fmt.Fprintf(out, "membership: %d added, %d removed\n", changes[0], changes[1])

	addrs := make([]address.Address, 0, len(rep.Traffic))
	for a := range rep.Traffic {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	for _, a := range addrs {
		s := rep.Traffic[a]
		fmt.Fprintf(out, "%-8s sent=%-6d received=%-6d dropped=%d\n", a, s.Sent, s.Received, s.Dropped)
	}
}
