package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/balancer/internal/announce"
)

// newAnnounceCmd builds the "node announce" command: it repeatedly
// broadcasts DISCOVER datagrams for the service classes named on the
// command line, paired by position between --service-class and
// --service-url.
func newAnnounceCmd() *cobra.Command {
	var (
		balancerAddr string
		serviceClass []string
		serviceURL   []string
		interval     time.Duration
		nodeID       string
	)

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Announce this node's inference endpoints to a balancer",
		RunE: func(_ *cobra.Command, _ []string) error {
			if len(serviceClass) != len(serviceURL) {
				return fmt.Errorf("--service-class and --service-url must be repeated the same number of times, paired by position")
			}

			services := make([]announce.Service, len(serviceClass))
			for i, class := range serviceClass {
				services[i] = announce.Service{Class: class, URL: serviceURL[i]}
			}

			if nodeID == "" {
				nodeID = announce.NodeID()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b := &announce.Broadcaster{BalancerAddr: balancerAddr, NodeID: nodeID, Interval: interval}
			err := b.Run(ctx, services)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&balancerAddr, "balancer-addr", "", "balancer's UDP discovery address")
	cmd.Flags().StringArrayVar(&serviceClass, "service-class", nil, "service class for a paired --service-url (repeatable: lmstudio or ollama)")
	cmd.Flags().StringArrayVar(&serviceURL, "service-url", nil, "endpoint URL paired by position with a --service-class (repeatable)")
	cmd.Flags().DurationVar(&interval, "interval", announce.DefaultInterval, "announcement interval")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "override the generated node identifier")

	_ = cmd.MarkFlagRequired("balancer-addr")
	_ = cmd.MarkFlagRequired("service-class")
	_ = cmd.MarkFlagRequired("service-url")

	return cmd
}
