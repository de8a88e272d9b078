package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/discovery"
	"github.com/lanshare/lanshare/internal/registry"
)

var peersWait time.Duration

func newPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List shares visible on the local network",
		Long: `Browse the local network for active shares. The command listens for
announcements for a short window and prints everything it heard.`,
		Example: `  lanshare peers
  lanshare peers --wait 10s`,
		RunE: peersRun,
	}

	cmd.Flags().DurationVar(&peersWait, "wait", 3*time.Second, "how long to listen for announcements")

	return cmd
}

func peersRun(cmd *cobra.Command, args []string) error {
	reg := registry.New(nil, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), peersWait)
	defer cancel()
	if err := discovery.Browse(ctx, reg, logger); err != nil {
		return fmt.Errorf("browsing for peers: %w", err)
	}

	snap := reg.Snapshot()
	if len(snap) == 0 {
		fmt.Println("No peers found.")
		return nil
	}

	peers := make([]registry.PeerRecord, 0, len(snap))
	for _, p := range snap {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].DisplayName < peers[j].DisplayName })
	fmt.Printf("%-24s %s\n", "PEER", "ADDRESS")
	for _, p := range peers {
		fmt.Printf("%-24s %s\n", p.DisplayName, p.BaseURL())
	}
	return nil
}
