package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/auth"
	"github.com/lanshare/lanshare/internal/discovery"
	"github.com/lanshare/lanshare/internal/registry"
	"github.com/lanshare/lanshare/internal/server"
)

var (
	serveFolder string
	servePort   int
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Share the configured folder on the local network",
		Long: `Share a folder over WebDAV and announce it to the local network. The
folder is created with a welcome file if it does not exist yet.

When the network does not allow mDNS announcements the share stays up
anyway; peers that know the address can still connect.`,
		Example: `  lanshare serve
  lanshare serve --folder ~/Public --port 9000`,
		RunE: serveRun,
	}

	cmd.Flags().StringVar(&serveFolder, "folder", "", "folder to share (default from config)")
	cmd.Flags().IntVar(&servePort, "port", 0, "port to serve on (default from config)")

	return cmd
}

func serveRun(cmd *cobra.Command, args []string) error {
	folder := globalCfg.Share.Folder
	if serveFolder != "" {
		folder = serveFolder
	}
	port := globalCfg.Share.Port
	if servePort != 0 {
		port = servePort
	}

	verifier := auth.NewVerifier(globalCfg.Auth)
	srv, err := server.New(folder, port, verifier, logger)
	if err != nil {
		return err
	}
	srv.Start()
	defer srv.Stop()

	reg := registry.New(&peerPrinter{}, logger)
	disc := discovery.NewSession(srv.Port(), reg, logger)
	discovering := true
	if err := disc.Start(); err != nil {
		var regErr *discovery.RegistrationError
		if errors.As(err, &regErr) {
			logger.Warn("running without discovery, peers must connect by address", "error", err)
			discovering = false
		} else {
			return err
		}
	} else {
		defer disc.Stop()
	}

	fmt.Printf("Sharing %s\n", srv.Folder())
	for _, u := range srv.LocalURLs() {
		fmt.Printf("  %s\n", u)
	}
	if verifier.Enabled() {
		fmt.Println("Password protection is on.")
	}
	fmt.Println("Press Ctrl+C to stop sharing.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigChan {
		// SIGHUP re-queries the network for peers whose announcements we
		// may have missed.
		if sig == syscall.SIGHUP {
			if discovering {
				disc.TriggerRediscovery()
			}
			continue
		}
		logger.Info("received shutdown signal", "signal", sig)
		break
	}
	fmt.Println("\nStopping share...")
	return nil
}

// peerPrinter announces peer comings and goings on the serve console.
type peerPrinter struct{}

func (peerPrinter) PeerAdded(p registry.PeerRecord) {
	fmt.Printf("Peer online: %s (%s)\n", p.DisplayName, p.BaseURL())
}

func (peerPrinter) PeerRemoved(p registry.PeerRecord) {
	fmt.Printf("Peer offline: %s\n", p.DisplayName)
}
