package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lanshare/lanshare/internal/discovery"
	"github.com/lanshare/lanshare/internal/registry"
	"github.com/lanshare/lanshare/internal/store"
	"github.com/lanshare/lanshare/internal/transfer"
)

var (
	fetchDest string
	fetchWait time.Duration
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch PEER [PATH...]",
		Short: "Download files or folders from a peer",
		Long: `Download one or more remote paths from a peer share. PEER is a peer name
as shown by "lanshare peers", or a host:port address. Paths default to the
share root; folders are downloaded recursively.

If the peer requires a password you are asked for it once.`,
		Example: `  lanshare fetch office-laptop
  lanshare fetch office-laptop /photos /notes.txt
  lanshare fetch 192.168.1.20:8080 /backup --dest /tmp/restore`,
		Args: cobra.MinimumNArgs(1),
		RunE: fetchRun,
	}

	cmd.Flags().StringVar(&fetchDest, "dest", "", "destination folder (default from config)")
	cmd.Flags().DurationVar(&fetchWait, "wait", 3*time.Second, "how long to look for the peer on the network")

	return cmd
}

func fetchRun(cmd *cobra.Command, args []string) error {
	peerArg := args[0]
	paths := args[1:]
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	dest := globalCfg.Transfer.DestDir
	if fetchDest != "" {
		dest = fetchDest
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	peerName, baseURL, err := resolvePeer(ctx, peerArg)
	if err != nil {
		return err
	}
	fmt.Printf("Fetching from %s (%s) into %s\n", peerName, baseURL, dest)

	tracker := transfer.NewTracker(peerName)
	renderDone := make(chan struct{})
	go renderProgress(ctx, tracker, renderDone)

	st, err := store.New(globalCfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer st.Close()

	run := &store.TransferRun{
		Peer:      peerName,
		BaseURL:   baseURL,
		StartTime: time.Now(),
		Status:    store.StatusRunning,
	}
	if err := st.CreateRun(run); err != nil {
		logger.Warn("history unavailable", "error", err)
		run = nil
	}

	engine := transfer.NewEngine(transfer.Options{
		DestDir:   dest,
		ChunkSize: globalCfg.Transfer.ChunkSize,
		Prompt:    promptCredentials,
		Tracker:   tracker,
		Logger:    logger,
		OnFile: func(res transfer.FileResult) {
			if run == nil {
				return
			}
			rec := &store.FileRecord{
				RunID:      run.ID,
				RemotePath: res.RemotePath,
				LocalPath:  res.LocalPath,
				Size:       res.Size,
				Status:     "completed",
			}
			if res.Err != nil {
				rec.Status = "failed"
				rec.ErrorMessage = res.Err.Error()
			}
			if err := st.RecordFile(rec); err != nil {
				logger.Warn("recording file history", "path", res.RemotePath, "error", err)
			}
		},
	})

	summary, runErr := engine.Run(ctx, peerName, baseURL, paths)
	<-renderDone

	if run != nil {
		recordRun(st, run, tracker, summary, runErr)
	}

	if summary != nil {
		printSummary(summary)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transfer cancelled")
		}
		return runErr
	}
	if summary != nil && summary.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", summary.Failed, summary.Items)
	}
	return nil
}

// resolvePeer turns a peer argument into a name and base URL. host:port and
// URL forms bypass discovery.
func resolvePeer(ctx context.Context, arg string) (name, baseURL string, err error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg, arg, nil
	}
	if host, port, splitErr := net.SplitHostPort(arg); splitErr == nil {
		return arg, "http://" + net.JoinHostPort(host, port), nil
	}

	reg := registry.New(nil, logger)
	browseCtx, cancel := context.WithTimeout(ctx, fetchWait)
	defer cancel()
	if err := discovery.Browse(browseCtx, reg, logger); err != nil {
		return "", "", fmt.Errorf("browsing for peers: %w", err)
	}

	peer, ok := reg.FindByName(arg)
	if !ok {
		return "", "", fmt.Errorf("peer %q not found on the network", arg)
	}
	return peer.DisplayName, peer.BaseURL(), nil
}

// promptCredentials asks for share credentials on the terminal.
func promptCredentials(peerName string) (string, string, bool) {
	fmt.Printf("\n%s requires a password.\n", peerName)
	fmt.Print("Username: ")
	reader := bufio.NewReader(os.Stdin)
	username, err := reader.ReadString('\n')
	if err != nil {
		return "", "", false
	}
	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", false
	}
	return strings.TrimSpace(username), string(passwordBytes), true
}

// renderProgress repaints a one-line progress display until the batch
// reaches a terminal phase.
func renderProgress(ctx context.Context, tracker *transfer.Tracker, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		wait := tracker.Wait()
		select {
		case <-ctx.Done():
		case <-ticker.C:
		case <-wait:
		}

		p := tracker.Snapshot()
		fmt.Printf("\r\033[K%s", progressLine(p))
		if p.Phase == transfer.PhaseCompleted || p.Phase == transfer.PhaseAborted {
			fmt.Println()
			return
		}
	}
}

// progressLine formats one snapshot for the terminal.
func progressLine(p transfer.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %s", p.CompletedFiles, p.TotalFiles, humanize.IBytes(uint64(p.BytesDone)))
	if len(p.CurrentFiles) > 0 {
		f := p.CurrentFiles[0]
		fmt.Fprintf(&b, "  %s", f.Path)
		if f.Speed > 0 {
			fmt.Fprintf(&b, " %s/s", humanize.IBytes(uint64(f.Speed)))
		}
		if math.IsInf(f.ETASeconds, 1) {
			if f.Speed > 0 {
				b.WriteString(" ETA calculating")
			}
		} else {
			fmt.Fprintf(&b, " ETA %s", (time.Duration(f.ETASeconds * float64(time.Second))).Truncate(time.Second))
		}
	}
	if p.FailedFiles > 0 {
		fmt.Fprintf(&b, "  (%d failed)", p.FailedFiles)
	}
	return b.String()
}

// recordRun persists the outcome of a batch to the history store.
func recordRun(st *store.Store, run *store.TransferRun, tracker *transfer.Tracker, summary *transfer.Summary, runErr error) {
	p := tracker.Snapshot()
	run.EndTime = time.Now()
	run.FilesCompleted = p.CompletedFiles
	run.FilesFailed = p.FailedFiles
	run.BytesTransferred = p.BytesDone

	switch {
	case runErr != nil:
		run.Status = store.StatusAborted
		run.ErrorMessage = runErr.Error()
	case summary != nil && summary.Failed > 0:
		run.Status = store.StatusPartial
	default:
		run.Status = store.StatusSuccess
	}

	if err := st.FinishRun(run); err != nil {
		logger.Warn("recording run history", "error", err)
	}
}

// printSummary reports the batch outcome after the progress line.
func printSummary(s *transfer.Summary) {
	fmt.Printf("Transferred %s in %s: %d succeeded, %d failed.\n",
		humanize.IBytes(uint64(s.BytesDone)), s.Elapsed.Truncate(time.Second), s.Succeeded, s.Failed)
	for _, f := range s.Failures {
		fmt.Printf("  failed: %s: %v\n", f.Path, f.Err)
	}
}
