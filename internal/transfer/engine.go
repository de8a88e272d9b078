// Package transfer implements the recursive download engine that pulls
// files and folders from a peer share.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/lanshare/lanshare/internal/dav"
	"github.com/lanshare/lanshare/internal/safety"
)

// ErrAuthFailed aborts a batch after credentials were refused. It is
// distinct from per-file errors, which never abort the batch.
var ErrAuthFailed = errors.New("authentication failed")

// CredentialPrompt asks the user for credentials for a protected peer.
// It is invoked at most once per batch.
type CredentialPrompt func(peerName string) (username, password string, ok bool)

// Failure records one item that could not be transferred.
type Failure struct {
	Path string
	Err  error
}

// FileResult reports the outcome of a single file to an observer, e.g. the
// transfer history recorder. Err is nil on success.
type FileResult struct {
	RemotePath string
	LocalPath  string
	Size       int64
	Err        error
}

// Summary reports the outcome of a batch.
type Summary struct {
	Items     int
	Succeeded int
	Failed    int
	BytesDone int64
	Elapsed   time.Duration
	Failures  []Failure
}

// Engine downloads selections from a peer share into a destination folder.
type Engine struct {
	destDir   string
	chunkSize int
	prompt    CredentialPrompt
	tracker   *Tracker
	logger    *slog.Logger
	onFile    func(FileResult)

	prompted bool
}

// Options configures an Engine.
type Options struct {
	DestDir   string
	ChunkSize int
	Prompt    CredentialPrompt
	Tracker   *Tracker
	Logger    *slog.Logger
	// OnFile, when set, observes every per-file outcome.
	OnFile func(FileResult)
}

// NewEngine creates a download engine. Tracker may be nil when nothing
// observes progress.
func NewEngine(opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker("")
	}
	return &Engine{
		destDir:   opts.DestDir,
		chunkSize: opts.ChunkSize,
		prompt:    opts.Prompt,
		tracker:   opts.Tracker,
		logger:    opts.Logger,
		onFile:    opts.OnFile,
	}
}

// Run transfers each remote path from the peer at baseURL. Items are
// processed in submission order; a failed item is recorded and the batch
// continues, except when the peer refuses our credentials, which aborts
// everything still pending.
func (e *Engine) Run(ctx context.Context, peerName, baseURL string, remotePaths []string) (*Summary, error) {
	client, err := dav.NewClient(baseURL)
	if err != nil {
		// Progress renderers wait for a terminal phase, so even a failure
		// before the first item must land in one.
		e.tracker.SetPhase(PhaseAborted)
		return nil, err
	}

	start := time.Now()
	summary := &Summary{Items: len(remotePaths)}
	e.tracker.SetPhase(PhaseListing)

	var abort error
	for i, remote := range remotePaths {
		if err := ctx.Err(); err == nil {
			err = e.transferItem(ctx, client, peerName, remote)
			switch {
			case err == nil:
				summary.Succeeded++
				continue
			case errors.Is(err, ErrAuthFailed), errors.Is(err, context.Canceled):
				abort = err
			default:
				e.logger.Warn("item failed", "peer", peerName, "path", remote, "error", err)
				summary.Failed++
				summary.Failures = append(summary.Failures, Failure{Path: remote, Err: err})
				continue
			}
		} else {
			abort = err
		}

		// Everything from the aborting item on is reported failed.
		for _, rest := range remotePaths[i:] {
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Path: rest, Err: abort})
		}
		break
	}

	summary.BytesDone = e.tracker.Snapshot().BytesDone
	summary.Elapsed = time.Since(start)

	if abort != nil {
		e.tracker.SetPhase(PhaseAborted)
		return summary, abort
	}
	e.tracker.SetPhase(PhaseCompleted)
	return summary, nil
}

// transferItem stats one selection and dispatches to the file or directory
// path. Destination layout is rooted at the selection's base name, so
// fetching "/docs" produces "<dest>/docs/...".
func (e *Engine) transferItem(ctx context.Context, client *dav.Client, peerName, remote string) error {
	var entry dav.Entry
	err := e.withAuthRetry(client, peerName, func() error {
		var err error
		entry, err = client.Stat(ctx, remote)
		return err
	})
	if err != nil {
		return err
	}

	destRoot := e.destDir
	if entry.IsDir {
		name := path.Base(entry.Path)
		if name == "/" || name == "." {
			name = "share"
		}
		dest, err := safety.SafeJoinUnder(destRoot, name)
		if err != nil {
			return err
		}
		return e.downloadDir(ctx, client, peerName, entry.Path, dest)
	}
	return e.downloadFileTo(ctx, client, peerName, entry, destRoot)
}

// downloadDir mirrors a remote directory. Each listed entry is fetched at
// its own resolved remote path, so nested listings can never re-resolve a
// sibling's location.
func (e *Engine) downloadDir(ctx context.Context, client *dav.Client, peerName, remote, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", dest, err)
	}

	var entries []dav.Entry
	err := e.withAuthRetry(client, peerName, func() error {
		var err error
		entries, err = client.List(ctx, remote)
		return err
	})
	if err != nil {
		return err
	}

	var firstErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := path.Base(entry.Path)
		if _, err := safety.CleanEntryName(name); err != nil {
			e.logger.Warn("skipping entry with unsafe name", "path", entry.Path, "error", err)
			continue
		}

		var err error
		if entry.IsDir {
			sub, joinErr := safety.SafeJoinUnder(dest, name)
			if joinErr != nil {
				err = joinErr
			} else {
				err = e.downloadDir(ctx, client, peerName, entry.Path, sub)
			}
		} else {
			err = e.downloadFileTo(ctx, client, peerName, entry, dest)
		}
		if err != nil {
			if errors.Is(err, ErrAuthFailed) || errors.Is(err, context.Canceled) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// downloadFileTo fetches one remote file into the destination directory.
func (e *Engine) downloadFileTo(ctx context.Context, client *dav.Client, peerName string, entry dav.Entry, destDir string) error {
	name := path.Base(entry.Path)
	dest, err := safety.SafeJoinUnder(destDir, name)
	if err != nil {
		return err
	}

	e.tracker.AddFiles(1)
	e.tracker.SetPhase(PhaseDownloading)
	e.tracker.SetMessage("Downloading " + entry.Path)

	var body io.ReadCloser
	size := entry.Size
	err = e.withAuthRetry(client, peerName, func() error {
		var err error
		var n int64
		body, n, err = client.Get(ctx, entry.Path)
		if err == nil && n > 0 {
			size = n
		}
		return err
	})
	if err != nil {
		e.fileFailed(entry.Path, dest, err)
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		err = fmt.Errorf("creating %q: %w", destDir, err)
		e.fileFailed(entry.Path, dest, err)
		return err
	}

	e.tracker.FileStarted(entry.Path, size)
	written, err := e.writeFile(ctx, dest, body, entry.Path)
	if err != nil {
		e.fileFailed(entry.Path, dest, err)
		return err
	}
	e.tracker.FileCompleted(entry.Path, written)
	if e.onFile != nil {
		e.onFile(FileResult{RemotePath: entry.Path, LocalPath: dest, Size: written})
	}
	e.logger.Debug("downloaded", "path", entry.Path, "bytes", written)
	return nil
}

// fileFailed records a per-file failure with the tracker and the observer.
func (e *Engine) fileFailed(remote, local string, err error) {
	e.tracker.FileFailed(remote, err.Error())
	if e.onFile != nil {
		e.onFile(FileResult{RemotePath: remote, LocalPath: local, Err: err})
	}
}

// writeFile streams the body to disk in fixed-size chunks, reporting
// cumulative progress after each chunk. Writes go to a temp file that is
// renamed into place on success, so an aborted transfer never leaves a
// truncated file under the final name.
func (e *Engine) writeFile(ctx context.Context, dest string, body io.Reader, remotePath string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".lanshare-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	buf := make([]byte, e.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return written, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return written, fmt.Errorf("writing %q: %w", dest, werr)
			}
			written += int64(n)
			e.tracker.FileAdvanced(remotePath, written)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return written, fmt.Errorf("reading %q: %w", remotePath, rerr)
		}
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("closing %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return written, fmt.Errorf("finalizing %q: %w", dest, err)
	}
	return written, nil
}

// withAuthRetry runs op, and when the peer answers 401 asks for
// credentials exactly once for the whole batch, installing them on the
// batch's client before retrying. A second rejection, or a declined
// prompt, turns into ErrAuthFailed.
func (e *Engine) withAuthRetry(client *dav.Client, peerName string, op func() error) error {
	err := op()
	if !errors.Is(err, dav.ErrUnauthorized) {
		return err
	}
	if e.prompt == nil || e.prompted {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	e.prompted = true
	prev := e.tracker.Snapshot().Phase
	e.tracker.SetPhase(PhaseAuthRequired)
	username, password, ok := e.prompt(peerName)
	if !ok {
		return fmt.Errorf("%w: credentials not provided", ErrAuthFailed)
	}
	client.SetBasicAuth(username, password)

	err = op()
	if errors.Is(err, dav.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	// Back to whatever the batch was doing before the prompt interrupted it.
	e.tracker.SetPhase(prev)
	return err
}
