// Package server exposes the shared folder over WebDAV.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/webdav"

	"github.com/lanshare/lanshare/internal/auth"
	"github.com/lanshare/lanshare/internal/discovery"
)

// welcomeMarker is dropped into a freshly created share folder so peers
// browsing an otherwise empty share see that it works.
const welcomeMarker = "Shared with LANShare.txt"

const welcomeBody = "This folder is shared on your local network with LANShare.\n" +
	"Files placed here are visible to peers running LANShare.\n"

// Session serves one folder over WebDAV on one port.
type Session struct {
	folder   string
	logger   *slog.Logger
	verifier atomic.Pointer[auth.Verifier]

	httpSrv  *http.Server
	listener net.Listener
	port     int

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// New prepares a serving session for folder on port. The folder is created
// (with a welcome marker file) when absent.
func New(folder string, port int, verifier *auth.Verifier, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	folder, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving share folder: %w", err)
	}
	if err := prepareFolder(folder); err != nil {
		return nil, err
	}

	s := &Session{
		folder: folder,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.verifier.Store(verifier)

	davHandler := &webdav.Handler{
		FileSystem: webdav.Dir(folder),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Debug("dav request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			}
		},
	}

	s.httpSrv = &http.Server{
		Handler:           s.requireAuth(davHandler),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: large file streams to slow peers must not be
		// cut off mid-transfer.
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listening on port %d: %w", port, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	return s, nil
}

// Start begins serving. It returns once the listener loop has been handed
// off; serve errors after a clean Stop are swallowed.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("serving folder", "folder", s.folder, "port", s.port, "auth", s.verifier.Load().Enabled())
	go func() {
		defer close(s.done)
		err := s.httpSrv.Serve(s.listener)
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("server stopped", "error", err)
		}
	}()
}

// Stop shuts the server down. Idempotent; in-flight requests are dropped
// because the session owner is exiting anyway.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if err := s.httpSrv.Close(); err != nil {
			s.logger.Debug("closing server", "error", err)
		}
		// The serve goroutine only exists after Start; without it the done
		// channel never closes.
		if s.started.Load() {
			<-s.done
		}
		s.logger.Info("stopped serving", "folder", s.folder)
	})
}

// Port reports the bound port, which differs from the requested one when
// port 0 was used.
func (s *Session) Port() int { return s.port }

// Folder reports the absolute path of the shared folder.
func (s *Session) Folder() string { return s.folder }

// SetVerifier swaps the credential verifier for all subsequent requests.
// In-flight requests keep the verifier they started with.
func (s *Session) SetVerifier(v *auth.Verifier) {
	s.verifier.Store(v)
	s.logger.Info("authentication updated", "enabled", v.Enabled())
}

// LocalURLs lists the URLs the share is reachable at: the advertised
// address first, then every other non-loopback interface address, then
// loopback.
func (s *Session) LocalURLs() []string {
	seen := map[string]bool{}
	var urls []string
	add := func(ip string) {
		u := fmt.Sprintf("http://%s/", net.JoinHostPort(ip, strconv.Itoa(s.port)))
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	add(discovery.AdvertiseIP().String())
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			add(ip.String())
		}
	}
	add("127.0.0.1")
	return urls
}

// requireAuth wraps a handler with basic-auth enforcement driven by the
// current verifier.
func (s *Session) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := s.verifier.Load()
		if v.Enabled() {
			user, pass, ok := r.BasicAuth()
			if !ok || !v.Verify(user, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="LANShare"`)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// prepareFolder ensures the share folder exists, creating it together with
// a welcome marker when absent.
func prepareFolder(folder string) error {
	info, err := os.Stat(folder)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("share path %q is not a directory", folder)
		}
		return nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return fmt.Errorf("creating share folder: %w", err)
		}
		marker := filepath.Join(folder, welcomeMarker)
		if err := os.WriteFile(marker, []byte(welcomeBody), 0o644); err != nil {
			return fmt.Errorf("writing welcome file: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("checking share folder: %w", err)
	}
}
