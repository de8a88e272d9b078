// Package discovery advertises the local share over mDNS and browses for
// peer advertisements of the same service type.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type shared by all instances.
	ServiceType = "_webdav._tcp"
	// ServiceDomain is the mDNS service domain.
	ServiceDomain = "local."
	// InstancePrefix prefixes every advertised instance name.
	InstancePrefix = "LANShare-"

	// browseRefreshInterval is how often the browse subscription is
	// restarted. A fresh subscription re-queries the network, so every
	// live peer is re-delivered and its LastSeen refreshed; the multicast
	// stack caches entries per subscription and swallows goodbye packets,
	// so a long-lived subscription would never show departures at all.
	browseRefreshInterval = 30 * time.Second

	// peerExpiry is how long a peer may go unseen across refreshes before
	// it is treated as departed. Three refresh rounds of slack.
	peerExpiry = 95 * time.Second
)

// RegistrationError wraps a failure to register the local advertisement.
// It is fatal to Start.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("service registration failed: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// EventHandler receives peer add/remove events from the browse worker.
// Per-peer ordering follows the order the multicast stack delivers records.
type EventHandler interface {
	OnPeerAdded(id, displayName string, addr net.IP, port int)
	OnPeerRemoved(id string)
}

// Pruner is implemented by handlers that track last-seen timestamps and can
// expire peers that stopped re-announcing. The maintenance loop sweeps it on
// every refresh.
type Pruner interface {
	PruneStale(maxAge time.Duration) int
}

// Session owns the local advertisement and the peer subscription.
type Session struct {
	port    int
	events  EventHandler
	logger  *slog.Logger
	hostID  string
	self    string // full local instance name, computed once at Start

	mu           sync.Mutex
	server       *zeroconf.Server
	browseCancel context.CancelFunc
	maintainStop chan struct{}
	started      bool
}

// NewSession creates a discovery session advertising the given port.
func NewSession(port int, events EventHandler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		port:   port,
		events: events,
		logger: logger,
		hostID: hostID(),
	}
}

// Start registers the local advertisement and attaches the peer
// subscription. Registration failure is fatal and returned as a
// *RegistrationError; a browse failure after successful registration
// leaves the local share advertised and is only logged.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.self = InstancePrefix + s.hostID
	txt := []string{"path=/", "version=1.0", "app=LANShare"}

	addr := AdvertiseIP()
	server, err := zeroconf.Register(s.self, ServiceType, ServiceDomain, s.port, txt, nil)
	if err != nil {
		return &RegistrationError{Err: err}
	}
	s.server = server
	s.logger.Info("registered service", "instance", s.self, "addr", addr, "port", s.port)

	if err := s.startBrowseLocked(); err != nil {
		// The local share stays reachable for peers that already know the
		// address even if we cannot see anyone else.
		s.logger.Error("peer browsing unavailable", "error", err)
	}
	s.started = true

	stop := make(chan struct{})
	s.maintainStop = stop
	go s.maintain(stop)
	return nil
}

// maintain periodically restarts the browse subscription and expires peers
// that stopped re-announcing. The multicast stack caches delivered entries
// per subscription and never surfaces goodbye packets, so without the
// restart a peer would only ever be seen once and departures would go
// unnoticed for the lifetime of the session.
func (s *Session) maintain(stop chan struct{}) {
	ticker := time.NewTicker(browseRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

// refresh performs one maintenance round: reattach the browse subscription
// so live peers are re-delivered, then sweep out peers unseen for longer
// than peerExpiry.
func (s *Session) refresh() {
	s.TriggerRediscovery()
	if p, ok := s.events.(Pruner); ok {
		if n := p.PruneStale(peerExpiry); n > 0 {
			s.logger.Debug("expired silent peers", "count", n)
		}
	}
}

// startBrowseLocked attaches a browse subscription. Caller holds s.mu.
func (s *Session) startBrowseLocked() error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry, 32)
	go func() {
		for entry := range entries {
			s.handleEntry(entry)
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		return fmt.Errorf("browsing %s: %w", ServiceType, err)
	}
	s.browseCancel = cancel
	return nil
}

// TriggerRediscovery detaches and reattaches the browse subscription so the
// multicast stack re-delivers add events for all live advertisements,
// compensating for missed multicast packets. No-op when not started.
func (s *Session) TriggerRediscovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.browseCancel != nil {
		s.browseCancel()
		s.browseCancel = nil
	}
	if err := s.startBrowseLocked(); err != nil {
		s.logger.Error("rediscovery failed", "error", err)
		return
	}
	s.logger.Debug("rediscovery triggered")
}

// Stop unregisters the local advertisement and detaches the subscription.
// Idempotent, and safe to call after a partially failed Start.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maintainStop != nil {
		close(s.maintainStop)
		s.maintainStop = nil
	}
	if s.browseCancel != nil {
		s.browseCancel()
		s.browseCancel = nil
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
		s.logger.Info("unregistered service", "instance", s.self)
	}
	s.started = false
}

// Browse runs a browse-only subscription, without advertising anything,
// until ctx is done. Own advertisements from a concurrently running serve
// session are still filtered out.
func Browse(ctx context.Context, events EventHandler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{events: events, logger: logger, hostID: hostID()}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			s.handleEntry(entry)
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("browsing %s: %w", ServiceType, err)
	}
	<-ctx.Done()
	<-done
	return nil
}

// handleEntry translates one browse result into a registry event.
func (s *Session) handleEntry(entry *zeroconf.ServiceEntry) {
	instance := instanceLabel(entry.Instance)
	if !strings.HasPrefix(instance, InstancePrefix) {
		s.logger.Debug("ignoring foreign service", "instance", instance)
		return
	}
	if s.isSelf(instance) {
		return
	}

	if entry.TTL == 0 {
		s.events.OnPeerRemoved(instance)
		return
	}

	addr := entryAddr(entry)
	if addr == nil {
		s.logger.Debug("advertisement without address", "instance", instance)
		return
	}
	s.events.OnPeerAdded(instance, DisplayName(instance), addr, entry.Port)
}

// isSelf reports whether an advertised instance is our own. Computed from
// the instance name registered at Start, so multicast loopback never makes
// the local host discover itself.
func (s *Session) isSelf(instance string) bool {
	return instance == InstancePrefix+s.hostID
}

// DisplayName strips the application prefix from an instance name.
func DisplayName(instance string) string {
	return strings.TrimPrefix(instance, InstancePrefix)
}

// instanceLabel returns the first dot-delimited label of an advertisement
// name, which carries the peer identity.
func instanceLabel(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// entryAddr picks the peer address from a browse result, preferring IPv4.
func entryAddr(entry *zeroconf.ServiceEntry) net.IP {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0]
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0]
	}
	return nil
}

// hostID derives the local host identity used in the instance name.
// Dots are flattened so the identity stays a single mDNS label.
func hostID() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, ".", "-")
}

// AdvertiseIP determines the address to advertise: a UDP dial first, then
// the first non-loopback, non-link-local interface address,
// then loopback as a last resort.
func AdvertiseIP() net.IP {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		ip := conn.LocalAddr().(*net.UDPAddr).IP
		conn.Close()
		return ip
	}

	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				ipnet, ok := a.(*net.IPNet)
				if !ok {
					continue
				}
				ip := ipnet.IP.To4()
				if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
					continue
				}
				return ip
			}
		}
	}

	return net.IPv4(127, 0, 0, 1)
}
