// Package registry maintains the set of peers currently advertised on the
// local network. It is the only state shared between the discovery worker
// and readers on other goroutines, so all access goes through the mutex
// and readers only ever see copies.
package registry

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// PeerRecord describes one discovered peer.
type PeerRecord struct {
	ServiceID   string
	DisplayName string
	Addr        net.IP
	Port        int
	LastSeen    time.Time
}

// BaseURL returns the peer's WebDAV base address.
func (p PeerRecord) BaseURL() string {
	return "http://" + net.JoinHostPort(p.Addr.String(), strconv.Itoa(p.Port))
}

// Notifier receives peer-change notifications. Callbacks fire after the
// registry lock is released, so they may safely call back into the registry.
type Notifier interface {
	PeerAdded(PeerRecord)
	PeerRemoved(PeerRecord)
}

// Registry maps serviceId to PeerRecord.
type Registry struct {
	mu       sync.RWMutex
	peers    map[string]PeerRecord
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an empty registry. notifier may be nil.
func New(notifier Notifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		peers:    make(map[string]PeerRecord),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// OnPeerAdded inserts or replaces the record for a serviceId. A repeat
// advertisement with identical address and port refreshes LastSeen without
// notifying, so re-announcements do not cause notification storms.
func (r *Registry) OnPeerAdded(id, displayName string, addr net.IP, port int) {
	r.mu.Lock()
	rec := PeerRecord{
		ServiceID:   id,
		DisplayName: displayName,
		Addr:        addr,
		Port:        port,
		LastSeen:    r.now(),
	}
	prev, known := r.peers[id]
	r.peers[id] = rec
	r.mu.Unlock()

	if known && prev.Addr.Equal(addr) && prev.Port == port {
		return
	}
	r.logger.Info("peer available", "peer", displayName, "addr", addr, "port", port)
	if r.notifier != nil {
		r.notifier.PeerAdded(rec)
	}
}

// OnPeerUpdated handles a re-advertisement. The discovery stack models an
// update as remove-then-add, so this is the same insert-or-replace path.
func (r *Registry) OnPeerUpdated(id, displayName string, addr net.IP, port int) {
	r.OnPeerAdded(id, displayName, addr, port)
}

// OnPeerRemoved deletes the record for a serviceId. No-op if absent.
func (r *Registry) OnPeerRemoved(id string) {
	r.mu.Lock()
	rec, known := r.peers[id]
	if known {
		delete(r.peers, id)
	}
	r.mu.Unlock()

	if !known {
		return
	}
	r.logger.Info("peer gone", "peer", rec.DisplayName)
	if r.notifier != nil {
		r.notifier.PeerRemoved(rec)
	}
}

// PruneStale removes peers whose LastSeen is older than maxAge and fires
// a removal notification for each. The multicast stack does not reliably
// deliver goodbye packets, so silent departures are only caught here.
func (r *Registry) PruneStale(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	var expired []PeerRecord
	for id, rec := range r.peers {
		if rec.LastSeen.Before(cutoff) {
			delete(r.peers, id)
			expired = append(expired, rec)
		}
	}
	r.mu.Unlock()

	for _, rec := range expired {
		r.logger.Info("peer expired", "peer", rec.DisplayName, "last_seen", rec.LastSeen)
		if r.notifier != nil {
			r.notifier.PeerRemoved(rec)
		}
	}
	return len(expired)
}

// Snapshot returns a point-in-time copy of the peer map. Safe to call
// concurrently with discovery events.
func (r *Registry) Snapshot() map[string]PeerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]PeerRecord, len(r.peers))
	for id, rec := range r.peers {
		out[id] = rec
	}
	return out
}

// FindByName returns the peer whose display name or address matches name.
func (r *Registry) FindByName(name string) (PeerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.peers {
		if rec.DisplayName == name || rec.Addr.String() == name {
			return rec, true
		}
	}
	return PeerRecord{}, false
}

// Len returns the current peer count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
