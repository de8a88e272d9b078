package registry

import (
	"net"
	"testing"
	"time"
)

type recordingNotifier struct {
	added   []PeerRecord
	removed []PeerRecord
}

func (n *recordingNotifier) PeerAdded(p PeerRecord)   { n.added = append(n.added, p) }
func (n *recordingNotifier) PeerRemoved(p PeerRecord) { n.removed = append(n.removed, p) }

func TestAddAndRemove(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil)

	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if len(n.added) != 1 || n.added[0].DisplayName != "alpha" {
		t.Fatalf("added events = %+v", n.added)
	}
	if got := n.added[0].BaseURL(); got != "http://192.168.1.10:8080" {
		t.Errorf("BaseURL = %q", got)
	}

	r.OnPeerRemoved("LANShare-alpha")
	if r.Len() != 0 {
		t.Errorf("Len after remove = %d", r.Len())
	}
	if len(n.removed) != 1 {
		t.Errorf("removed events = %+v", n.removed)
	}
}

func TestDuplicateAnnouncementSuppressed(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil)

	addr := net.IPv4(192, 168, 1, 10)
	r.OnPeerAdded("LANShare-alpha", "alpha", addr, 8080)
	r.OnPeerAdded("LANShare-alpha", "alpha", addr, 8080)

	if len(n.added) != 1 {
		t.Errorf("duplicate announcement notified: %d events", len(n.added))
	}
}

func TestChangedAddressNotifies(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil)

	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)
	r.OnPeerUpdated("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 99), 8080)

	if len(n.added) != 2 {
		t.Fatalf("address change not notified: %d events", len(n.added))
	}
	if got := n.added[1].Addr.String(); got != "192.168.1.99" {
		t.Errorf("second event addr = %s", got)
	}
}

func TestRemoveUnknownPeer(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil)

	r.OnPeerRemoved("LANShare-ghost")
	if len(n.removed) != 0 {
		t.Errorf("removal of unknown peer notified: %+v", n.removed)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := New(nil, nil)
	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)

	snap := r.Snapshot()
	delete(snap, "LANShare-alpha")

	if r.Len() != 1 {
		t.Error("mutating a snapshot changed the registry")
	}
}

func TestPruneStaleExpiresSilentPeers(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil)

	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)

	clock = clock.Add(2 * time.Minute)
	r.OnPeerAdded("LANShare-beta", "beta", net.IPv4(192, 168, 1, 11), 8080)

	if got := r.PruneStale(90 * time.Second); got != 1 {
		t.Fatalf("PruneStale = %d, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len after prune = %d, want 1", r.Len())
	}
	if _, ok := r.FindByName("beta"); !ok {
		t.Error("fresh peer was pruned")
	}
	if len(n.removed) != 1 || n.removed[0].DisplayName != "alpha" {
		t.Errorf("removed events = %+v", n.removed)
	}
}

func TestPruneStaleKeepsRefreshedPeers(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil)

	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)

	// A re-delivered announcement refreshes LastSeen without notifying.
	clock = clock.Add(time.Minute)
	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)

	clock = clock.Add(time.Minute)
	if got := r.PruneStale(90 * time.Second); got != 0 {
		t.Errorf("PruneStale = %d, want 0", got)
	}
	if len(n.removed) != 0 {
		t.Errorf("refreshed peer expired: %+v", n.removed)
	}
}

func TestFindByName(t *testing.T) {
	r := New(nil, nil)
	r.OnPeerAdded("LANShare-alpha", "alpha", net.IPv4(192, 168, 1, 10), 8080)

	if p, ok := r.FindByName("alpha"); !ok || p.Port != 8080 {
		t.Errorf("FindByName by display name: %+v %v", p, ok)
	}
	if _, ok := r.FindByName("192.168.1.10"); !ok {
		t.Error("FindByName by address failed")
	}
	if _, ok := r.FindByName("nobody"); ok {
		t.Error("FindByName matched an absent peer")
	}
}
