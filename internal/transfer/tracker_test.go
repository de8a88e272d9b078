package transfer

import (
	"math"
	"testing"
	"time"
)

// fakeClock drives the tracker's time source in tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(peer string) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(peer)
	tr.now = clock.Now
	tr.startTime = clock.now
	return tr, clock
}

func TestProgressCounts(t *testing.T) {
	tr, _ := newTestTracker("peer1")

	tr.AddFiles(3)
	tr.FileStarted("/a", 100)
	tr.FileCompleted("/a", 100)
	tr.FileStarted("/b", 200)
	tr.FileFailed("/b", "boom")
	tr.FileStarted("/c", 300)
	tr.FileAdvanced("/c", 50)

	p := tr.Snapshot()
	if p.TotalFiles != 3 || p.CompletedFiles != 1 || p.FailedFiles != 1 {
		t.Errorf("counts = %d/%d/%d", p.TotalFiles, p.CompletedFiles, p.FailedFiles)
	}
	if p.BytesDone != 150 {
		t.Errorf("BytesDone = %d, want finished bytes plus in-flight bytes", p.BytesDone)
	}
	if len(p.CurrentFiles) != 1 || p.CurrentFiles[0].Path != "/c" {
		t.Errorf("CurrentFiles = %+v", p.CurrentFiles)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	tr, _ := newTestTracker("peer1")

	tr.FileStarted("/a", 100)
	tr.FileAdvanced("/a", 60)
	tr.FileAdvanced("/a", 40) // regressions are dropped

	p := tr.Snapshot()
	if p.CurrentFiles[0].BytesDone != 60 {
		t.Errorf("BytesDone regressed to %d", p.CurrentFiles[0].BytesDone)
	}
}

func TestSpeedNotReportedImmediately(t *testing.T) {
	tr, clock := newTestTracker("peer1")

	tr.FileStarted("/a", 1000)
	clock.Advance(50 * time.Millisecond)
	tr.FileAdvanced("/a", 500)

	p := tr.Snapshot()
	f := p.CurrentFiles[0]
	if f.Speed != 0 {
		t.Errorf("speed reported after 50ms: %f", f.Speed)
	}
	if !math.IsInf(f.ETASeconds, 1) {
		t.Errorf("ETA = %f, want +Inf before speed is measurable", f.ETASeconds)
	}
}

func TestSpeedAndETA(t *testing.T) {
	tr, clock := newTestTracker("peer1")

	tr.FileStarted("/a", 4000)
	clock.Advance(2 * time.Second)
	tr.FileAdvanced("/a", 1000)

	p := tr.Snapshot()
	f := p.CurrentFiles[0]
	if f.Speed < 499 || f.Speed > 501 {
		t.Errorf("speed = %f, want ~500 B/s", f.Speed)
	}
	// 3000 bytes remaining at 500 B/s.
	if f.ETASeconds < 5.9 || f.ETASeconds > 6.1 {
		t.Errorf("ETA = %f, want ~6s", f.ETASeconds)
	}
}

func TestETAInfiniteBeyondCeiling(t *testing.T) {
	tr, clock := newTestTracker("peer1")

	tr.FileStarted("/a", 1<<40)
	clock.Advance(10 * time.Second)
	tr.FileAdvanced("/a", 100)

	f := tr.Snapshot().CurrentFiles[0]
	if !math.IsInf(f.ETASeconds, 1) {
		t.Errorf("ETA = %f, want +Inf when the projection is absurd", f.ETASeconds)
	}
}

func TestWaitSignalsOnUpdate(t *testing.T) {
	tr, _ := newTestTracker("peer1")

	ch := tr.Wait()
	select {
	case <-ch:
		t.Fatal("channel closed before any update")
	default:
	}

	tr.SetPhase(PhaseListing)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("update did not signal waiters")
	}

	// The replacement channel is open until the next update.
	select {
	case <-tr.Wait():
		t.Fatal("fresh channel already closed")
	default:
	}
}

func TestRecentEventsCapped(t *testing.T) {
	tr, _ := newTestTracker("peer1")

	for i := 0; i < 30; i++ {
		tr.FileCompleted(string(rune('a'+i%26))+"/f", 1)
	}
	if got := len(tr.Snapshot().RecentEvents); got != 20 {
		t.Errorf("recent events = %d, want capped at 20", got)
	}
}
