package transfer

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Phase represents the current phase of a transfer batch.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseListing      Phase = "listing"
	PhaseDownloading  Phase = "downloading"
	PhaseAuthRequired Phase = "auth_required"
	PhaseCompleted    Phase = "completed"
	PhaseAborted      Phase = "aborted"
)

// etaCeiling is the projection beyond which an ETA is reported as unknown.
const etaCeiling = 36000 * time.Second

// FileEvent records a completed or failed file for the recent activity log.
type FileEvent struct {
	Path   string `json:"path"`
	Status string `json:"status"` // "completed", "failed"
	Error  string `json:"error,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// FileProgress tracks the state of one file within the batch.
type FileProgress struct {
	Path       string  `json:"path"`
	BytesDone  int64   `json:"bytes_done"`
	TotalBytes int64   `json:"total_bytes"`
	Speed      float64 `json:"speed"` // bytes per second, 0 until measurable
	// ETASeconds is +Inf when the speed is zero or the projection exceeds
	// the reporting ceiling.
	ETASeconds float64 `json:"eta_seconds"`
	Done       bool    `json:"done"`
	Failed     bool    `json:"failed"`
}

// Progress is a snapshot of the current batch state.
type Progress struct {
	Peer           string         `json:"peer"`
	Phase          Phase          `json:"phase"`
	TotalFiles     int            `json:"total_files"`
	CompletedFiles int            `json:"completed_files"`
	FailedFiles    int            `json:"failed_files"`
	BytesDone      int64          `json:"bytes_done"`
	CurrentFiles   []FileProgress `json:"current_files,omitempty"`
	RecentEvents   []FileEvent    `json:"recent_events,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	Elapsed        time.Duration  `json:"elapsed"`
	Message        string         `json:"message,omitempty"`
}

// fileState is the tracker's internal per-file record.
type fileState struct {
	path       string
	bytesDone  int64
	totalBytes int64
	started    time.Time
	done       bool
	failed     bool
}

// Tracker accumulates transfer progress in a thread-safe manner. Progress
// renderers call Wait() to block until the next update.
type Tracker struct {
	mu sync.Mutex

	peer           string
	phase          Phase
	totalFiles     int
	completedFiles int
	failedFiles    int
	bytesDone      int64 // bytes of finished files; in-flight bytes live in files
	startTime      time.Time
	message        string

	files        map[string]*fileState
	recentEvents []FileEvent

	// Notification channel: close-and-replace pattern. Listeners grab the
	// current channel from Wait() and block on it; any update closes the
	// old channel and installs a fresh one.
	notify chan struct{}

	now func() time.Time
}

// NewTracker creates a tracker for a batch pulled from the named peer.
func NewTracker(peer string) *Tracker {
	now := time.Now
	return &Tracker{
		peer:      peer,
		phase:     PhaseIdle,
		startTime: now(),
		files:     make(map[string]*fileState),
		notify:    make(chan struct{}),
		now:       now,
	}
}

// Wait returns a channel closed on the next update.
func (t *Tracker) Wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notify
}

// signal closes the current notify channel and replaces it. Caller holds t.mu.
func (t *Tracker) signal() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// SetPhase updates the batch phase.
func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.signal()
}

// SetMessage sets a human-readable status line.
func (t *Tracker) SetMessage(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = msg
	t.signal()
}

// AddFiles raises the expected file count as listings resolve.
func (t *Tracker) AddFiles(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles += n
	t.signal()
}

// FileStarted registers a file about to be downloaded.
func (t *Tracker) FileStarted(path string, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = &fileState{
		path:       path,
		totalBytes: totalBytes,
		started:    t.now(),
	}
	t.signal()
}

// FileAdvanced updates byte-level progress for an in-flight file.
func (t *Tracker) FileAdvanced(path string, bytesDone int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fs, ok := t.files[path]
	if !ok || fs.done || fs.failed {
		return
	}
	if bytesDone > fs.bytesDone {
		fs.bytesDone = bytesDone
	}
	t.signal()
}

// FileCompleted marks a file as fully transferred.
func (t *Tracker) FileCompleted(path string, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fs, ok := t.files[path]
	if !ok {
		fs = &fileState{path: path}
		t.files[path] = fs
	}
	fs.done = true
	fs.bytesDone = bytes
	t.completedFiles++
	t.bytesDone += bytes
	t.addRecentEvent(FileEvent{Path: path, Status: "completed", Size: bytes})
	t.signal()
}

// FileFailed marks a file as failed without aborting the batch.
func (t *Tracker) FileFailed(path string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fs, ok := t.files[path]
	if !ok {
		fs = &fileState{path: path}
		t.files[path] = fs
	}
	fs.failed = true
	t.failedFiles++
	t.addRecentEvent(FileEvent{Path: path, Status: "failed", Error: errMsg})
	t.signal()
}

// addRecentEvent prepends an event to the rolling log, capped at 20.
// Caller holds t.mu.
func (t *Tracker) addRecentEvent(ev FileEvent) {
	t.recentEvents = append([]FileEvent{ev}, t.recentEvents...)
	if len(t.recentEvents) > 20 {
		t.recentEvents = t.recentEvents[:20]
	}
}

// Snapshot returns a copy of the current state. Speed is only reported for
// a file once it has been in flight long enough to measure; until then an
// observer sees zero speed and an infinite ETA rather than a wild estimate.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	current := make([]FileProgress, 0, len(t.files))
	var inFlight int64
	for _, fs := range t.files {
		if fs.done || fs.failed {
			continue
		}
		inFlight += fs.bytesDone
		fp := FileProgress{
			Path:       fs.path,
			BytesDone:  fs.bytesDone,
			TotalBytes: fs.totalBytes,
			ETASeconds: math.Inf(1),
		}
		elapsed := now.Sub(fs.started)
		if elapsed > 100*time.Millisecond && fs.bytesDone > 0 {
			fp.Speed = float64(fs.bytesDone) / elapsed.Seconds()
			if fs.totalBytes > fs.bytesDone && fp.Speed > 0 {
				eta := time.Duration(float64(fs.totalBytes-fs.bytesDone) / fp.Speed * float64(time.Second))
				if eta < etaCeiling {
					fp.ETASeconds = eta.Seconds()
				}
			}
		}
		current = append(current, fp)
	}
	sort.Slice(current, func(i, j int) bool { return current[i].Path < current[j].Path })

	events := make([]FileEvent, len(t.recentEvents))
	copy(events, t.recentEvents)

	return Progress{
		Peer:           t.peer,
		Phase:          t.phase,
		TotalFiles:     t.totalFiles,
		CompletedFiles: t.completedFiles,
		FailedFiles:    t.failedFiles,
		BytesDone:      t.bytesDone + inFlight,
		CurrentFiles:   current,
		RecentEvents:   events,
		StartTime:      t.startTime,
		Elapsed:        now.Sub(t.startTime),
	}
}
