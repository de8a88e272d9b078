package store

import "time"

// Run status values.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// TransferRun records one fetch invocation against a peer.
type TransferRun struct {
	ID               int64
	Peer             string
	BaseURL          string
	StartTime        time.Time
	EndTime          time.Time
	FilesCompleted   int
	FilesFailed      int
	BytesTransferred int64
	Status           string
	ErrorMessage     string
}

// FileRecord is one file outcome inside a run.
type FileRecord struct {
	ID           int64
	RunID        int64
	RemotePath   string
	LocalPath    string
	Size         int64
	Status       string // "completed" or "failed"
	ErrorMessage string
}
