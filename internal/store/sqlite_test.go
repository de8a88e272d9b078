package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "history", "lanshare.db"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateAndFinishRun(t *testing.T) {
	st := newTestStore(t)

	run := &TransferRun{
		Peer:      "office-laptop",
		BaseURL:   "http://192.168.1.20:8080",
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("run ID not assigned")
	}

	run.EndTime = time.Now()
	run.FilesCompleted = 3
	run.FilesFailed = 1
	run.BytesTransferred = 4096
	run.Status = StatusPartial
	if err := st.FinishRun(run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	got := runs[0]
	if got.Peer != "office-laptop" || got.FilesCompleted != 3 || got.FilesFailed != 1 {
		t.Errorf("run = %+v", got)
	}
	if got.Status != StatusPartial || got.BytesTransferred != 4096 {
		t.Errorf("run = %+v", got)
	}
	if got.EndTime.IsZero() {
		t.Error("end time not persisted")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	st := newTestStore(t)

	for _, peer := range []string{"one", "two", "three"} {
		run := &TransferRun{Peer: peer, BaseURL: "http://x", StartTime: time.Now(), Status: StatusSuccess}
		if err := st.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := st.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("limit ignored: %d runs", len(runs))
	}
	if runs[0].Peer != "three" || runs[1].Peer != "two" {
		t.Errorf("order = %s, %s", runs[0].Peer, runs[1].Peer)
	}
}

func TestRecordAndListFiles(t *testing.T) {
	st := newTestStore(t)

	run := &TransferRun{Peer: "p", BaseURL: "http://x", StartTime: time.Now(), Status: StatusRunning}
	if err := st.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	recs := []*FileRecord{
		{RunID: run.ID, RemotePath: "/a.txt", LocalPath: "/dl/a.txt", Size: 10, Status: "completed"},
		{RunID: run.ID, RemotePath: "/b.txt", Status: "failed", ErrorMessage: "connection reset"},
	}
	for _, rec := range recs {
		if err := st.RecordFile(rec); err != nil {
			t.Fatalf("RecordFile: %v", err)
		}
	}

	files, err := st.RunFiles(run.ID)
	if err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files", len(files))
	}
	if files[0].RemotePath != "/a.txt" || files[0].Size != 10 {
		t.Errorf("first record = %+v", files[0])
	}
	if files[1].Status != "failed" || files[1].ErrorMessage != "connection reset" {
		t.Errorf("second record = %+v", files[1])
	}

	// Files of another run stay invisible.
	other, err := st.RunFiles(run.ID + 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("unexpected records: %+v", other)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lanshare.db")

	st, err := New(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	// Reopening must not re-run migrations.
	st, err = New(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	st.Close()
}
