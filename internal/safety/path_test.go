package safety

import (
	"path/filepath"
	"testing"
)

func TestCleanEntryName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "file.txt", "file.txt", false},
		{"spaces", "my file.txt", "my file.txt", false},
		{"empty", "", "", true},
		{"dot", ".", "", true},
		{"dotdot", "..", "", true},
		{"separator", "a/b", "", true},
		{"absolute", "/etc/passwd", "", true},
		{"traversal", "../../etc/passwd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanEntryName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CleanEntryName(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanEntryName(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("CleanEntryName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeJoinUnder(t *testing.T) {
	root := t.TempDir()

	got, err := SafeJoinUnder(root, "photo.jpg")
	if err != nil {
		t.Fatalf("SafeJoinUnder error: %v", err)
	}
	if got != filepath.Join(root, "photo.jpg") {
		t.Errorf("SafeJoinUnder = %q", got)
	}

	if _, err := SafeJoinUnder(root, "../escape"); err == nil {
		t.Error("SafeJoinUnder accepted a traversal name")
	}
}

func TestEnsureUnderRoot(t *testing.T) {
	root := t.TempDir()

	if _, err := EnsureUnderRoot(root, filepath.Join(root, "a", "b")); err != nil {
		t.Errorf("nested path rejected: %v", err)
	}
	if _, err := EnsureUnderRoot(root, filepath.Join(root, "..", "outside")); err == nil {
		t.Error("escaping path accepted")
	}
	if _, err := EnsureUnderRoot(root, root); err != nil {
		t.Errorf("root itself rejected: %v", err)
	}
}
