package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CleanEntryName validates a single file or directory name received from a
// remote listing. It rejects empty names, path separators, and traversal
// segments so a malicious peer cannot escape the download directory.
func CleanEntryName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("entry name is empty")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid entry name: %q", name)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute entry name: %q", name)
	}
	if strings.ContainsRune(clean, filepath.Separator) {
		return "", fmt.Errorf("entry name contains separator: %q", name)
	}
	return clean, nil
}

// SafeJoinUnder joins a remote-supplied entry name under root and verifies
// the final path remains inside root.
func SafeJoinUnder(root, name string) (string, error) {
	clean, err := CleanEntryName(name)
	if err != nil {
		return "", err
	}
	return EnsureUnderRoot(root, filepath.Join(root, clean))
}

// EnsureUnderRoot verifies candidate resolves under root and returns
// an absolute normalized path.
func EnsureUnderRoot(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve candidate: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, candAbs)
	if err != nil {
		return "", fmt.Errorf("compare paths: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %q", candidate)
	}
	return candAbs, nil
}
