package permission

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWritePath canonicalizes a write-tool target path and ensures
// it stays contained within root, rejecting absolute paths, ".."
// traversal, and embedded null bytes.
func ResolveWritePath(root, target string) (string, error) {
	if strings.Contains(target, "\x00") {
		return "", fmt.Errorf("path contains null byte")
	}
	if filepath.IsAbs(target) {
		return "", fmt.Errorf("path must be relative to the workspace root")
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, target)
	resolved := filepath.Clean(joined)

	if resolved != cleanRoot && !strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace root")
	}
	return resolved, nil
}
