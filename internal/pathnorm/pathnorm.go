// Package pathnorm canonicalizes local absolute paths into the
// repository-relative, forward-slash keys the shadow database uses.
package pathnorm

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Normalize strips localRoot (plus one path separator) from absolutePath
// and rewrites all separators to '/'. It panics-free returns an error
// when absolutePath does not start with localRoot — a programmer error,
// since every caller in this codebase only ever normalizes paths it
// derived from a walk rooted at localRoot.
func Normalize(localRoot, absolutePath string) (string, error) {
	root := filepath.Clean(localRoot)
	abs := filepath.Clean(absolutePath)

	if abs == root {
		return "", nil
	}

	prefix := root + string(filepath.Separator)
	if !strings.HasPrefix(abs, prefix) {
		return "", fmt.Errorf("pathnorm: %q is not under root %q", absolutePath, localRoot)
	}

	rel := abs[len(prefix):]
	return filepath.ToSlash(rel), nil
}

// Join reconstitutes an absolute local path from localRoot and a
// normalized ('/'-separated) path.
func Join(localRoot, normalized string) string {
	if normalized == "" {
		return filepath.Clean(localRoot)
	}
	return filepath.Join(localRoot, filepath.FromSlash(normalized))
}
