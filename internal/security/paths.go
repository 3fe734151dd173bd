// Package security guards file names and paths that are derived from
// configuration or request input.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxFilenameLen bounds names produced by SanitizeFilename.
const maxFilenameLen = 96

// ValidatePathWithinDirectory rejects filePath if, after cleaning and
// resolving symlinks on its longest existing prefix, it lies outside dir.
func ValidatePathWithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, resolveExisting(absPath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s escapes %s", filePath, dir)
	}
	return nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of p and
// re-appends the components that do not exist yet.
func resolveExisting(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for parent := filepath.Dir(p); ; parent = filepath.Dir(parent) {
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rest, _ := filepath.Rel(parent, p)
			return filepath.Join(resolved, rest)
		}
		if parent == filepath.Dir(parent) {
			return p
		}
	}
}

// SanitizeFilename keeps ASCII letters, digits, dot and dash and collapses
// every other run of characters into a single underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
