// Package security keeps file access by tracker definitions and renderers
// inside the directories they were configured with.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWithin resolves p against dir and checks that the result stays in
// dir, following symlinks of the existing part of the path. Absolute paths
// are returned cleaned and unchecked: they are an explicit choice of the
// definition's author.
func ResolveWithin(dir, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if dir == "" {
		dir = "."
	}
	joined := filepath.Join(dir, p)
	if err := CheckWithin(joined, dir); err != nil {
		return "", err
	}
	return joined, nil
}

// CheckWithin reports an error when path, once made absolute and with its
// symlinks resolved, lies outside dir.
func CheckWithin(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	canonicalDir := canonical(absDir)
	rel, err := filepath.Rel(canonicalDir, canonical(absPath))
	if err != nil {
		return fmt.Errorf("path %s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}

// canonical resolves the symlinks of the longest existing prefix of an
// absolute path and appends the rest unchanged, so a path to a file not yet
// written through a symlinked directory is still caught.
func canonical(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return abs
		}
	}
}

const maxFilenameLen = 128

// SanitizeFilename keeps ASCII letters, digits, dot, underscore and dash,
// replaces every other run of characters with one underscore and trims
// leading and trailing dots and underscores. The result may be empty.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "._")
}
