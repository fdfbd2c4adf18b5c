// Package paths maps source images onto their derivative locations and
// resolves the public URLs of those derivatives.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrOutsideRoot is returned when a path does not lie under the root it is
// resolved against.
var ErrOutsideRoot = errors.New("outside asset root")

// MapToOutput replaces the inputRoot prefix of source with outputRoot,
// keeping every intermediate directory component.
func MapToOutput(source, inputRoot, outputRoot string) (string, error) {
	rel, err := filepath.Rel(inputRoot, source)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, source)
	}
	if !isLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, source)
	}
	return filepath.Join(outputRoot, rel), nil
}

// WithFormat replaces the final extension of path with ext. A path without
// an extension gets ext appended.
func WithFormat(path, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// WithResolutionSuffix inserts _<width> before the final extension.
func WithResolutionSuffix(path string, width int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strconv.Itoa(width) + ext
}

// IsWithin reports whether path equals root or lies beneath it. Both must
// already be in the same (absolute, cleaned) form.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || isLocal(rel)
}

// Canonical returns the absolute form of path with symlinks resolved. A path
// that does not exist yet is returned absolute and cleaned.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return abs, nil
		}
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return resolved, nil
}

func isLocal(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
