package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"image-optimizer-go/internal/paths"
)

// Rejection records an explicit path that will not be processed.
type Rejection struct {
	Path   string
	Reason string
}

// Selection is the outcome of validating explicit paths. Accepted holds
// absolute paths in input order.
type Selection struct {
	Accepted   []string
	Rejections []Rejection
}

// Select resolves relPaths against root and validates each one. Invalid
// entries become rejections; only an empty list or a missing root is an
// error.
func Select(root, outputRoot string, relPaths []string) (Selection, error) {
	if len(relPaths) == 0 {
		return Selection{}, ErrNoPaths
	}

	canonicalRoot, err := CheckRoot(root)
	if err != nil {
		return Selection{}, err
	}
	canonicalOut, err := paths.Canonical(outputRoot)
	if err != nil {
		return Selection{}, err
	}

	var sel Selection
	seen := make(map[string]struct{}, len(relPaths))
	for _, rel := range relPaths {
		abs, reason := validate(canonicalRoot, canonicalOut, rel)
		if reason != "" {
			sel.Rejections = append(sel.Rejections, Rejection{Path: rel, Reason: reason})
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		sel.Accepted = append(sel.Accepted, abs)
	}
	return sel, nil
}

func validate(root, outputRoot, rel string) (string, string) {
	if strings.TrimSpace(rel) == "" {
		return "", ReasonEmptyPath
	}

	joined := filepath.Join(root, rel)
	if filepath.IsAbs(rel) {
		joined = filepath.Clean(rel)
	}
	if !paths.IsWithin(root, joined) || joined == root {
		return "", ReasonOutsideRoot
	}

	// Containment is checked on the link target, but the link path itself is
	// returned so derivatives mirror the name the caller asked for.
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ReasonNotFound
		}
		return "", ReasonNotAccessible
	}
	if !paths.IsWithin(root, resolved) {
		return "", ReasonOutsideRoot
	}
	if paths.IsWithin(outputRoot, resolved) {
		return "", ReasonInsideOutput
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", ReasonNotAccessible
	}
	if info.IsDir() {
		return "", ReasonIsDirectory
	}
	return joined, ""
}
