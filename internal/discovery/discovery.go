// Package discovery selects the source images a run will process, either by
// walking the asset root or by validating an explicit list of paths.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"image-optimizer-go/internal/paths"
)

var (
	// ErrRootNotFound is returned when the asset root is missing or is not a
	// directory.
	ErrRootNotFound = errors.New("asset root not found")
	// ErrNoPaths is returned when on-demand selection gets no paths at all.
	ErrNoPaths = errors.New("no image paths given")
)

// Rejection reasons reported for explicit paths.
const (
	ReasonNotFound      = "not found"
	ReasonIsDirectory   = "is a directory"
	ReasonOutsideRoot   = "outside asset root"
	ReasonInsideOutput  = "inside output directory"
	ReasonEmptyPath     = "empty path"
	ReasonNotAccessible = "not accessible"
)

// Options configures a discovery walk.
type Options struct {
	Root       string
	OutputRoot string
	Extensions []string
	Logger     *logrus.Logger
	// OnDirectory is called for every directory entered, root included.
	OnDirectory func(path string)
}

// Discover walks Root recursively and returns every file whose extension is
// in Extensions (case-insensitive), in lexical walk order. Directories at or
// below OutputRoot are pruned by canonical path, never by name.
func Discover(opts Options) ([]string, error) {
	root, err := CheckRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	outputRoot, err := paths.Canonical(opts.OutputRoot)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allowed[normalizeExt(ext)] = struct{}{}
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			if opts.Logger != nil {
				opts.Logger.WithFields(logrus.Fields{
					"file":      path,
					"operation": "discover",
				}).Warnf("Skipping unreadable entry: %v", walkErr)
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if paths.IsWithin(outputRoot, path) {
				return filepath.SkipDir
			}
			if opts.OnDirectory != nil {
				opts.OnDirectory(path)
			}
			return nil
		}

		if !d.Type().IsRegular() && !linksToFile(path, outputRoot) {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// linksToFile reports whether path is a symlink to a regular file outside
// the output tree.
func linksToFile(path, outputRoot string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil || paths.IsWithin(outputRoot, target) {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && info.Mode().IsRegular()
}

// CheckRoot returns the canonical asset root, or ErrRootNotFound when it is
// missing or not a directory.
func CheckRoot(root string) (string, error) {
	canonical, err := paths.Canonical(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return "", fmt.Errorf("stat asset root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}
	return canonical, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
