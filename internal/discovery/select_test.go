package discovery

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSelect(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "images/hero.jpg")
	touch(t, root, "images/logo.png")
	touch(t, root, "optimized/old.jpg")

	sel, err := Select(root, filepath.Join(root, "optimized"), []string{
		"images/hero.jpg",
		"images/missing.jpg",
		"images",
		"../escape.jpg",
		"optimized/old.jpg",
		"",
		"images/logo.png",
		"images/hero.jpg",
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if got := relAll(t, root, sel.Accepted); len(got) != 2 || got[0] != "images/hero.jpg" || got[1] != "images/logo.png" {
		t.Fatalf("Accepted = %v", got)
	}

	wantReasons := map[string]string{
		"images/missing.jpg": ReasonNotFound,
		"images":             ReasonIsDirectory,
		"../escape.jpg":      ReasonOutsideRoot,
		"optimized/old.jpg":  ReasonInsideOutput,
		"":                   ReasonEmptyPath,
	}
	if len(sel.Rejections) != len(wantReasons) {
		t.Fatalf("Rejections = %+v", sel.Rejections)
	}
	for _, r := range sel.Rejections {
		if wantReasons[r.Path] != r.Reason {
			t.Errorf("rejection %q reason = %q, want %q", r.Path, r.Reason, wantReasons[r.Path])
		}
	}
}

func TestSelectPreservesOrder(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b.jpg")
	touch(t, root, "a.jpg")

	sel, err := Select(root, filepath.Join(root, "optimized"), []string{"b.jpg", "a.jpg"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(sel.Accepted) != 2 || filepath.Base(sel.Accepted[0]) != "b.jpg" {
		t.Fatalf("Accepted = %v, want input order", sel.Accepted)
	}
}

func TestSelectNoPaths(t *testing.T) {
	if _, err := Select(t.TempDir(), "out", nil); !errors.Is(err, ErrNoPaths) {
		t.Fatalf("Select() error = %v, want ErrNoPaths", err)
	}
}

func TestSelectMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nope")
	if _, err := Select(root, filepath.Join(root, "optimized"), []string{"a.jpg"}); !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("Select() error = %v, want ErrRootNotFound", err)
	}
}

func TestSelectKeepsSymlinkName(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "images/2024.jpg")
	symlink(t, root, filepath.Join("images", "2024.jpg"), "latest.jpg")
	outside := touch(t, t.TempDir(), "secret.jpg")
	symlink(t, root, outside, "leak.jpg")

	sel, err := Select(root, filepath.Join(root, "optimized"), []string{"latest.jpg", "leak.jpg"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := relAll(t, root, sel.Accepted); len(got) != 1 || got[0] != "latest.jpg" {
		t.Fatalf("Accepted = %v, want [latest.jpg]", got)
	}
	if len(sel.Rejections) != 1 || sel.Rejections[0].Reason != ReasonOutsideRoot {
		t.Fatalf("Rejections = %+v", sel.Rejections)
	}
}
