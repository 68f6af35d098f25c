// Package index implements Git's staging area: the sorted collection
// of (path, stage) entries that sits between the worktree and the
// object store, its binary on-disk encoding (versions 2-4), and the
// fold-to-tree / expand-from-tree conversions that tie it to objstore.
package index

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
)

// Stage distinguishes a fully-merged entry (Merged) from the three
// conflict slots a path occupies during an unresolved merge.
type Stage uint8

const (
	// Merged is the ordinary, conflict-free stage.
	Merged Stage = 0
	// AncestorStage holds the common-ancestor (base) version.
	AncestorStage Stage = 1
	// OurStage holds "our" side of an unresolved merge.
	OurStage Stage = 2
	// TheirStage holds "their" side of an unresolved merge.
	TheirStage Stage = 3
)

// ErrInvalidPath is returned when a path fails validation: empty,
// leading/trailing "/", a "//" run, or a ".git" component.
var ErrInvalidPath = errors.New("index: invalid path")

// ValidatePath rejects paths that are empty, absolute, trailing-slash,
// contain an empty path segment, or walk through a ".git" component.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".git" {
			return fmt.Errorf("%w: %q contains a \".git\" component", ErrInvalidPath, path)
		}
	}
	return nil
}

// Entry is one (path, stage) record: a path's mode, content ID, and
// the worktree metadata used to short-circuit "is this path dirty?"
// checks without rehashing content.
type Entry struct {
	Path  string
	Mode  filemode.FileMode
	ID    codec.ID
	Stage Stage

	Size       uint32
	CreatedAt  time.Time
	ModifiedAt time.Time
	Dev, Inode uint32
	UID, GID   uint32

	IntentToAdd  bool
	SkipWorktree bool
}

// less orders entries by (path bytewise, stage), the index's sort key.
func less(a, b Entry) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return a.Stage < b.Stage
}
