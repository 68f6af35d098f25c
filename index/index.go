package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
)

// ErrEntryNotFound is returned when a lookup by path finds nothing.
var ErrEntryNotFound = errors.New("index: entry not found")

// ErrDuplicateEntry is returned by Builder.Finish when two entries
// share a (path, stage) key.
var ErrDuplicateEntry = errors.New("index: duplicate entry")

// ErrStageConflict is returned by Builder.Finish when a path has both
// a Merged-stage entry and a conflict-stage (1-3) entry.
var ErrStageConflict = errors.New("index: stage 0 must be exclusive per path")

// TreeCacheEntry is one node of the 'TREE' extension: a precomputed
// tree ID for a span of consecutive stage-0 entries, so writeTree can
// skip re-hashing subtrees that haven't changed.
type TreeCacheEntry struct {
	Path    string
	Entries int // -1 marks this span invalidated
	Trees   int
	ID      codec.ID
}

// ResolveUndoStage is one conflict stage's (mode, object ID) pair, as
// recorded by a REUC entry.
type ResolveUndoStage struct {
	Mode filemode.FileMode
	ID   codec.ID
}

// ResolveUndoEntry records the stages a path held just before a
// conflict at that path was resolved down to a single stage-0 entry.
type ResolveUndoEntry struct {
	Path   string
	Stages map[Stage]ResolveUndoStage
}

// Index is the in-memory staging area: entries sorted by (path, stage),
// plus the optional TREE and REUC extensions.
type Index struct {
	Version     uint32
	Entries     []Entry
	Cache       []TreeCacheEntry
	ResolveUndo []ResolveUndoEntry
}

// New returns an empty index at the given format version (2, 3, or 4).
func New(version uint32) *Index {
	return &Index{Version: version}
}

// Entry returns the Merged-stage entry at path, or the lowest-stage
// entry present if the path is currently conflicted.
func (idx *Index) Entry(path string) (*Entry, error) {
	entries := idx.entriesAt(path)
	if len(entries) == 0 {
		return nil, ErrEntryNotFound
	}
	return &entries[0], nil
}

// EntriesAtStages returns every stage present for path, in stage order.
func (idx *Index) EntriesAtStages(path string) []Entry {
	return idx.entriesAt(path)
}

func (idx *Index) entriesAt(path string) []Entry {
	i := sort.Search(len(idx.Entries), func(i int) bool { return idx.Entries[i].Path >= path })
	var out []Entry
	for ; i < len(idx.Entries) && idx.Entries[i].Path == path; i++ {
		out = append(out, idx.Entries[i])
	}
	return out
}

// HasConflicts reports whether any path currently has a non-Merged
// stage entry.
func (idx *Index) HasConflicts() bool {
	for _, e := range idx.Entries {
		if e.Stage != Merged {
			return true
		}
	}
	return false
}

func validateSorted(entries []Entry) error {
	seen := map[string]map[Stage]bool{}
	for _, e := range entries {
		if err := ValidatePath(e.Path); err != nil {
			return err
		}
		stages := seen[e.Path]
		if stages == nil {
			stages = map[Stage]bool{}
			seen[e.Path] = stages
		}
		if stages[e.Stage] {
			return fmt.Errorf("%w: %q stage %d", ErrDuplicateEntry, e.Path, e.Stage)
		}
		stages[e.Stage] = true
	}
	for path, stages := range seen {
		if stages[Merged] && len(stages) > 1 {
			return fmt.Errorf("%w: %q", ErrStageConflict, path)
		}
	}
	return nil
}
