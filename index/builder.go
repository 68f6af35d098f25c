package index

import (
	"sort"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/object"
)

// Builder accumulates entries for bulk (re)population of an index:
// either a from-scratch build or a wholesale replacement such as
// readTree. Entries are validated and sorted only on Finish, so the
// order of Add calls doesn't matter.
type Builder struct {
	version uint32
	entries []Entry
}

// NewBuilder returns an empty Builder targeting the given format version.
func NewBuilder(version uint32) *Builder {
	return &Builder{version: version}
}

// Add appends e to the pending entry set.
func (b *Builder) Add(e Entry) {
	b.entries = append(b.entries, e)
}

// AddTree recursively expands trees into stage-tagged entries rooted
// at prefix ("" for the repository root), loading nested trees through
// load and, when sizeOf is non-nil, blob sizes through sizeOf.
func (b *Builder) AddTree(trees *object.Tree, load func(id codec.ID) (*object.Tree, error), prefix string, stage Stage, sizeOf func(id codec.ID) (uint32, error)) error {
	for _, te := range trees.Entries {
		path := te.Name
		if prefix != "" {
			path = prefix + "/" + te.Name
		}

		if te.Mode == filemode.Dir {
			subtree, err := load(te.ID)
			if err != nil {
				return err
			}
			if err := b.AddTree(subtree, load, path, stage, sizeOf); err != nil {
				return err
			}
			continue
		}

		var size uint32
		if sizeOf != nil {
			s, err := sizeOf(te.ID)
			if err != nil {
				return err
			}
			size = s
		}

		b.Add(Entry{Path: path, Mode: te.Mode, ID: te.ID, Stage: stage, Size: size})
	}
	return nil
}

// Finish sorts the pending entries by (path, stage), rejects
// duplicate (path, stage) pairs and any path mixing stage 0 with a
// conflict stage, and returns the resulting Index.
func (b *Builder) Finish() (*Index, error) {
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })

	if err := validateSorted(entries); err != nil {
		return nil, err
	}

	return &Index{Version: b.version, Entries: entries}, nil
}
