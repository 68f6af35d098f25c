package index

import (
	"strings"

	"github.com/emirpasic/gods/lists/arraylist"
)

// EditKind distinguishes the three StagingEdit shapes an Editor batch
// can contain.
type EditKind int

const (
	// UpsertEdit inserts or overwrites the entry at (Entry.Path, Entry.Stage).
	UpsertEdit EditKind = iota
	// DeleteSubtreeEdit removes every entry whose path is prefix or starts
	// with prefix + "/".
	DeleteSubtreeEdit
	// ResolveConflictEdit selects the entry at (Path, Stage), rewrites it
	// to Merged, and drops the path's other conflict stages.
	ResolveConflictEdit
)

// StagingEdit is one pending mutation collected by an Editor before Apply.
type StagingEdit struct {
	Kind   EditKind
	Entry  Entry
	Prefix string
	Path   string
	Stage  Stage
}

// Editor batches edits against a base Index and produces a new Index
// via a single merged pass, rather than mutating entries one at a time.
type Editor struct {
	base  *Index
	edits []StagingEdit
}

// NewEditor returns an Editor that will apply edits on top of base.
func NewEditor(base *Index) *Editor {
	return &Editor{base: base}
}

// Upsert queues an insert-or-overwrite of entry at its (path, stage).
func (e *Editor) Upsert(entry Entry) {
	e.edits = append(e.edits, StagingEdit{Kind: UpsertEdit, Entry: entry})
}

// DeleteSubtree queues removal of prefix and every path nested under it.
func (e *Editor) DeleteSubtree(prefix string) {
	e.edits = append(e.edits, StagingEdit{Kind: DeleteSubtreeEdit, Prefix: prefix})
}

// ResolveConflict queues collapsing path's conflict stages down to a
// single Merged entry, taken from the given stage.
func (e *Editor) ResolveConflict(path string, stage Stage) {
	e.edits = append(e.edits, StagingEdit{Kind: ResolveConflictEdit, Path: path, Stage: stage})
}

type entryKey struct {
	path  string
	stage Stage
}

// Apply loads the base entries into a map keyed by (path, stage),
// applies each queued edit in order (later edits win on conflicting
// keys), then sorts the result and validates it the same way
// Builder.Finish validates a fresh build.
func (e *Editor) Apply() (*Index, error) {
	byKey := make(map[entryKey]Entry, len(e.base.Entries))
	for _, entry := range e.base.Entries {
		byKey[entryKey{entry.Path, entry.Stage}] = entry
	}

	for _, edit := range e.edits {
		switch edit.Kind {
		case UpsertEdit:
			byKey[entryKey{edit.Entry.Path, edit.Entry.Stage}] = edit.Entry

		case DeleteSubtreeEdit:
			prefix := edit.Prefix
			for k := range byKey {
				if k.path == prefix || strings.HasPrefix(k.path, prefix+"/") {
					delete(byKey, k)
				}
			}

		case ResolveConflictEdit:
			chosen, ok := byKey[entryKey{edit.Path, edit.Stage}]
			if !ok {
				continue
			}
			for _, s := range []Stage{AncestorStage, OurStage, TheirStage} {
				delete(byKey, entryKey{edit.Path, s})
			}
			chosen.Stage = Merged
			byKey[entryKey{edit.Path, Merged}] = chosen
		}
	}

	list := arraylist.New()
	for _, entry := range byKey {
		list.Add(entry)
	}
	list.Sort(func(a, b interface{}) int {
		ea, eb := a.(Entry), b.(Entry)
		if ea.Path != eb.Path {
			return strings.Compare(ea.Path, eb.Path)
		}
		return int(ea.Stage) - int(eb.Stage)
	})

	values := list.Values()
	merged := make([]Entry, len(values))
	for i, v := range values {
		merged[i] = v.(Entry)
	}
	if err := validateSorted(merged); err != nil {
		return nil, err
	}

	return &Index{Version: e.base.Version, Entries: merged, Cache: e.base.Cache, ResolveUndo: e.base.ResolveUndo}, nil
}
