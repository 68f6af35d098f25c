// Package merge implements a three-way tree merge: base/ours/theirs
// are each flattened to (path -> entry) maps and walked path by path,
// classifying each into one of fourteen cases and producing the set of
// stage-0/1/2/3 index entries that make up the merge result.
package merge

import (
	"sort"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/index"
)

// Case names one of the fourteen path classifications a three-way
// merge can produce for a single path.
type Case int

const (
	Unchanged Case = iota
	AddedByUs
	AddedByThem
	AddedBothSame
	AddedBothDiffer
	DeletedByUs
	DeletedByThem
	DeletedBoth
	ModifiedByUs
	ModifiedByThem
	ModifiedBothSame
	ModifiedBothDiffer
	DeleteModify
	ModifyDelete
)

func (c Case) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case AddedByUs:
		return "added-by-us"
	case AddedByThem:
		return "added-by-them"
	case AddedBothSame:
		return "added-both-same"
	case AddedBothDiffer:
		return "added-both-differ"
	case DeletedByUs:
		return "deleted-by-us"
	case DeletedByThem:
		return "deleted-by-them"
	case DeletedBoth:
		return "deleted-both"
	case ModifiedByUs:
		return "modified-by-us"
	case ModifiedByThem:
		return "modified-by-them"
	case ModifiedBothSame:
		return "modified-both-same"
	case ModifiedBothDiffer:
		return "modified-both-differ"
	case DeleteModify:
		return "delete/modify"
	case ModifyDelete:
		return "modify/delete"
	default:
		return "unknown"
	}
}

// IsConflict reports whether c belongs to the conflict set: cases that
// need manual resolution rather than an automatic pick.
func (c Case) IsConflict() bool {
	switch c {
	case AddedBothDiffer, ModifiedBothDiffer, DeleteModify, ModifyDelete:
		return true
	default:
		return false
	}
}

// entryRef is the (id, mode) pair a merge compares for equality; two
// entries are "same" iff both fields match.
type entryRef struct {
	id   codec.ID
	mode filemode.FileMode
}

func (e entryRef) equal(o entryRef) bool { return e.id == o.id && e.mode == o.mode }

// PathResult is one path's merge outcome.
type PathResult struct {
	Path string
	Case Case

	// Base/Ours/Theirs are nil when the path is absent on that side.
	Base, Ours, Theirs *index.Entry
}

// Result is the full three-way merge outcome: every path touched by
// any of the three trees, plus the subset that conflicts.
type Result struct {
	Paths     []PathResult
	Conflicts []PathResult
}

// Merge walks base, ours, and theirs (already-flattened stage-0
// indexes, e.g. from index.ReadTree) by path and classifies each
// unique path into one of the fourteen cases.
func Merge(base, ours, theirs *index.Index) Result {
	baseByPath := entriesByPath(base)
	oursByPath := entriesByPath(ours)
	theirsByPath := entriesByPath(theirs)

	paths := unionPaths(baseByPath, oursByPath, theirsByPath)

	var result Result
	for _, path := range paths {
		b, hasB := baseByPath[path]
		o, hasO := oursByPath[path]
		t, hasT := theirsByPath[path]

		pr := PathResult{Path: path}
		if hasB {
			pr.Base = b
		}
		if hasO {
			pr.Ours = o
		}
		if hasT {
			pr.Theirs = t
		}
		pr.Case = classify(hasB, hasO, hasT, b, o, t)

		result.Paths = append(result.Paths, pr)
		if pr.Case.IsConflict() {
			result.Conflicts = append(result.Conflicts, pr)
		}
	}
	return result
}

func classify(hasB, hasO, hasT bool, b, o, t *index.Entry) Case {
	ref := func(e *index.Entry) entryRef { return entryRef{id: e.ID, mode: e.Mode} }

	switch {
	case hasB && hasO && hasT:
		oChanged := !ref(b).equal(ref(o))
		tChanged := !ref(b).equal(ref(t))
		switch {
		case !oChanged && !tChanged:
			return Unchanged
		case oChanged && !tChanged:
			return ModifiedByUs
		case !oChanged && tChanged:
			return ModifiedByThem
		case ref(o).equal(ref(t)):
			return ModifiedBothSame
		default:
			return ModifiedBothDiffer
		}

	case hasB && hasO && !hasT:
		// Present at base and ours, deleted by theirs.
		if ref(b).equal(ref(o)) {
			return DeletedByThem
		}
		return ModifyDelete

	case hasB && !hasO && hasT:
		// Present at base and theirs, deleted by ours.
		if ref(b).equal(ref(t)) {
			return DeletedByUs
		}
		return DeleteModify

	case hasB && !hasO && !hasT:
		return DeletedBoth

	case !hasB && hasO && hasT:
		if ref(o).equal(ref(t)) {
			return AddedBothSame
		}
		return AddedBothDiffer

	case !hasB && hasO && !hasT:
		return AddedByUs

	case !hasB && !hasO && hasT:
		return AddedByThem

	default:
		// Absent everywhere: never produced by unionPaths, but handled
		// for completeness.
		return Unchanged
	}
}

func entriesByPath(idx *index.Index) map[string]*index.Entry {
	out := make(map[string]*index.Entry, len(idx.Entries))
	for i := range idx.Entries {
		e := idx.Entries[i]
		out[e.Path] = &e
	}
	return out
}

func unionPaths(maps ...map[string]*index.Entry) []string {
	seen := map[string]bool{}
	for _, m := range maps {
		for path := range m {
			seen[path] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Apply folds a Result into an Editor's queued edits: non-conflicting
// paths resolve directly to a single Merged-stage entry (picking
// ours/theirs/base as the case dictates, or dropping the path for a
// deletion); conflicting paths get their base/ours/theirs entries
// staged at 1/2/3 for the caller to resolve later.
func Apply(result Result, editor *index.Editor) {
	for _, pr := range result.Paths {
		switch pr.Case {
		case Unchanged:
			// Nothing to do: the path already sits at the shared
			// content in all three trees.

		case AddedByUs, ModifiedByUs, AddedBothSame, ModifiedBothSame:
			editor.Upsert(mergedEntry(pr.Ours, pr.Path))

		case AddedByThem, ModifiedByThem:
			editor.Upsert(mergedEntry(pr.Theirs, pr.Path))

		case DeletedByUs, DeletedByThem, DeletedBoth:
			editor.DeleteSubtree(pr.Path)

		case AddedBothDiffer, ModifiedBothDiffer, DeleteModify, ModifyDelete:
			stageConflict(editor, pr)
		}
	}
}

func mergedEntry(e *index.Entry, path string) index.Entry {
	merged := *e
	merged.Path = path
	merged.Stage = index.Merged
	return merged
}

func stageConflict(editor *index.Editor, pr PathResult) {
	// Drop what the editor's base holds at (or under) the path, such as
	// ours' stage-0 entry, so only the conflict stages remain.
	editor.DeleteSubtree(pr.Path)
	if pr.Base != nil {
		editor.Upsert(stagedEntry(pr.Base, pr.Path, index.AncestorStage))
	}
	if pr.Ours != nil {
		editor.Upsert(stagedEntry(pr.Ours, pr.Path, index.OurStage))
	}
	if pr.Theirs != nil {
		editor.Upsert(stagedEntry(pr.Theirs, pr.Path, index.TheirStage))
	}
}

func stagedEntry(e *index.Entry, path string, stage index.Stage) index.Entry {
	staged := *e
	staged.Path = path
	staged.Stage = stage
	return staged
}
