package worktree

import (
	"bytes"
	"errors"
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/index"
	"github.com/statewalker/vcs-sub012/refs"
)

// CheckoutTarget names the commit a checkout materializes and, if the
// commit is reached through a local branch, the branch HEAD should
// track afterward. A zero Branch checks out detached at CommitID.
type CheckoutTarget struct {
	CommitID codec.ID
	Branch   refs.ReferenceName
}

// CheckoutOptions configures CheckoutTree.
type CheckoutOptions struct {
	// Paths restricts the checkout to these path prefixes. Empty means
	// the whole tree.
	Paths []string
	// DryRun computes the result without touching the filesystem, the
	// index, or HEAD.
	DryRun bool
	// Force proceeds even when conflicting local changes are detected.
	Force bool
}

// CheckoutResult reports what CheckoutTree did, or would have done
// under DryRun.
type CheckoutResult struct {
	Updated   []string
	Removed   []string
	Conflicts []string
}

// CheckoutTree materializes target's tree into the worktree, following
// the five-step algorithm: resolve target to a tree, flatten HEAD and
// target, compute removes/updates, conflict-check against the current
// index and worktree contents unless Force is set, then apply and
// rebuild the index and HEAD. A non-empty Conflicts result means no
// filesystem change was made, Force notwithstanding DryRun.
func (w *Worktree) CheckoutTree(target CheckoutTarget, opts CheckoutOptions) (CheckoutResult, error) {
	targetTreeID, err := w.History.Commits.GetTree(target.CommitID)
	if err != nil {
		return CheckoutResult{}, err
	}

	headEntries, haveHead, err := w.headEntries()
	if err != nil {
		return CheckoutResult{}, err
	}

	targetIdx, err := index.ReadTree(w.History.Trees, w.History.Blobs, targetTreeID, 2)
	if err != nil {
		return CheckoutResult{}, err
	}
	targetEntries := entryMap(targetIdx.Entries)

	curIdx, err := w.Index()
	if err != nil {
		return CheckoutResult{}, err
	}
	indexEntries := entryMap(curIdx.Entries)

	var removed, updated []string
	for p := range headEntries {
		if _, ok := targetEntries[p]; !ok && inScope(p, opts.Paths) {
			removed = append(removed, p)
		}
	}
	for p, te := range targetEntries {
		if !inScope(p, opts.Paths) {
			continue
		}
		if he, ok := headEntries[p]; !ok || !sameBlob(he, te) {
			updated = append(updated, p)
		}
	}
	sort.Strings(removed)
	sort.Strings(updated)

	result := CheckoutResult{Updated: updated, Removed: removed}

	if !opts.Force {
		for _, p := range append(append([]string{}, removed...), updated...) {
			if w.checkoutConflicts(p, headEntries, indexEntries) {
				result.Conflicts = append(result.Conflicts, p)
			}
		}
		sort.Strings(result.Conflicts)
		if len(result.Conflicts) > 0 {
			return result, nil
		}
	}

	if opts.DryRun {
		return result, nil
	}

	for _, p := range removed {
		if err := w.Remove(p, RemoveOptions{}); err != nil {
			return result, err
		}
	}
	for _, p := range updated {
		entry := targetEntries[p]
		content, err := w.History.Blobs.Load(entry.ID)
		if err != nil {
			return result, err
		}
		if err := w.WriteContent(p, bytes.NewReader(content), WriteOptions{
			Mode:          entry.Mode,
			CreateParents: true,
			Overwrite:     true,
		}); err != nil {
			return result, err
		}
	}

	editor := index.NewEditor(curIdx)
	for _, p := range removed {
		editor.DeleteSubtree(p)
	}
	for _, p := range updated {
		editor.Upsert(targetEntries[p])
	}
	newIdx, err := editor.Apply()
	if err != nil {
		return result, err
	}
	if err := w.SetIndex(newIdx); err != nil {
		return result, err
	}

	if err := w.updateHead(target); err != nil {
		return result, err
	}

	return result, nil
}

func (w *Worktree) headEntries() (map[string]index.Entry, bool, error) {
	headID, err := w.History.Head()
	if err != nil {
		if errors.Is(err, refs.ErrNotFound) {
			return map[string]index.Entry{}, false, nil
		}
		return nil, false, err
	}

	treeID, err := w.History.Commits.GetTree(headID)
	if err != nil {
		return nil, false, err
	}
	idx, err := index.ReadTree(w.History.Trees, w.History.Blobs, treeID, 2)
	if err != nil {
		return nil, false, err
	}
	return entryMap(idx.Entries), true, nil
}

func (w *Worktree) checkoutConflicts(p string, headEntries, indexEntries map[string]index.Entry) bool {
	idxEntry, hasIdx := indexEntries[p]
	headEntry, hasHead := headEntries[p]

	if !hasIdx {
		return hasHead
	}

	whash, err := w.ComputeHash(p)
	if err != nil || whash != idxEntry.ID {
		return true
	}
	if !hasHead {
		return true
	}
	return !sameBlob(idxEntry, headEntry)
}

func (w *Worktree) updateHead(target CheckoutTarget) error {
	if target.Branch != "" {
		branch := refs.NewHashReference(target.Branch, target.CommitID)
		if err := w.History.Refs.SetReference(branch, nil); err != nil {
			return err
		}
		return w.History.Refs.SetReference(refs.NewSymbolicReference(refs.HEAD, target.Branch), nil)
	}
	return w.History.Refs.SetReference(refs.NewHashReference(refs.HEAD, target.CommitID), nil)
}

func entryMap(entries []index.Entry) map[string]index.Entry {
	m := make(map[string]index.Entry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

func sameBlob(a, b index.Entry) bool {
	return a.ID == b.ID && a.Mode == b.Mode
}

func inScope(p string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
