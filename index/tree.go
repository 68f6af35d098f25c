package index

import (
	"errors"
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/objstore"
)

// ErrConflicts is returned by WriteTree when the index has unresolved
// (non-Merged-stage) entries.
var ErrConflicts = errors.New("index: cannot write tree while conflicts exist")

// ReadTree recursively expands treeID into stage-0 entries at their
// full paths, replacing the current index contents wholesale. Blob
// sizes are looked up through blobs so entries carry accurate Size
// metadata without the caller needing to decompress content itself.
func ReadTree(trees *objstore.Trees, blobs *objstore.Blobs, treeID codec.ID, version uint32) (*Index, error) {
	b := NewBuilder(version)

	root, err := trees.Load(treeID)
	if err != nil {
		return nil, err
	}
	sizeOf := func(id codec.ID) (uint32, error) {
		n, err := blobs.Size(id)
		return uint32(n), err
	}
	if err := b.AddTree(root, trees.Load, "", Merged, sizeOf); err != nil {
		return nil, err
	}
	return b.Finish()
}

// WriteTree folds the index's stage-0 entries into nested trees,
// grouping by longest common directory and calling store bottom-up,
// returning the resulting root tree ID. It rejects the operation if
// any path is still conflicted.
func WriteTree(idx *Index, store func(entries []object.TreeEntry) (codec.ID, error)) (codec.ID, error) {
	if idx.HasConflicts() {
		return codec.ID{}, ErrConflicts
	}

	type dirNode struct {
		files    []object.TreeEntry
		children map[string]*dirNode
	}
	newNode := func() *dirNode { return &dirNode{children: map[string]*dirNode{}} }
	root := newNode()

	for _, e := range idx.Entries {
		parts := strings.Split(e.Path, "/")
		dir := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := dir.children[part]
			if !ok {
				next = newNode()
				dir.children[part] = next
			}
			dir = next
		}
		name := parts[len(parts)-1]
		dir.files = append(dir.files, object.TreeEntry{Name: name, Mode: e.Mode, ID: e.ID})
	}

	var fold func(n *dirNode) (codec.ID, error)
	fold = func(n *dirNode) (codec.ID, error) {
		entries := make([]object.TreeEntry, 0, len(n.files)+len(n.children))
		entries = append(entries, n.files...)

		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			childID, err := fold(n.children[name])
			if err != nil {
				return codec.ID{}, err
			}
			entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, ID: childID})
		}

		return store(entries)
	}

	return fold(root)
}
