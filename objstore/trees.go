package objstore

import (
	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
)

// Trees is the typed façade over tree objects.
type Trees struct{ s *Store }

// NewTrees returns a Trees façade over raw.
func NewTrees(raw *Store) *Trees { return &Trees{s: raw} }

// Store encodes and persists a tree, returning its ID. entries need
// not be pre-sorted; object.Tree.Encode sorts a copy.
func (t *Trees) Store(entries []object.TreeEntry) (codec.ID, error) {
	tr := &object.Tree{Entries: entries}
	payload, err := tr.Encode()
	if err != nil {
		return codec.ID{}, err
	}
	return t.s.store(object.TreeType, payload)
}

// Load returns a tree's entries, in canonical (sorted) order.
func (t *Trees) Load(id codec.ID) (*object.Tree, error) {
	payload, err := t.s.load(id, object.TreeType)
	if err != nil {
		return nil, err
	}
	return object.DecodeTree(payload)
}

// GetEntry looks up a single named entry without requiring the
// caller to decode the whole tree first (it still does so
// internally; there is no per-entry index on disk).
func (t *Trees) GetEntry(id codec.ID, name string) (object.TreeEntry, bool, error) {
	tr, err := t.Load(id)
	if err != nil {
		return object.TreeEntry{}, false, err
	}
	e, ok := tr.Find(name)
	return e, ok, nil
}

// Has reports whether id is a known tree.
func (t *Trees) Has(id codec.ID) (bool, error) { return t.s.has(id) }

// Remove deletes a tree's raw storage entry.
func (t *Trees) Remove(id codec.ID) error { return t.s.remove(id) }

// Keys enumerates every tree ID in the store.
func (t *Trees) Keys() ([]codec.ID, error) { return t.s.keysOfType(object.TreeType) }
