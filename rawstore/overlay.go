package rawstore

import (
	"github.com/statewalker/vcs-sub012/codec"
)

// Overlay composes a mutable store (typically Loose, sometimes Memory
// for a purely in-memory repository) with a read-only packed layer.
// Writes and removals always go to the mutable layer; reads check the
// mutable layer first, then fall back to packed. This mirrors the
// teacher's ObjectStorage.EncodedObject: unpacked objects shadow
// packed ones of the same ID, which matters during a repack when an
// object briefly exists in both places.
type Overlay struct {
	mutable Store
	packed  Store
}

// NewOverlay returns a Store that reads from packed only when id is
// absent from mutable.
func NewOverlay(mutable, packed Store) *Overlay {
	return &Overlay{mutable: mutable, packed: packed}
}

func (o *Overlay) Store(id codec.ID, encoded []byte) error {
	return o.mutable.Store(id, encoded)
}

func (o *Overlay) Load(id codec.ID) ([]byte, error) {
	if ok, err := o.mutable.Has(id); err != nil {
		return nil, err
	} else if ok {
		return o.mutable.Load(id)
	}
	return o.packed.Load(id)
}

func (o *Overlay) Has(id codec.ID) (bool, error) {
	if ok, err := o.mutable.Has(id); err != nil || ok {
		return ok, err
	}
	return o.packed.Has(id)
}

// Remove deletes id from the mutable layer only; packed objects are
// removed exclusively through repacking/GC (component L), never by
// targeted deletion, since a pack is a single immutable file shared
// by many objects.
func (o *Overlay) Remove(id codec.ID) error {
	return o.mutable.Remove(id)
}

func (o *Overlay) Keys() ([]codec.ID, error) {
	mutableIDs, err := o.mutable.Keys()
	if err != nil {
		return nil, err
	}
	packedIDs, err := o.packed.Keys()
	if err != nil {
		return nil, err
	}

	seen := make(map[codec.ID]struct{}, len(mutableIDs))
	out := make([]codec.ID, 0, len(mutableIDs)+len(packedIDs))
	for _, id := range mutableIDs {
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range packedIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
