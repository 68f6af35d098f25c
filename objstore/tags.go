package objstore

import (
	"errors"
	"fmt"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
)

// maxPeelDepth bounds tag-to-tag peel chains against a maliciously or
// accidentally cyclic history.
const maxPeelDepth = 100

// ErrPeelTooDeep is returned when GetTarget's peel chain exceeds
// maxPeelDepth without reaching a non-tag object.
var ErrPeelTooDeep = errors.New("objstore: tag peel chain too deep")

// Tags is the typed façade over annotated tag objects.
type Tags struct{ s *Store }

// NewTags returns a Tags façade over raw.
func NewTags(raw *Store) *Tags { return &Tags{s: raw} }

// Store encodes and persists a tag, returning its ID.
func (t *Tags) Store(tag *object.Tag) (codec.ID, error) {
	payload, err := tag.Encode()
	if err != nil {
		return codec.ID{}, err
	}
	return t.s.store(object.TagType, payload)
}

// Load decodes a tag.
func (t *Tags) Load(id codec.ID) (*object.Tag, error) {
	payload, err := t.s.load(id, object.TagType)
	if err != nil {
		return nil, err
	}
	return object.DecodeTag(payload)
}

// GetTarget returns the object a tag points at. If peel is true and the
// target is itself a tag, the chain is followed until a non-tag object
// is reached (or maxPeelDepth is exceeded).
func (t *Tags) GetTarget(id codec.ID, peel bool) (codec.ID, object.Type, error) {
	tag, err := t.Load(id)
	if err != nil {
		return codec.ID{}, 0, err
	}

	target, typ := tag.Object, tag.ObjectType
	if !peel {
		return target, typ, nil
	}

	for depth := 0; typ == object.TagType; depth++ {
		if depth >= maxPeelDepth {
			return codec.ID{}, 0, fmt.Errorf("%w: %s", ErrPeelTooDeep, id)
		}
		next, err := t.Load(target)
		if err != nil {
			return codec.ID{}, 0, err
		}
		target, typ = next.Object, next.ObjectType
	}
	return target, typ, nil
}

// Has reports whether id is a known tag.
func (t *Tags) Has(id codec.ID) (bool, error) { return t.s.has(id) }

// Remove deletes a tag's raw storage entry.
func (t *Tags) Remove(id codec.ID) error { return t.s.remove(id) }

// Keys enumerates every tag ID in the store.
func (t *Tags) Keys() ([]codec.ID, error) { return t.s.keysOfType(object.TagType) }
