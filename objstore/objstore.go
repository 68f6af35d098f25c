// Package objstore layers typed façades (Blobs, Trees, Commits, Tags)
// over the raw byte-stream store, handling canonical object encoding
// and the graph operations (ancestry walk, merge-base, tag peeling)
// that only make sense once bytes are interpreted as a given kind.
package objstore

import (
	"errors"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/rawstore"
)

// ErrNotFound mirrors spec's "not-found returns undefined/null, never
// raises" rule at the Go level: Load returns (nil, ErrNotFound) rather
// than a typed zero value, so callers can branch on errors.Is.
var ErrNotFound = rawstore.ErrNotFound

// ErrWrongType is returned when an ID resolves to an object of a
// different kind than the façade that looked it up.
var ErrWrongType = errors.New("objstore: object has unexpected type")

// Store is the shared plumbing behind every typed façade: encode,
// hash, and delegate to the underlying raw store.
type Store struct {
	raw rawstore.Store
}

// New wraps raw in the shared encode/hash plumbing used by every
// façade constructor below.
func New(raw rawstore.Store) *Store {
	return &Store{raw: raw}
}

func (s *Store) store(t object.Type, payload []byte) (codec.ID, error) {
	id := object.Hash(t, payload)
	if err := s.raw.Store(id, object.Encode(t, payload)); err != nil {
		return codec.ID{}, err
	}
	return id, nil
}

// load returns the decoded payload for id, verifying its type matches want.
func (s *Store) load(id codec.ID, want object.Type) ([]byte, error) {
	encoded, err := s.raw.Load(id)
	if err != nil {
		if errors.Is(err, rawstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	typ, payload, err := object.DecodeBytes(encoded)
	if err != nil {
		return nil, err
	}
	if typ != want {
		return nil, ErrWrongType
	}
	return payload, nil
}

func (s *Store) has(id codec.ID) (bool, error) {
	return s.raw.Has(id)
}

func (s *Store) remove(id codec.ID) error {
	return s.raw.Remove(id)
}

func (s *Store) keysOfType(want object.Type) ([]codec.ID, error) {
	all, err := s.raw.Keys()
	if err != nil {
		return nil, err
	}

	var out []codec.ID
	for _, id := range all {
		encoded, err := s.raw.Load(id)
		if err != nil {
			continue
		}
		typ, _, err := object.DecodeBytes(encoded)
		if err != nil {
			continue
		}
		if typ == want {
			out = append(out, id)
		}
	}
	return out, nil
}
