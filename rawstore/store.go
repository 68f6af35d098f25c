// Package rawstore implements the engine's raw storage layer: a
// keyed byte-stream store addressed by object ID, with a loose
// (one-file-per-object, billy-backed) implementation and an in-memory
// implementation for tests and transient staging, plus an overlay
// that composes a read-only pack-backed layer on top of either.
package rawstore

import (
	"errors"
	"io"

	"github.com/statewalker/vcs-sub012/codec"
)

// ErrNotFound is returned by Load when id is absent from the store.
var ErrNotFound = errors.New("rawstore: object not found")

// Store is a keyed byte-stream store. Stored values are the full
// canonical "type size\0payload" encoding produced by object.Encode;
// rawstore itself is agnostic to what the bytes mean, it only
// guarantees content-addressed round-tripping.
type Store interface {
	// Store writes encoded under id, replacing any existing value.
	Store(id codec.ID, encoded []byte) error
	// Load returns the bytes previously stored under id.
	Load(id codec.ID) ([]byte, error)
	// Has reports whether id is present without reading its payload.
	Has(id codec.ID) (bool, error)
	// Remove deletes id. Removing an absent id is not an error.
	Remove(id codec.ID) error
	// Keys enumerates every ID currently in the store.
	Keys() ([]codec.ID, error)
}

// ReadCloserStore is implemented by stores that can stream a value
// without buffering it whole, such as the loose store.
type ReadCloserStore interface {
	Store
	// LoadStream returns a reader for id's bytes; the caller must Close it.
	LoadStream(id codec.ID) (io.ReadCloser, error)
}
