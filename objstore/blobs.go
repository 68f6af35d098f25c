package objstore

import (
	"bytes"
	"io"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
)

// Blobs is the typed façade over blob objects.
type Blobs struct{ s *Store }

// NewBlobs returns a Blobs façade over raw.
func NewBlobs(raw *Store) *Blobs { return &Blobs{s: raw} }

// Store content-addresses and persists content, returning its ID.
func (b *Blobs) Store(content []byte) (codec.ID, error) {
	return b.s.store(object.BlobType, content)
}

// Load returns a blob's full content.
func (b *Blobs) Load(id codec.ID) ([]byte, error) {
	return b.s.load(id, object.BlobType)
}

// LoadStream returns a reader over a blob's content, for callers that
// don't want the whole object buffered at once.
func (b *Blobs) LoadStream(id codec.ID) (io.ReadCloser, error) {
	content, err := b.Load(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Size returns a blob's content length without the caller needing to
// hold the whole payload; implemented here via Load since the raw
// layer doesn't expose a streaming-size primitive, but kept as its
// own method so callers that only need size don't need a type
// assertion.
func (b *Blobs) Size(id codec.ID) (int, error) {
	content, err := b.Load(id)
	if err != nil {
		return 0, err
	}
	return len(content), nil
}

// Has reports whether id is a known blob.
func (b *Blobs) Has(id codec.ID) (bool, error) { return b.s.has(id) }

// Remove deletes a blob's raw storage entry.
func (b *Blobs) Remove(id codec.ID) error { return b.s.remove(id) }

// Keys enumerates every blob ID in the store.
func (b *Blobs) Keys() ([]codec.ID, error) { return b.s.keysOfType(object.BlobType) }
