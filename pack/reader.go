package pack

import (
	"errors"
	"fmt"
	"sync"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/delta"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack/idx"
)

// ErrObjectNotFound is returned when an ID has no entry in the pack's index.
var ErrObjectNotFound = errors.New("pack: object not found")

// ErrCorrupt is returned for malformed pack bytes (bad signature,
// unsupported version, truncated entry).
var ErrCorrupt = errors.New("pack: corrupt pack data")

// maxDeltaDepth bounds delta-chain resolution to guard against a
// corrupt pack with a cyclic OFS_DELTA/REF_DELTA reference graph.
const maxDeltaDepth = 200

// BaseResolver looks up a decoded object by ID outside this pack, for
// a REF_DELTA base that is not self-contained: a thin pack only
// carries a delta against a base that lives in another pack already in
// the repository, or in loose storage.
type BaseResolver interface {
	Get(id codec.ID) (object.Type, []byte, error)
}

// Reader provides random access into a single pack file's objects,
// resolving OFS_DELTA/REF_DELTA chains as needed. It is safe for
// concurrent use.
type Reader struct {
	data []byte
	idx  *idx.Index

	mu        sync.Mutex
	baseCache map[int64]cachedBase // offset -> resolved (type, payload)
	fallback  BaseResolver
}

// SetFallback wires r to resolve REF_DELTA bases it doesn't contain
// through resolver, e.g. the pack.Directory the pack belongs to (which
// in turn may fall back to loose storage). A Reader with no fallback
// only resolves REF_DELTA bases present in its own pack.
func (r *Reader) SetFallback(resolver BaseResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = resolver
}

type cachedBase struct {
	typ     object.Type
	payload []byte
}

// NewReader wraps pack bytes (including its trailing checksum) and
// its parsed index.
func NewReader(data []byte, index *idx.Index) *Reader {
	return &Reader{data: data, idx: index, baseCache: make(map[int64]cachedBase)}
}

// Get resolves id to its (type, plaintext payload), following any
// delta chain to completion.
func (r *Reader) Get(id codec.ID) (object.Type, []byte, error) {
	offset, ok := r.idx.FindOffset(id)
	if !ok {
		return object.InvalidType, nil, ErrObjectNotFound
	}
	return r.GetByOffset(int64(offset))
}

// GetByOffset resolves the object entry starting at offset.
func (r *Reader) GetByOffset(offset int64) (object.Type, []byte, error) {
	return r.resolve(offset, 0)
}

// Has reports whether id has an entry in this pack.
func (r *Reader) Has(id codec.ID) bool {
	return r.idx.Contains(id)
}

func (r *Reader) resolve(offset int64, depth int) (object.Type, []byte, error) {
	if depth > maxDeltaDepth {
		return object.InvalidType, nil, fmt.Errorf("pack: delta chain exceeds %d: %w", maxDeltaDepth, ErrCorrupt)
	}

	r.mu.Lock()
	if cached, ok := r.baseCache[offset]; ok {
		r.mu.Unlock()
		return cached.typ, cached.payload, nil
	}
	r.mu.Unlock()

	entryType, size, payloadOffset, baseOffset, baseID, err := r.readEntryHeader(offset)
	if err != nil {
		return object.InvalidType, nil, err
	}

	compressed := r.data[payloadOffset:]
	decompressed, _, err := codec.DecompressPartial(compressed, size)
	if err != nil {
		return object.InvalidType, nil, fmt.Errorf("pack: inflating entry at %d: %w: %v", offset, ErrCorrupt, err)
	}

	var typ object.Type
	var payload []byte

	switch {
	case entryType == OFSDeltaEntry:
		baseType, basePayload, err := r.resolve(baseOffset, depth+1)
		if err != nil {
			return object.InvalidType, nil, err
		}
		payload, err = delta.Apply(basePayload, decompressed)
		if err != nil {
			return object.InvalidType, nil, fmt.Errorf("pack: applying delta at %d: %w", offset, err)
		}
		typ = baseType

	case entryType == REFDeltaEntry:
		var baseType object.Type
		var basePayload []byte
		if baseOff, ok := r.idx.FindOffset(baseID); ok {
			baseType, basePayload, err = r.resolve(int64(baseOff), depth+1)
			if err != nil {
				return object.InvalidType, nil, err
			}
		} else {
			r.mu.Lock()
			fallback := r.fallback
			r.mu.Unlock()
			if fallback == nil {
				return object.InvalidType, nil, fmt.Errorf("pack: ref delta base %s not in pack: %w", baseID, ErrObjectNotFound)
			}
			baseType, basePayload, err = fallback.Get(baseID)
			if err != nil {
				return object.InvalidType, nil, fmt.Errorf("pack: ref delta base %s: %w", baseID, err)
			}
		}
		payload, err = delta.Apply(basePayload, decompressed)
		if err != nil {
			return object.InvalidType, nil, fmt.Errorf("pack: applying delta at %d: %w", offset, err)
		}
		typ = baseType

	default:
		typ = entryType.objectType()
		payload = decompressed
	}

	r.mu.Lock()
	r.baseCache[offset] = cachedBase{typ: typ, payload: payload}
	r.mu.Unlock()

	return typ, payload, nil
}

// byteCounter is an io.ByteReader over a byte slice that tracks how
// many bytes have been consumed, so the exact header length is known
// without guessing at bufio's internal buffering.
type byteCounter struct {
	b []byte
	n int
}

func (c *byteCounter) ReadByte() (byte, error) {
	if c.n >= len(c.b) {
		return 0, fmt.Errorf("pack: %w: header runs past end of data", ErrCorrupt)
	}
	b := c.b[c.n]
	c.n++
	return b, nil
}

// readEntryHeader parses the varint (type, size) header at offset and
// any delta reference that follows it, returning the byte offset
// where the compressed payload begins.
func (r *Reader) readEntryHeader(offset int64) (entryType EntryType, size int, payloadOffset int64, baseOffset int64, baseID codec.ID, err error) {
	bc := &byteCounter{b: r.data[offset:]}

	typ, sz, err := codec.ReadPackObjectHeader(bc)
	if err != nil {
		return 0, 0, 0, 0, codec.ID{}, fmt.Errorf("pack: reading entry header at %d: %w", offset, ErrCorrupt)
	}
	entryType = EntryType(typ)
	size = int(sz)

	switch entryType {
	case OFSDeltaEntry:
		rel, err := codec.ReadOFSDeltaOffset(bc)
		if err != nil {
			return 0, 0, 0, 0, codec.ID{}, fmt.Errorf("pack: reading OFS_DELTA offset at %d: %w", offset, ErrCorrupt)
		}
		baseOffset = offset - rel
	case REFDeltaEntry:
		if len(bc.b) < bc.n+codec.Size {
			return 0, 0, 0, 0, codec.ID{}, fmt.Errorf("pack: %w: truncated REF_DELTA base at %d", ErrCorrupt, offset)
		}
		copy(baseID[:], bc.b[bc.n:bc.n+codec.Size])
		bc.n += codec.Size
	}

	return entryType, size, offset + int64(bc.n), baseOffset, baseID, nil
}
