package pack

import (
	"container/list"
	"sync"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack/idx"
)

// LooseLoader is the minimal surface Directory needs from a loose
// object store to serve as the last-resort fallback for a REF_DELTA
// base that isn't in any registered pack: same pack first, then any
// other pack in the directory, then loose.
type LooseLoader interface {
	Load(id codec.ID) ([]byte, error)
}

// Directory composes every pack in a repository into one read-only
// lookup surface: it keeps an LRU of open *Reader values bounded by
// maxOpen so a repository with many packs doesn't hold every pack's
// bytes resident at once, while FindPack/AddPack/RemovePack let the
// owning storage layer (rawstore's Overlay, or GC repack) manage
// which packs exist.
type Directory struct {
	mu      sync.Mutex
	maxOpen int
	readers map[codec.ID]*Reader // keyed by pack checksum
	lru     *list.List
	elems   map[codec.ID]*list.Element
	loose   LooseLoader
}

// NewDirectory returns an empty Directory. maxOpen bounds how many
// pack readers are kept resident; 0 means unbounded.
func NewDirectory(maxOpen int) *Directory {
	return &Directory{
		maxOpen: maxOpen,
		readers: make(map[codec.ID]*Reader),
		lru:     list.New(),
		elems:   make(map[codec.ID]*list.Element),
	}
}

// SetLooseFallback wires loose as the store a REF_DELTA base is
// resolved against once every pack in d has been tried and missed.
func (d *Directory) SetLooseFallback(loose LooseLoader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loose = loose
}

// AddPack registers a pack's bytes and parsed index under checksum.
// The new pack's reader resolves REF_DELTA bases it doesn't contain
// through d itself, so a thin pack's base can live in any other pack
// already in the directory, or in loose storage.
func (d *Directory) AddPack(checksum codec.ID, data []byte, index *idx.Index) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := NewReader(data, index)
	r.SetFallback(d)
	d.readers[checksum] = r
	d.touch(checksum)
	d.evictIfNeeded()
}

// RemovePack drops a pack from the directory, e.g. after it has been
// superseded by a repack.
func (d *Directory) RemovePack(checksum codec.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.readers, checksum)
	if el, ok := d.elems[checksum]; ok {
		d.lru.Remove(el)
		delete(d.elems, checksum)
	}
}

// Packs returns the checksums of every currently registered pack.
func (d *Directory) Packs() []codec.ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]codec.ID, 0, len(d.readers))
	for id := range d.readers {
		out = append(out, id)
	}
	return out
}

// FindPack returns the pack (and its reader) that contains id, if any.
func (d *Directory) FindPack(id codec.ID) (checksum codec.ID, reader *Reader, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for packChecksum, r := range d.readers {
		if r.Has(id) {
			d.touch(packChecksum)
			return packChecksum, r, true
		}
	}
	return codec.ID{}, nil, false
}

func (d *Directory) touch(checksum codec.ID) {
	if el, ok := d.elems[checksum]; ok {
		d.lru.MoveToFront(el)
		return
	}
	d.elems[checksum] = d.lru.PushFront(checksum)
}

func (d *Directory) evictIfNeeded() {
	if d.maxOpen <= 0 {
		return
	}
	for d.lru.Len() > d.maxOpen {
		oldest := d.lru.Back()
		if oldest == nil {
			return
		}
		checksum := oldest.Value.(codec.ID)
		d.lru.Remove(oldest)
		delete(d.elems, checksum)
		delete(d.readers, checksum)
	}
}

// Load satisfies rawstore.Store: it returns the canonical
// "type size\0payload" encoding of id, reconstructed from whichever
// pack contains it.
func (d *Directory) Load(id codec.ID) ([]byte, error) {
	typ, payload, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	return object.Encode(typ, payload), nil
}

// Get satisfies pack.BaseResolver: it resolves id against every pack
// currently registered in d and, failing that, against d's loose
// fallback (if set). A *Reader created by AddPack has its fallback
// wired to d, so a REF_DELTA base missing from its own pack is
// resolved this way: any other pack in the directory, then loose.
func (d *Directory) Get(id codec.ID) (object.Type, []byte, error) {
	if _, r, ok := d.FindPack(id); ok {
		return r.Get(id)
	}

	d.mu.Lock()
	loose := d.loose
	d.mu.Unlock()
	if loose == nil {
		return object.InvalidType, nil, ErrObjectNotFound
	}

	encoded, err := loose.Load(id)
	if err != nil {
		return object.InvalidType, nil, err
	}
	return object.DecodeBytes(encoded)
}

// Has satisfies rawstore.Store.
func (d *Directory) Has(id codec.ID) (bool, error) {
	_, _, ok := d.FindPack(id)
	return ok, nil
}

// Store satisfies rawstore.Store but always fails: packs are
// immutable and only ever produced wholesale by Write plus a repack
// (component L), never mutated object-by-object.
func (d *Directory) Store(codec.ID, []byte) error {
	return errImmutable
}

// Remove satisfies rawstore.Store; see Store.
func (d *Directory) Remove(codec.ID) error {
	return errImmutable
}

// Keys satisfies rawstore.Store, enumerating every object across
// every currently registered pack.
func (d *Directory) Keys() ([]codec.ID, error) {
	d.mu.Lock()
	readers := make([]*Reader, 0, len(d.readers))
	for _, r := range d.readers {
		readers = append(readers, r)
	}
	d.mu.Unlock()

	var ids []codec.ID
	for _, r := range readers {
		for _, e := range r.idx.Entries() {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

var errImmutable = immutableError{}

type immutableError struct{}

func (immutableError) Error() string {
	return "pack: packed objects are immutable; write a new pack instead"
}
