package wire

import (
	"fmt"
	"io"
	"sync"

	billy "github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub012/object"
)

// cachedObject is an in-memory pack-stream object awaiting resolution
// (a delta still needs its base, or a base still needs an ID once the
// stream assigns one after the fact via REF_DELTA/OFS_DELTA lookups).
type cachedObject struct {
	typ     object.Type
	payload []byte
	spilled bool
	path    string
}

// PackObjectCache holds objects read from an incoming pack stream by
// their temporary stream offset, keyed the way receive-pack needs
// while it resolves OFS_DELTA/REF_DELTA chains before the objects can
// be hashed and committed to storage. Once in-memory usage crosses
// maxMemory, further Put calls spill their payload to FS instead of
// growing the resident set further, the same trade the pack
// directory's LRU (pack.Directory) makes for already-indexed packs.
type PackObjectCache struct {
	FS  billy.Filesystem
	Dir string

	mu        sync.Mutex
	objects   map[int64]*cachedObject
	resident  int64
	maxMemory int64
	seq       int
}

// NewPackObjectCache returns a cache that spills to dir on fs once
// resident payload bytes exceed maxMemory. A nil fs (or maxMemory <= 0)
// disables spilling; Put then always keeps payloads in memory.
func NewPackObjectCache(fs billy.Filesystem, dir string, maxMemory int64) *PackObjectCache {
	return &PackObjectCache{
		FS:        fs,
		Dir:       dir,
		objects:   make(map[int64]*cachedObject),
		maxMemory: maxMemory,
	}
}

// Put stores an object's resolved type and plaintext payload under
// offset (its position in the incoming stream).
func (c *PackObjectCache) Put(offset int64, typ object.Type, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj := &cachedObject{typ: typ}

	if c.FS == nil || c.maxMemory <= 0 || c.resident+int64(len(payload)) <= c.maxMemory {
		obj.payload = payload
		c.resident += int64(len(payload))
		c.objects[offset] = obj
		return nil
	}

	c.seq++
	path := c.FS.Join(c.Dir, fmt.Sprintf("obj-%d-%d", offset, c.seq))
	if err := c.FS.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	f, err := c.FS.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	obj.spilled = true
	obj.path = path
	c.objects[offset] = obj
	return nil
}

// Get returns the type and plaintext payload stored at offset.
func (c *PackObjectCache) Get(offset int64) (object.Type, []byte, error) {
	c.mu.Lock()
	obj, ok := c.objects[offset]
	c.mu.Unlock()
	if !ok {
		return object.InvalidType, nil, fmt.Errorf("wire: no cached object at offset %d", offset)
	}
	if !obj.spilled {
		return obj.typ, obj.payload, nil
	}

	f, err := c.FS.Open(obj.path)
	if err != nil {
		return object.InvalidType, nil, err
	}
	defer f.Close()

	info, err := c.FS.Stat(obj.path)
	if err != nil {
		return object.InvalidType, nil, err
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return object.InvalidType, nil, err
	}
	return obj.typ, buf, nil
}

// Close removes every spilled object's backing file.
func (c *PackObjectCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, obj := range c.objects {
		if obj.spilled {
			if err := c.FS.Remove(obj.path); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
