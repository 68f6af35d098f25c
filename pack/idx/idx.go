// Package idx implements the pack-index v2 format: a sorted-by-ID
// side file that lets a reader locate any object in a pack without
// scanning it, via a 256-entry fanout table plus a binary search over
// the sorted ID block.
package idx

import (
	"fmt"
	"sort"

	"github.com/statewalker/vcs-sub012/codec"
)

// fanoutSize is the number of leading-byte buckets; Git's format
// fixes this at 256 (one per possible first ID byte).
const fanoutSize = 256

// offset64Flag marks a 32-bit offset slot in the index that really
// holds an index into the 64-bit overflow table, for packs larger
// than 2 GiB.
const offset64Flag = 1 << 31

// Entry is one (ID, pack offset, CRC32) record.
type Entry struct {
	ID     codec.ID
	Offset uint64
	CRC32  uint32
}

// Index is the decoded, queryable form of a .idx file.
type Index struct {
	PackChecksum codec.ID
	entries      []Entry // sorted by ID
	fanout       [fanoutSize]uint32
}

// New builds an Index from an unsorted slice of entries, computing
// the fanout table over the result.
func New(packChecksum codec.ID, entries []Entry) *Index {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Compare(sorted[j].ID) < 0 })

	idx := &Index{PackChecksum: packChecksum, entries: sorted}
	idx.buildFanout()
	return idx
}

func (idx *Index) buildFanout() {
	var b int
	for i, e := range idx.entries {
		for int(e.ID[0]) > b {
			idx.fanout[b] = uint32(i)
			b++
		}
	}
	for ; b < fanoutSize; b++ {
		idx.fanout[b] = uint32(len(idx.entries))
	}
}

// Len returns the number of objects indexed.
func (idx *Index) Len() int { return len(idx.entries) }

// Entries returns the sorted entry slice. Callers must not mutate it.
func (idx *Index) Entries() []Entry { return idx.entries }

// FindOffset returns the pack offset of id, or ok=false if absent.
func (idx *Index) FindOffset(id codec.ID) (offset uint64, ok bool) {
	lo, hi := idx.bucketRange(id[0])
	i := sort.Search(hi-lo, func(i int) bool {
		return idx.entries[lo+i].ID.Compare(id) >= 0
	})
	if lo+i < hi && idx.entries[lo+i].ID == id {
		return idx.entries[lo+i].Offset, true
	}
	return 0, false
}

// FindCRC32 returns the stored CRC32 of id's compressed pack entry.
func (idx *Index) FindCRC32(id codec.ID) (crc uint32, ok bool) {
	lo, hi := idx.bucketRange(id[0])
	i := sort.Search(hi-lo, func(i int) bool {
		return idx.entries[lo+i].ID.Compare(id) >= 0
	})
	if lo+i < hi && idx.entries[lo+i].ID == id {
		return idx.entries[lo+i].CRC32, true
	}
	return 0, false
}

// FindID returns the ID stored at the given pack offset, the reverse
// of FindOffset; used when resolving an OFS_DELTA base's ID for
// caching/base-lookup purposes.
func (idx *Index) FindID(offset uint64) (codec.ID, bool) {
	for _, e := range idx.entries {
		if e.Offset == offset {
			return e.ID, true
		}
	}
	return codec.ID{}, false
}

func (idx *Index) bucketRange(b byte) (lo, hi int) {
	lo = 0
	if b > 0 {
		lo = int(idx.fanout[b-1])
	}
	hi = int(idx.fanout[b])
	return lo, hi
}

// Contains reports whether id is present in the index.
func (idx *Index) Contains(id codec.ID) bool {
	_, ok := idx.FindOffset(id)
	return ok
}

func invalidMagic(got [4]byte) error {
	return fmt.Errorf("idx: invalid magic %x, expected pack index v2 header", got)
}
