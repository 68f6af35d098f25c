// Package pack implements Git's pack v2 wire/on-disk format: writing
// an ordered set of objects (optionally as OFS_DELTA entries) into a
// single file plus its pack-index side file, and reading objects back
// by ID or by offset, resolving delta chains on demand.
package pack

import (
	"fmt"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
)

// signature is the 4-byte magic that opens every pack file.
var signature = [4]byte{'P', 'A', 'C', 'K'}

const version = 2

// EntryType mirrors the 3-bit type tag used in a pack entry header;
// it extends object.Type with the two delta kinds, which never appear
// as a stored object's own Type.
type EntryType byte

const (
	_ EntryType = iota
	CommitEntry
	TreeEntry
	BlobEntry
	TagEntry
	_ // 5 is reserved
	OFSDeltaEntry
	REFDeltaEntry
)

func entryTypeFor(t object.Type) EntryType {
	switch t {
	case object.CommitType:
		return CommitEntry
	case object.TreeType:
		return TreeEntry
	case object.BlobType:
		return BlobEntry
	case object.TagType:
		return TagEntry
	default:
		return 0
	}
}

func (e EntryType) objectType() object.Type {
	switch e {
	case CommitEntry:
		return object.CommitType
	case TreeEntry:
		return object.TreeType
	case BlobEntry:
		return object.BlobType
	case TagEntry:
		return object.TagType
	default:
		return object.InvalidType
	}
}

func (e EntryType) isDelta() bool {
	return e == OFSDeltaEntry || e == REFDeltaEntry
}

func invalidMagic(got [4]byte) error {
	return fmt.Errorf("pack: invalid magic %q, expected \"PACK\"", got)
}

// checksumOf computes the trailing pack checksum (SHA-1 of everything
// preceding it), the same hash algorithm used for object IDs.
func checksumOf(b []byte) codec.ID {
	return codec.Sum(b)
}
