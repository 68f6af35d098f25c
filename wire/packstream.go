package wire

import (
	"fmt"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack"
)

// BasePackEntry is a non-delta entry read off an incoming pack
// stream, already resolved to its object type.
type BasePackEntry struct {
	Offset  int64
	Type    object.Type
	Payload []byte
}

// DeltaPackEntry is a delta entry read off an incoming pack stream.
// Exactly one of BaseOffset (OFS_DELTA: the base's stream position,
// Offset minus the encoded distance) or BaseID (REF_DELTA) is set.
type DeltaPackEntry struct {
	Offset     int64
	BaseOffset int64
	BaseID     codec.ID
	Payload    []byte // delta instruction bytes, not yet applied
}

// ErrUnsupportedEntry is returned for a pack entry header naming a
// type byte this stream reader doesn't understand.
var ErrUnsupportedEntry = fmt.Errorf("wire: unsupported pack entry type")

func entryObjectType(e pack.EntryType) (object.Type, bool) {
	switch e {
	case pack.CommitEntry:
		return object.CommitType, true
	case pack.TreeEntry:
		return object.TreeType, true
	case pack.BlobEntry:
		return object.BlobType, true
	case pack.TagEntry:
		return object.TagType, true
	default:
		return object.InvalidType, false
	}
}

// ReadHeader reads the 12-byte pack stream header (signature, version,
// object count) that precedes the entry stream.
func ReadHeader(r *BoundedReader) (version uint32, count uint32, err error) {
	sig, err := r.ReadExact(4)
	if err != nil {
		return 0, 0, err
	}
	if string(sig) != "PACK" {
		return 0, 0, fmt.Errorf("wire: bad pack signature %q", sig)
	}
	vb, err := r.ReadExact(4)
	if err != nil {
		return 0, 0, err
	}
	cb, err := r.ReadExact(4)
	if err != nil {
		return 0, 0, err
	}
	version = be32(vb)
	count = be32(cb)
	return version, count, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ReadEntry reads one pack entry starting at the stream's current
// position, returning either a *BasePackEntry or a *DeltaPackEntry.
func ReadEntry(r *BoundedReader) (interface{}, error) {
	offset := r.Pos()

	typ, size, err := codec.ReadPackObjectHeader(r)
	if err != nil {
		return nil, err
	}
	entryType := pack.EntryType(typ)

	switch entryType {
	case pack.OFSDeltaEntry:
		rel, err := codec.ReadOFSDeltaOffset(r)
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadCompressed(int(size))
		if err != nil {
			return nil, err
		}
		return &DeltaPackEntry{Offset: offset, BaseOffset: offset - rel, Payload: payload}, nil

	case pack.REFDeltaEntry:
		baseBytes, err := r.ReadExact(codec.Size)
		if err != nil {
			return nil, err
		}
		var baseID codec.ID
		copy(baseID[:], baseBytes)
		payload, err := r.ReadCompressed(int(size))
		if err != nil {
			return nil, err
		}
		return &DeltaPackEntry{Offset: offset, BaseID: baseID, Payload: payload}, nil

	default:
		objType, ok := entryObjectType(entryType)
		if !ok {
			return nil, ErrUnsupportedEntry
		}
		payload, err := r.ReadCompressed(int(size))
		if err != nil {
			return nil, err
		}
		return &BasePackEntry{Offset: offset, Type: objType, Payload: payload}, nil
	}
}
