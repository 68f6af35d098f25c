package pack

import (
	"encoding/binary"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/delta"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack/idx"
)

// Source is one object to be written into a pack. If HasDelta is set,
// Payload is the target's plaintext bytes and the writer encodes it as
// an OFS_DELTA against the earlier source whose ID is DeltaBase (bases
// must be written before the objects deltified against them).
type Source struct {
	ID        codec.ID
	Type      object.Type
	Payload   []byte
	DeltaBase codec.ID
	HasDelta  bool
}

// Write serializes sources into Git's pack v2 format, returning the
// raw pack bytes and an Index ready to be encoded alongside it. The
// caller is responsible for ordering sources so that a delta's base
// precedes it (required for OFS_DELTA, whose offset reference is
// always backward).
func Write(sources []Source) ([]byte, *idx.Index, error) {
	buf := make([]byte, 0, 4+4+4)
	buf = append(buf, signature[:]...)
	buf = appendUint32(buf, version)
	buf = appendUint32(buf, uint32(len(sources)))

	offsetOf := make(map[codec.ID]int64, len(sources))
	entries := make([]idx.Entry, 0, len(sources))

	for _, src := range sources {
		offset := int64(len(buf))
		offsetOf[src.ID] = offset

		payload := src.Payload
		entryType := entryTypeFor(src.Type)

		var header []byte
		if src.HasDelta {
			baseOffset, ok := offsetOf[src.DeltaBase]
			if !ok {
				return nil, nil, invalidBaseOrder(src.ID)
			}
			deltaBytes, baseBytes, err := deltaAgainst(src, baseOffset, sources, offsetOf)
			if err != nil {
				return nil, nil, err
			}
			_ = baseBytes
			header = codec.PackObjectHeader(byte(OFSDeltaEntry), uint64(len(deltaBytes)))
			header = append(header, codec.WriteOFSDeltaOffset(offset-baseOffset)...)
			payload = deltaBytes
		} else {
			header = codec.PackObjectHeader(byte(entryType), uint64(len(payload)))
		}

		start := len(buf)
		buf = append(buf, header...)
		compressed := codec.Deflate(payload)
		buf = append(buf, compressed...)

		entries = append(entries, idx.Entry{
			ID:     src.ID,
			Offset: uint64(offset),
			CRC32:  codec.CRC32(buf[start:]),
		})
	}

	checksum := checksumOf(buf)
	buf = append(buf, checksum[:]...)

	index := idx.New(checksum, entries)
	return buf, index, nil
}

// deltaAgainst looks up the already-written base's plaintext payload
// (from the sources slice, by ID) and computes the delta bytes.
func deltaAgainst(src Source, baseOffset int64, sources []Source, offsetOf map[codec.ID]int64) (deltaBytes, basePayload []byte, err error) {
	for _, s := range sources {
		if s.ID == src.DeltaBase {
			return delta.Encode(s.Payload, src.Payload), s.Payload, nil
		}
	}
	return nil, nil, invalidBaseOrder(src.ID)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func invalidBaseOrder(id codec.ID) error {
	return &writeError{id: id}
}

type writeError struct{ id codec.ID }

func (e *writeError) Error() string {
	return "pack: delta base for " + e.id.String() + " not found among prior sources"
}
