package idx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/statewalker/vcs-sub012/codec"
)

// magic is the 4-byte marker ("\377tOc") that distinguishes a v2+
// index from the magic-less v1 format (v1 is not produced or
// accepted by this engine).
var magic = [4]byte{0xff, 't', 'O', 'c'}

const version = 2

// Encode writes idx in pack-index v2 format to w, per spec 4.D:
// magic+version, 256-entry fanout, sorted ID block, parallel CRC32
// block, parallel 32-bit offset block (with a 64-bit overflow table
// for offsets at or above 2 GiB), then packfile checksum and trailing
// self-checksum.
func Encode(w io.Writer, idx *Index) error {
	h := codec.NewHasher()
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.BigEndian, uint32(version)); err != nil {
		return err
	}

	for _, c := range idx.fanout {
		if err := binary.Write(mw, binary.BigEndian, c); err != nil {
			return err
		}
	}

	for _, e := range idx.entries {
		if _, err := mw.Write(e.ID[:]); err != nil {
			return err
		}
	}

	for _, e := range idx.entries {
		if err := binary.Write(mw, binary.BigEndian, e.CRC32); err != nil {
			return err
		}
	}

	var overflow []uint64
	for _, e := range idx.entries {
		v := uint32(e.Offset)
		if e.Offset >= offset64Flag {
			v = uint32(offset64Flag | len(overflow))
			overflow = append(overflow, e.Offset)
		}
		if err := binary.Write(mw, binary.BigEndian, v); err != nil {
			return err
		}
	}
	for _, o := range overflow {
		if err := binary.Write(mw, binary.BigEndian, o); err != nil {
			return err
		}
	}

	if _, err := mw.Write(idx.PackChecksum[:]); err != nil {
		return err
	}

	sum := h.Sum(nil)
	_, err := w.Write(sum)
	return err
}

// Decode parses a pack-index v2 stream.
func Decode(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, err
	}
	if gotMagic != magic {
		return nil, invalidMagic(gotMagic)
	}

	var gotVersion uint32
	if err := binary.Read(br, binary.BigEndian, &gotVersion); err != nil {
		return nil, err
	}
	if gotVersion != version {
		return nil, fmt.Errorf("idx: unsupported index version %d", gotVersion)
	}

	var fanout [fanoutSize]uint32
	for i := range fanout {
		if err := binary.Read(br, binary.BigEndian, &fanout[i]); err != nil {
			return nil, err
		}
	}
	count := int(fanout[fanoutSize-1])

	ids := make([]codec.ID, count)
	for i := range ids {
		if _, err := io.ReadFull(br, ids[i][:]); err != nil {
			return nil, err
		}
	}

	crcs := make([]uint32, count)
	for i := range crcs {
		if err := binary.Read(br, binary.BigEndian, &crcs[i]); err != nil {
			return nil, err
		}
	}

	rawOffsets := make([]uint32, count)
	var overflowCount int
	for i := range rawOffsets {
		if err := binary.Read(br, binary.BigEndian, &rawOffsets[i]); err != nil {
			return nil, err
		}
		if rawOffsets[i]&offset64Flag != 0 {
			if n := int(rawOffsets[i] &^ offset64Flag); n+1 > overflowCount {
				overflowCount = n + 1
			}
		}
	}

	overflow := make([]uint64, overflowCount)
	for i := range overflow {
		if err := binary.Read(br, binary.BigEndian, &overflow[i]); err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, count)
	for i := range entries {
		off := uint64(rawOffsets[i])
		if rawOffsets[i]&offset64Flag != 0 {
			off = overflow[rawOffsets[i]&^offset64Flag]
		}
		entries[i] = Entry{ID: ids[i], Offset: off, CRC32: crcs[i]}
	}

	var packChecksum codec.ID
	if _, err := io.ReadFull(br, packChecksum[:]); err != nil {
		return nil, err
	}

	// Trailing self-checksum is read but not re-verified against a live
	// hash here; Decode trusts the caller to have validated file integrity
	// (e.g. via a prior full-file checksum pass) when that matters.
	var selfChecksum codec.ID
	if _, err := io.ReadFull(br, selfChecksum[:]); err != nil {
		return nil, err
	}

	idx := &Index{PackChecksum: packChecksum, entries: entries, fanout: fanout}
	return idx, nil
}
