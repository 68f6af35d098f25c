package codec

import "io"

// ReadLEB128 decodes a Git-style little-endian base-128 varint (7 bits per
// byte, MSB set means "more bytes follow"). Used for delta size prefixes and
// anywhere else Git encodes a plain variable-length integer.
func ReadLEB128(buf []byte) (value uint64, rest []byte) {
	var shift uint
	for i, b := range buf {
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, buf[i+1:]
		}
		shift += 7
	}
	return value, nil
}

// ReadLEB128FromReader is the streaming counterpart of ReadLEB128.
func ReadLEB128FromReader(r io.ByteReader) (uint64, error) {
	var value uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
}

// WriteLEB128 appends the LEB128 encoding of v to buf.
func WriteLEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

// PackObjectHeader encodes a pack entry's (type, size) pair using Git's
// object-header varint: the first byte packs a 3-bit type and the low 4
// bits of size, with the MSB as a continuation flag; subsequent bytes carry
// 7 bits of size each, MSB-continuation as usual.
func PackObjectHeader(typ byte, size uint64) []byte {
	b := byte(typ<<4) | byte(size&0x0f)
	size >>= 4
	if size == 0 {
		return []byte{b}
	}
	buf := []byte{b | 0x80}
	return WriteLEB128(buf, size)
}

// ReadPackObjectHeader decodes a pack entry's (type, size) header, as
// written by PackObjectHeader, from a byte stream.
func ReadPackObjectHeader(r io.ByteReader) (typ byte, size uint64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typ = (b >> 4) & 0x07
	size = uint64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= uint64(b&0x7f) << shift
		shift += 7
	}
	return typ, size, nil
}

// ReadOFSDeltaOffset decodes an OFS_DELTA backward offset. Unlike a plain
// LEB128 value, each continuation byte after the first implicitly adds 1
// (Git's "offset encoding" quirk, documented in pack-format.txt), so the
// encoding is big-endian-like rather than little-endian.
func ReadOFSDeltaOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		offset++
		offset = (offset << 7) | int64(b&0x7f)
	}
	return offset, nil
}

// WriteOFSDeltaOffset encodes offset using the same quirky big-endian+carry
// scheme as ReadOFSDeltaOffset.
func WriteOFSDeltaOffset(offset int64) []byte {
	var tmp [10]byte
	i := len(tmp)
	i--
	tmp[i] = byte(offset & 0x7f)
	offset >>= 7
	for offset != 0 {
		offset--
		i--
		tmp[i] = byte(offset&0x7f) | 0x80
		offset >>= 7
	}
	return tmp[i:]
}
