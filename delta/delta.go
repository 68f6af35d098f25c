// Package delta implements Git's binary delta format: computing a
// compact set of copy/insert instructions that transform a base byte
// string into a target one, applying such instructions back, and the
// policy (deltify rules, chain-depth bookkeeping) the storage layer
// uses when deciding whether an object is worth storing as a delta.
package delta

import (
	"bytes"
	"errors"

	"github.com/statewalker/vcs-sub012/codec"
)

// ErrInvalid is returned by Apply when the delta stream is malformed
// or its declared sizes don't match the supplied base/output.
var ErrInvalid = errors.New("delta: invalid delta stream")

// ErrCmd is returned by Apply when a delta opcode byte is neither a
// copy-from-base nor an insert-literal instruction (0x00 is reserved
// and never valid).
var ErrCmd = errors.New("delta: invalid opcode")

const (
	maxCopySize  = 0x10000 // a zero-length field in a copy opcode means 64 KiB
	maxCopyLen   = 0xffff  // largest single copy instruction Encode ever emits
	minDeltaSize = 4
)

// blockSize is the granularity of the hash-indexed matcher below: the
// base is indexed in non-overlapping blockSize-byte chunks, and a
// match is only seeded at a chunk boundary. Git's own delta generator
// uses a similar fixed-granularity rolling hash; this trades a little
// compression for a simple, allocation-light implementation.
const blockSize = 16

// Encode computes the Git binary-delta instructions that transform
// base into target: a LEB128-encoded (len(base), len(target)) header
// followed by a stream of copy-from-base and insert-literal opcodes.
func Encode(base, target []byte) []byte {
	var out []byte
	out = append(out, encodeSize(len(base))...)
	out = append(out, encodeSize(len(target))...)

	index := indexBlocks(base)

	var litStart int
	i := 0
	for i < len(target) {
		start, length := bestMatch(index, base, target, i)
		if length < blockSize {
			i++
			continue
		}

		if i > litStart {
			out = append(out, encodeInsert(target[litStart:i])...)
		}
		for off, rem := start, length; rem > 0; {
			n := rem
			if n > maxCopyLen {
				n = maxCopyLen
			}
			out = append(out, encodeCopy(off, n)...)
			off += n
			rem -= n
		}
		i += length
		litStart = i
	}
	if litStart < len(target) {
		out = append(out, encodeInsert(target[litStart:])...)
	}
	return out
}

// indexBlocks maps each blockSize-aligned chunk's bytes to its
// starting offset in base, keeping the first occurrence of each
// chunk (duplicate chunks prefer the earliest, lowest-offset copy,
// which tends to keep later copy instructions' offsets smaller).
func indexBlocks(base []byte) map[string]int {
	index := make(map[string]int, len(base)/blockSize+1)
	for i := 0; i+blockSize <= len(base); i += blockSize {
		key := string(base[i : i+blockSize])
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}
	return index
}

// bestMatch looks up the blockSize-byte chunk at target[i:] in index
// and, on a hit, greedily extends the match forward.
func bestMatch(index map[string]int, base, target []byte, i int) (start, length int) {
	if i+blockSize > len(target) {
		return 0, 0
	}
	key := string(target[i : i+blockSize])
	baseStart, ok := index[key]
	if !ok {
		return 0, 0
	}

	start = baseStart
	length = blockSize
	for start+length < len(base) && i+length < len(target) && base[start+length] == target[i+length] {
		length++
	}
	return start, length
}

// Apply transforms base per the instructions in delta, returning the
// reconstructed target bytes.
func Apply(base, delta []byte) ([]byte, error) {
	if len(delta) < minDeltaSize {
		return nil, ErrInvalid
	}

	srcSz, rest := decodeSize(delta)
	if srcSz != len(base) {
		return nil, ErrInvalid
	}

	targetSz, rest := decodeSize(rest)

	var out bytes.Buffer
	out.Grow(targetSz)

	for len(out.Bytes()) < targetSz {
		if len(rest) == 0 {
			return nil, ErrInvalid
		}
		cmd := rest[0]
		rest = rest[1:]

		switch {
		case cmd&0x80 != 0:
			offset, sz, tail, err := decodeCopy(cmd, rest)
			if err != nil {
				return nil, err
			}
			rest = tail
			if offset+sz > len(base) || out.Len()+sz > targetSz {
				return nil, ErrInvalid
			}
			out.Write(base[offset : offset+sz])

		case cmd != 0:
			sz := int(cmd)
			if len(rest) < sz || out.Len()+sz > targetSz {
				return nil, ErrInvalid
			}
			out.Write(rest[:sz])
			rest = rest[sz:]

		default:
			return nil, ErrCmd
		}
	}

	return out.Bytes(), nil
}

// Range describes one instruction decoded from a delta stream, used
// by callers (e.g. the GC repack path) that want to inspect a delta's
// structure without fully materializing the target.
type Range struct {
	// CopyFromBase is true for a copy instruction, false for an insert.
	CopyFromBase bool
	// Offset/Length describe a base-relative copy window when
	// CopyFromBase is true.
	Offset, Length int
	// Literal holds the inserted bytes when CopyFromBase is false.
	Literal []byte
}

// Decode parses delta into its (baseSize, targetSize, instructions) form.
func Decode(delta []byte) (baseSize, targetSize int, ranges []Range, err error) {
	if len(delta) < minDeltaSize {
		return 0, 0, nil, ErrInvalid
	}
	baseSize, rest := decodeSize(delta)
	targetSize, rest = decodeSize(rest)

	produced := 0
	for produced < targetSize {
		if len(rest) == 0 {
			return 0, 0, nil, ErrInvalid
		}
		cmd := rest[0]
		rest = rest[1:]

		switch {
		case cmd&0x80 != 0:
			offset, sz, tail, err := decodeCopy(cmd, rest)
			if err != nil {
				return 0, 0, nil, err
			}
			rest = tail
			ranges = append(ranges, Range{CopyFromBase: true, Offset: offset, Length: sz})
			produced += sz

		case cmd != 0:
			sz := int(cmd)
			if len(rest) < sz {
				return 0, 0, nil, ErrInvalid
			}
			ranges = append(ranges, Range{Literal: rest[:sz]})
			rest = rest[sz:]
			produced += sz

		default:
			return 0, 0, nil, ErrCmd
		}
	}
	return baseSize, targetSize, ranges, nil
}

func encodeSize(n int) []byte {
	return codec.WriteLEB128(nil, uint64(n))
}

func decodeSize(b []byte) (int, []byte) {
	v, rest := codec.ReadLEB128(b)
	return int(v), rest
}

func encodeInsert(lit []byte) []byte {
	var out []byte
	for len(lit) > 127 {
		out = append(out, 127)
		out = append(out, lit[:127]...)
		lit = lit[127:]
	}
	out = append(out, byte(len(lit)))
	out = append(out, lit...)
	return out
}

var offsetMasks = [4]byte{0x01, 0x02, 0x04, 0x08}
var sizeMasks = [3]byte{0x10, 0x20, 0x40}

func encodeCopy(offset, length int) []byte {
	cmd := byte(0x80)
	var args []byte

	o := uint32(offset)
	for i, mask := range offsetMasks {
		if b := byte(o >> (8 * i)); b != 0 {
			args = append(args, b)
			cmd |= mask
		}
	}

	l := uint32(length)
	if l == maxCopySize {
		l = 0
	}
	for i, mask := range sizeMasks {
		if b := byte(l >> (8 * i)); b != 0 {
			args = append(args, b)
			cmd |= mask
		}
	}

	return append([]byte{cmd}, args...)
}

func decodeCopy(cmd byte, delta []byte) (offset, length int, rest []byte, err error) {
	var o, l uint32
	for i, mask := range offsetMasks {
		if cmd&mask != 0 {
			if len(delta) == 0 {
				return 0, 0, nil, ErrInvalid
			}
			o |= uint32(delta[0]) << (8 * i)
			delta = delta[1:]
		}
	}
	for i, mask := range sizeMasks {
		if cmd&mask != 0 {
			if len(delta) == 0 {
				return 0, 0, nil, ErrInvalid
			}
			l |= uint32(delta[0]) << (8 * i)
			delta = delta[1:]
		}
	}
	if l == 0 {
		l = maxCopySize
	}
	return int(o), int(l), delta, nil
}
