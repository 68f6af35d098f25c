// Package codec provides the low-level byte-format primitives shared by the
// rest of the engine: hashing, CRC-32, streaming zlib, and the varint
// encodings used throughout the pack format.
package codec

import (
	"encoding/hex"
	"hash"

	"github.com/pjbgf/sha1cd"
)

// Size is the length in bytes of an object ID.
const Size = 20

// HexSize is the length of the hex-encoded form of an object ID.
const HexSize = Size * 2

// ID is a 20-byte object identifier (SHA-1 of the canonical object form).
type ID [Size]byte

// ZeroID is the all-zero object ID, used to represent "no object" in refs
// and pack entries.
var ZeroID ID

// IsZero reports whether id is the all-zero ID.
func (id ID) IsZero() bool {
	return id == ZeroID
}

// String returns the lowercase 40 hex-character form of id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the 20 raw bytes backing id.
func (id ID) Bytes() []byte {
	return id[:]
}

// Compare implements a bytewise ordering over IDs, used for pack-index
// fanout/binary search and sorted object listings.
func (id ID) Compare(other ID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NewID parses a 40-character hex string into an ID.
func NewID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != Size {
		return id, errInvalidIDLength(len(b))
	}
	copy(id[:], b)
	return id, nil
}

type errInvalidIDLength int

func (e errInvalidIDLength) Error() string {
	return "codec: invalid object id length: " + itoa(int(e))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// NewHasher returns a new SHA-1 hasher. The engine always uses the
// collision-detecting sha1cd implementation, matching the teacher's
// plumbing/hash registration of sha1cd under crypto.SHA1.
func NewHasher() hash.Hash {
	return sha1cd.New()
}

// Sum computes the ID of b in a single call.
func Sum(b []byte) ID {
	h := NewHasher()
	h.Write(b)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}
