// Package object implements Git's canonical object encoding: the
// "type size\0payload" header shared by every object kind, and the
// tree/commit/tag/blob serializers built on top of it.
package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/statewalker/vcs-sub012/codec"
)

// Type identifies one of the four object kinds Git stores.
type Type byte

const (
	InvalidType Type = iota
	BlobType
	TreeType
	CommitType
	TagType
)

// String returns the lowercase name used in both the loose-object header
// and pack entry type encodings.
func (t Type) String() string {
	switch t {
	case BlobType:
		return "blob"
	case TreeType:
		return "tree"
	case CommitType:
		return "commit"
	case TagType:
		return "tag"
	default:
		return "invalid"
	}
}

// ParseType maps a header type token back to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "blob":
		return BlobType, nil
	case "tree":
		return TreeType, nil
	case "commit":
		return CommitType, nil
	case "tag":
		return TagType, nil
	default:
		return InvalidType, fmt.Errorf("object: unknown object type %q", s)
	}
}

// PackTypeCode is the 3-bit type tag used in pack entry headers (distinct
// from Type's header-string encoding).
func (t Type) PackTypeCode() byte {
	switch t {
	case CommitType:
		return 1
	case TreeType:
		return 2
	case BlobType:
		return 3
	case TagType:
		return 4
	default:
		return 0
	}
}

// EncodeHeader returns "type size\0" as stored in the loose object form and
// prepended to the payload before hashing.
func EncodeHeader(t Type, size int) []byte {
	return []byte(t.String() + " " + strconv.Itoa(size) + "\x00")
}

// Encode wraps payload in its canonical header and returns the full
// on-disk byte sequence this object hashes to (before zlib compression).
func Encode(t Type, payload []byte) []byte {
	h := EncodeHeader(t, len(payload))
	buf := make([]byte, 0, len(h)+len(payload))
	buf = append(buf, h...)
	buf = append(buf, payload...)
	return buf
}

// Hash returns the content-addressed ID of an object given its type and
// payload.
func Hash(t Type, payload []byte) codec.ID {
	return codec.Sum(Encode(t, payload))
}

// DecodeHeader parses a "type size\0" header from r, returning the object
// type and declared payload size. The header may be split across multiple
// reads from the caller's perspective but is read here as a single
// contiguous token, bounded to avoid unbounded memory use on corrupt input.
func DecodeHeader(r *bufio.Reader) (Type, int, error) {
	// Bound header parsing to 1 KiB per spec 4.M/§7's Resource error class:
	// a corrupt or hostile stream with no space/NUL delimiter must not be
	// read to exhaustion. Read byte-by-byte directly from r (rather than
	// wrapping it in another buffered reader) so any bytes read past the
	// header stay available to the caller for payload decoding.
	const maxHeader = 1024

	typeTok, err := readHeaderToken(r, ' ', maxHeader)
	if err != nil {
		return InvalidType, 0, fmt.Errorf("object: reading type: %w", err)
	}

	sizeTok, err := readHeaderToken(r, 0, maxHeader-len(typeTok)-1)
	if err != nil {
		return InvalidType, 0, fmt.Errorf("object: reading size: %w", err)
	}

	t, err := ParseType(typeTok)
	if err != nil {
		return InvalidType, 0, err
	}

	size, err := strconv.Atoi(sizeTok)
	if err != nil {
		return InvalidType, 0, fmt.Errorf("object: invalid size %q: %w", sizeTok, err)
	}

	return t, size, nil
}

// readHeaderToken reads bytes from r up to (and excluding) delim, refusing
// to collect more than maxLen bytes.
func readHeaderToken(r *bufio.Reader, delim byte, maxLen int) (string, error) {
	var buf []byte
	for {
		if len(buf) > maxLen {
			return "", fmt.Errorf("object: header token exceeds %d bytes", maxLen)
		}
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == delim {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

// Decode parses a full "type size\0payload" record, validating the declared
// size against the actual payload length.
func Decode(r io.Reader) (Type, []byte, error) {
	br := bufio.NewReader(r)
	t, size, err := DecodeHeader(br)
	if err != nil {
		return InvalidType, nil, err
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(br, payload); err != nil {
		return InvalidType, nil, fmt.Errorf("object: reading payload: %w", err)
	}

	return t, payload, nil
}

// DecodeBytes is a convenience wrapper over Decode for already-buffered
// content.
func DecodeBytes(b []byte) (Type, []byte, error) {
	return Decode(bytes.NewReader(b))
}
