package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"time"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
)

// ErrMalformedSignature is returned when the leading 4 bytes aren't "DIRC".
var ErrMalformedSignature = errors.New("index: malformed signature")

// ErrInvalidChecksum is returned when the trailing SHA-1 doesn't match.
var ErrInvalidChecksum = errors.New("index: invalid checksum")

// ErrUnknownExtension is returned for a mandatory (uppercase-first-byte)
// extension signature this decoder doesn't understand.
var ErrUnknownExtension = errors.New("index: unknown mandatory extension")

var (
	treeExtSignature        = [4]byte{'T', 'R', 'E', 'E'}
	resolveUndoExtSignature = [4]byte{'R', 'E', 'U', 'C'}
)

// Decode reads a full binary index from r.
func Decode(r io.Reader) (*Index, error) {
	h := codec.NewHasher()
	buf := bufio.NewReader(r)
	tee := io.TeeReader(buf, h)

	version, err := readHeaderVersion(tee)
	if err != nil {
		return nil, err
	}

	count, err := readUint32(tee)
	if err != nil {
		return nil, err
	}

	idx := &Index{Version: version}
	var lastPath string
	for i := uint32(0); i < count; i++ {
		e, err := readEntry(tee, version, lastPath)
		if err != nil {
			return nil, err
		}
		idx.Entries = append(idx.Entries, *e)
		lastPath = e.Path
	}

	if err := readExtensions(buf, tee, h, idx); err != nil {
		return nil, err
	}

	return idx, nil
}

func readHeaderVersion(r io.Reader) (uint32, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return 0, err
	}
	if sig != indexSignature {
		return 0, ErrMalformedSignature
	}
	version, err := readUint32(r)
	if err != nil {
		return 0, err
	}
	if version < 2 || version > 4 {
		return 0, ErrUnsupportedVersion
	}
	return version, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readEntry(r io.Reader, version uint32, lastPath string) (*Entry, error) {
	var e Entry

	var sec, nsec, msec, mnsec, mode uint32
	fields := []*uint32{&sec, &nsec, &msec, &mnsec, &e.Dev, &e.Inode, &mode, &e.UID, &e.GID, &e.Size}
	for _, f := range fields {
		v, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		*f = v
	}
	e.Mode = filemode.FileMode(mode)

	var idBytes [codec.Size]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return nil, err
	}
	e.ID = codec.ID(idBytes)

	flags, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	read := entryHeaderLength

	if sec != 0 || nsec != 0 {
		e.CreatedAt = time.Unix(int64(sec), int64(nsec))
	}
	if msec != 0 || mnsec != 0 {
		e.ModifiedAt = time.Unix(int64(msec), int64(mnsec))
	}
	e.Stage = Stage((flags >> 12) & 0x3)

	if flags&entryExtendedFlag != 0 {
		ext, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		read += 2
		e.IntentToAdd = ext&intentToAddMask != 0
		e.SkipWorktree = ext&skipWorktreeMask != 0
	}

	var nameLen int
	switch version {
	case 2, 3:
		name := make([]byte, int(flags&nameMask))
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		e.Path = string(name)
		nameLen = len(name)
	case 4:
		name, n, err := readNameV4(r, lastPath)
		if err != nil {
			return nil, err
		}
		e.Path = name
		nameLen = n
	}

	if version != 4 {
		pad := 8 - (read+nameLen)%8
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, err
		}
	}

	return &e, nil
}

// singleByteReader adapts an io.Reader to io.ByteReader one byte at a
// time, so callers sharing the underlying stream (e.g. the checksum
// TeeReader) never lose bytes to an intermediate buffer's read-ahead.
type singleByteReader struct{ r io.Reader }

func (s singleByteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(s.r, b[:])
	return b[0], err
}

// readNameV4 mirrors writeNameV4: a varint strip-length (Git's "offset
// encoding"), then a NUL-terminated suffix appended to the kept prefix
// of lastPath.
func readNameV4(r io.Reader, lastPath string) (string, int, error) {
	br := singleByteReader{r}
	strip, err := codec.ReadOFSDeltaOffset(br)
	if err != nil {
		return "", 0, err
	}

	var prefix string
	if int(strip) <= len(lastPath) {
		prefix = lastPath[:len(lastPath)-int(strip)]
	}

	var suffix bytes.Buffer
	n := 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", 0, err
		}
		n++
		if b == 0 {
			break
		}
		suffix.WriteByte(b)
	}

	varintLen := varintEncodedLen(strip)
	return prefix + suffix.String(), varintLen + n, nil
}

func varintEncodedLen(v int64) int {
	return len(codec.WriteOFSDeltaOffset(v))
}

func readExtensions(buf *bufio.Reader, tee io.Reader, h hash.Hash, idx *Index) error {
	peekLen := 4 + 4 + codec.Size
	for {
		peeked, err := buf.Peek(peekLen)
		if len(peeked) < peekLen {
			break
		}
		if err != nil {
			return err
		}

		var sig [4]byte
		if _, err := io.ReadFull(tee, sig[:]); err != nil {
			return err
		}
		length, err := readUint32(tee)
		if err != nil {
			return err
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(tee, data); err != nil {
			return err
		}

		switch sig {
		case treeExtSignature:
			cache, err := decodeTreeExtension(data)
			if err != nil {
				return err
			}
			idx.Cache = cache
		case resolveUndoExtSignature:
			ru, err := decodeResolveUndoExtension(data)
			if err != nil {
				return err
			}
			idx.ResolveUndo = ru
		default:
			if sig[0] < 'A' || sig[0] > 'Z' {
				return fmt.Errorf("%w: %q", ErrUnknownExtension, sig)
			}
			// optional extension, tolerated and dropped.
		}
	}

	expected := h.Sum(nil)
	var sum [codec.Size]byte
	if _, err := io.ReadFull(tee, sum[:]); err != nil {
		return err
	}
	if !bytes.Equal(expected, sum[:]) {
		return ErrInvalidChecksum
	}
	return nil
}

func decodeTreeExtension(data []byte) ([]TreeCacheEntry, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	var out []TreeCacheEntry
	for {
		path, err := r.ReadString(0)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		path = path[:len(path)-1]

		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = line[:len(line)-1]

		var entries, trees int
		if _, err := fmt.Sscanf(line, "%d %d", &entries, &trees); err != nil {
			return nil, err
		}

		entry := TreeCacheEntry{Path: path, Entries: entries, Trees: trees}
		if entries >= 0 {
			var idBytes [codec.Size]byte
			if _, err := io.ReadFull(r, idBytes[:]); err != nil {
				return nil, err
			}
			entry.ID = codec.ID(idBytes)
		}
		out = append(out, entry)
	}
}

func decodeResolveUndoExtension(data []byte) ([]ResolveUndoEntry, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	var out []ResolveUndoEntry
	stages := []Stage{AncestorStage, OurStage, TheirStage}

	for {
		path, err := r.ReadString(0)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		path = path[:len(path)-1]

		entry := ResolveUndoEntry{Path: path, Stages: map[Stage]ResolveUndoStage{}}
		modes := map[Stage]filemode.FileMode{}
		present := map[Stage]bool{}
		for _, s := range stages {
			raw, err := r.ReadString(0)
			if err != nil {
				return nil, err
			}
			raw = raw[:len(raw)-1]
			mode, err := strconv.ParseInt(raw, 8, 64)
			if err != nil {
				return nil, err
			}
			modes[s] = filemode.FileMode(mode)
			present[s] = mode != 0
		}
		for _, s := range stages {
			if !present[s] {
				continue
			}
			var idBytes [codec.Size]byte
			if _, err := io.ReadFull(r, idBytes[:]); err != nil {
				return nil, err
			}
			entry.Stages[s] = ResolveUndoStage{Mode: modes[s], ID: codec.ID(idBytes)}
		}
		out = append(out, entry)
	}
}
