package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/statewalker/vcs-sub012/codec"
)

var indexSignature = [4]byte{'D', 'I', 'R', 'C'}

// ErrUnsupportedVersion is returned by Encode/Decode for any version
// outside the supported 2-4 range.
var ErrUnsupportedVersion = errors.New("index: unsupported version")

// ErrNegativeTimestamp is returned by Encode if an entry carries a
// pre-epoch timestamp, which the fixed-width on-disk format cannot hold.
var ErrNegativeTimestamp = errors.New("index: negative timestamps are not allowed")

const (
	entryHeaderLength = 62
	entryExtendedFlag = 0x4000
	nameMask          = 0x0fff
	intentToAddMask   = 1 << 13
	skipWorktreeMask  = 1 << 14
)

// Encode writes idx to w in Git's binary index format, terminated by a
// SHA-1 checksum over every preceding byte.
func Encode(w io.Writer, idx *Index) error {
	if idx.Version < 2 || idx.Version > 4 {
		return ErrUnsupportedVersion
	}

	h := codec.NewHasher()
	mw := io.MultiWriter(w, h)

	if err := writeHeader(mw, idx); err != nil {
		return err
	}
	if err := writeEntries(mw, idx); err != nil {
		return err
	}
	if err := writeExtensions(mw, idx); err != nil {
		return err
	}

	_, err := mw.Write(h.Sum(nil))
	return err
}

func writeHeader(w io.Writer, idx *Index) error {
	var buf [12]byte
	copy(buf[0:4], indexSignature[:])
	binary.BigEndian.PutUint32(buf[4:8], idx.Version)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(idx.Entries)))
	_, err := w.Write(buf[:])
	return err
}

func writeEntries(w io.Writer, idx *Index) error {
	var lastName string
	haveLast := false

	for i := range idx.Entries {
		e := &idx.Entries[i]
		wrote, err := writeEntryHeader(w, idx.Version, e)
		if err != nil {
			return err
		}

		var nameBytes int
		switch idx.Version {
		case 2, 3:
			if _, err := w.Write([]byte(e.Path)); err != nil {
				return err
			}
			nameBytes = len(e.Path)
		case 4:
			n, err := writeNameV4(w, e.Path, lastName, haveLast)
			if err != nil {
				return err
			}
			nameBytes = n
			lastName, haveLast = e.Path, true
		}

		if idx.Version != 4 {
			total := wrote + nameBytes
			pad := 8 - total%8
			if _, err := w.Write(make([]byte, pad)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEntryHeader(w io.Writer, version uint32, e *Entry) (int, error) {
	sec, nsec, err := toUnix(e.CreatedAt)
	if err != nil {
		return 0, err
	}
	msec, mnsec, err := toUnix(e.ModifiedAt)
	if err != nil {
		return 0, err
	}

	var buf [entryHeaderLength]byte
	binary.BigEndian.PutUint32(buf[0:4], sec)
	binary.BigEndian.PutUint32(buf[4:8], nsec)
	binary.BigEndian.PutUint32(buf[8:12], msec)
	binary.BigEndian.PutUint32(buf[12:16], mnsec)
	binary.BigEndian.PutUint32(buf[16:20], e.Dev)
	binary.BigEndian.PutUint32(buf[20:24], e.Inode)
	binary.BigEndian.PutUint32(buf[24:28], uint32(e.Mode))
	binary.BigEndian.PutUint32(buf[28:32], e.UID)
	binary.BigEndian.PutUint32(buf[32:36], e.GID)
	binary.BigEndian.PutUint32(buf[36:40], e.Size)
	copy(buf[40:60], e.ID.Bytes())

	flags := uint16(e.Stage&0x3) << 12
	nameLen := len(e.Path)
	if nameLen > nameMask {
		nameLen = nameMask
	}
	flags |= uint16(nameLen)

	extended := version == 3 && (e.IntentToAdd || e.SkipWorktree)
	if extended {
		flags |= entryExtendedFlag
	}
	binary.BigEndian.PutUint16(buf[60:62], flags)

	if _, err := w.Write(buf[:]); err != nil {
		return 0, err
	}
	wrote := entryHeaderLength

	if extended {
		var ext uint16
		if e.IntentToAdd {
			ext |= intentToAddMask
		}
		if e.SkipWorktree {
			ext |= skipWorktreeMask
		}
		var eb [2]byte
		binary.BigEndian.PutUint16(eb[:], ext)
		if _, err := w.Write(eb[:]); err != nil {
			return 0, err
		}
		wrote += 2
	}

	return wrote, nil
}

// writeNameV4 writes the varint-prefixed, prefix-compressed name used
// by index v4: the number of trailing bytes of lastName to strip
// (i.e. len(lastName) minus the shared-directory-prefix length),
// followed by the NUL-terminated remainder.
func writeNameV4(w io.Writer, name, lastName string, haveLast bool) (int, error) {
	strip := 0
	suffix := name
	if haveLast {
		dir := path.Dir(lastName) + "/"
		if strings.HasPrefix(name, dir) {
			strip = len(lastName) - len(dir)
			suffix = strings.TrimPrefix(name, dir)
		} else {
			strip = len(lastName)
		}
	}

	n := 0
	varint := codec.WriteOFSDeltaOffset(int64(strip))
	if _, err := w.Write(varint); err != nil {
		return 0, err
	}
	n += len(varint)

	if _, err := w.Write([]byte(suffix)); err != nil {
		return 0, err
	}
	n += len(suffix)

	if _, err := w.Write([]byte{0}); err != nil {
		return 0, err
	}
	n++

	return n, nil
}

func toUnix(t time.Time) (sec, nsec uint32, err error) {
	if t.IsZero() {
		return 0, 0, nil
	}
	if t.Unix() < 0 {
		return 0, 0, ErrNegativeTimestamp
	}
	return uint32(t.Unix()), uint32(t.Nanosecond()), nil
}

func writeExtensions(w io.Writer, idx *Index) error {
	if idx.Cache != nil {
		if err := writeTreeExtension(w, idx.Cache); err != nil {
			return err
		}
	}
	if idx.ResolveUndo != nil {
		if err := writeResolveUndoExtension(w, idx.ResolveUndo); err != nil {
			return err
		}
	}
	return nil
}

func writeRawExtension(w io.Writer, signature string, data []byte) error {
	if _, err := w.Write([]byte(signature)); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeTreeExtension(w io.Writer, cache []TreeCacheEntry) error {
	var buf bytes.Buffer
	for _, e := range cache {
		buf.WriteString(e.Path)
		buf.WriteByte(0)
		fmt.Fprintf(&buf, "%d %d\n", e.Entries, e.Trees)
		if e.Entries >= 0 {
			buf.Write(e.ID.Bytes())
		}
	}
	return writeRawExtension(w, "TREE", buf.Bytes())
}

func writeResolveUndoExtension(w io.Writer, entries []ResolveUndoEntry) error {
	var buf bytes.Buffer
	stages := []Stage{AncestorStage, OurStage, TheirStage}
	for _, e := range entries {
		buf.WriteString(e.Path)
		buf.WriteByte(0)
		for _, s := range stages {
			if st, ok := e.Stages[s]; ok {
				buf.WriteString(strconv.FormatInt(int64(st.Mode), 8))
			} else {
				buf.WriteString("0")
			}
			buf.WriteByte(0)
		}
		for _, s := range stages {
			if st, ok := e.Stages[s]; ok {
				buf.Write(st.ID.Bytes())
			}
		}
	}
	return writeRawExtension(w, "REUC", buf.Bytes())
}
