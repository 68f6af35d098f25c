package rawstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	billy "github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub012/codec"
)

// objectsDir is the directory loose objects live under, matching
// Git's on-disk ".git/objects" layout: a fanout directory named by
// the ID's first byte in hex, then a file named by the remaining 38
// hex characters.
const objectsDir = "objects"

// Loose is a billy-backed Store that writes one zlib-compressed file
// per object, sharded the way Git's loose object store is: the
// classic objects/xx/yyyy...y split. Writes go through a temp file in
// objects/ and are published with a rename, so a reader can never
// observe a partially-written object.
type Loose struct {
	fs billy.Filesystem
}

// NewLoose returns a Loose store rooted at fs (typically the
// filesystem view of a repository's .git directory, or a subtree of
// it dedicated to object storage).
func NewLoose(fs billy.Filesystem) *Loose {
	return &Loose{fs: fs}
}

func (l *Loose) path(id codec.ID) string {
	hex := id.String()
	return l.fs.Join(objectsDir, hex[:2], hex[2:])
}

func (l *Loose) Store(id codec.ID, encoded []byte) error {
	dir := l.fs.Join(objectsDir, id.String()[:2])
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := l.fs.TempFile(objectsDir, "tmp_obj_")
	if err != nil {
		return err
	}

	compressed := codec.Deflate(encoded)

	if _, err := tmp.Write(compressed); err != nil {
		_ = tmp.Close()
		_ = l.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = l.fs.Remove(tmp.Name())
		return err
	}

	if err := l.fs.Rename(tmp.Name(), l.path(id)); err != nil {
		_ = l.fs.Remove(tmp.Name())
		return err
	}
	return nil
}

func (l *Loose) Load(id codec.ID) ([]byte, error) {
	rc, err := l.LoadStream(id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (l *Loose) LoadStream(id codec.ID) (io.ReadCloser, error) {
	f, err := l.fs.Open(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	compressed, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	decompressed, _, err := codec.DecompressPartial(compressed, len(compressed)*3)
	if err != nil {
		return nil, fmt.Errorf("rawstore: loose object %s is corrupt: %w", id, err)
	}

	return io.NopCloser(bytes.NewReader(decompressed)), nil
}

func (l *Loose) Has(id codec.ID) (bool, error) {
	_, err := l.fs.Stat(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Loose) Remove(id codec.ID) error {
	err := l.fs.Remove(l.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Loose) Keys() ([]codec.ID, error) {
	fanouts, err := l.fs.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []codec.ID
	for _, fanout := range fanouts {
		name := fanout.Name()
		if len(name) != 2 || !fanout.IsDir() {
			continue
		}

		entries, err := l.fs.ReadDir(l.fs.Join(objectsDir, name))
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if len(e.Name()) != codec.HexSize-2 {
				continue
			}
			id, err := codec.NewID(name + e.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids, nil
}
