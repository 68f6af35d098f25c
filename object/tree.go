package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
)

// TreeEntry is one (mode, name, id) record inside a Tree. Per spec 3,
// name must be non-empty, contain no "/", and not be "." or "..".
type TreeEntry struct {
	Mode filemode.FileMode
	Name string
	ID   codec.ID
}

// Tree is an ordered sequence of entries, sorted per sortKey so that
// serialization is canonical and deterministic.
type Tree struct {
	Entries []TreeEntry
}

// EmptyTreeID is the well-known ID of the tree with zero entries.
var EmptyTreeID = codec.Sum([]byte("tree 0\x00"))

func validateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("object: tree entry name must not be empty")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("object: tree entry name %q must not contain '/'", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("object: tree entry name must not be %q", name)
	}
	return nil
}

// sortKey implements Git's tree-entry ordering: directories compare as if
// their name had a trailing "/", so the directory "foo" (compared as
// "foo/") sorts after the file "foo.txt" ('.' is 0x2e, '/' is 0x2f),
// while a file named "foo" sorts before both.
func sortKey(e TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Sort orders Entries in canonical tree order, in place.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

// Find returns the entry named name, or false if absent. Trees are
// expected to already be sorted; this is a linear scan since spec does not
// require an index.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Encode serializes Entries into the canonical tree payload: repeated
// "<octal-mode> <name>\0" + 20 raw ID bytes, in sorted order. Encode sorts
// a copy of Entries rather than mutating t, so repeated calls are
// idempotent regardless of caller insertion order.
func (t *Tree) Encode() ([]byte, error) {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		if err := validateEntryName(e.Name); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%o %s\x00", uint32(e.Mode), e.Name)
		buf.Write(e.ID[:])
	}
	return buf.Bytes(), nil
}

// DecodeTree parses a tree payload into Entries, in on-disk order (which,
// for any tree written by this package, is already canonical order).
func DecodeTree(payload []byte) (*Tree, error) {
	r := bufio.NewReader(bytes.NewReader(payload))
	var t Tree

	for {
		modeTok, err := r.ReadString(' ')
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("object: tree: reading mode: %w", err)
		}
		modeTok = modeTok[:len(modeTok)-1]

		name, err := r.ReadString(0)
		if err != nil {
			return nil, fmt.Errorf("object: tree: reading name: %w", err)
		}
		name = name[:len(name)-1]

		var idBytes [codec.Size]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, fmt.Errorf("object: tree: reading id: %w", err)
		}

		mode, err := filemode.New(modeTok)
		if err != nil {
			return nil, err
		}

		t.Entries = append(t.Entries, TreeEntry{Mode: mode, Name: name, ID: idBytes})
	}

	return &t, nil
}

// ID returns the content-addressed ID of t in its canonical encoding.
func (t *Tree) ID() (codec.ID, error) {
	payload, err := t.Encode()
	if err != nil {
		return codec.ID{}, err
	}
	return Hash(TreeType, payload), nil
}
