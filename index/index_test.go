package index

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/object"
)

func blobID(s string) codec.ID {
	return codec.Sum([]byte(s))
}

func sampleEntries() []Entry {
	now := time.Unix(1_700_000_000, 0)
	return []Entry{
		{Path: "README.md", Mode: filemode.Regular, ID: blobID("readme"), Size: 6, CreatedAt: now, ModifiedAt: now},
		{Path: "cmd/main.go", Mode: filemode.Regular, ID: blobID("main"), Size: 4, CreatedAt: now, ModifiedAt: now},
		{Path: "cmd/helpers.go", Mode: filemode.Regular, ID: blobID("helpers"), Size: 7, CreatedAt: now, ModifiedAt: now},
		{Path: "pkg/lib.go", Mode: filemode.Executable, ID: blobID("lib"), Size: 3, CreatedAt: now, ModifiedAt: now},
	}
}

func buildSample(t *testing.T, version uint32) *Index {
	t.Helper()
	b := NewBuilder(version)
	for _, e := range sampleEntries() {
		b.Add(e)
	}
	idx, err := b.Finish()
	require.NoError(t, err)
	return idx
}

func TestBuilderSortsAndValidates(t *testing.T) {
	idx := buildSample(t, 2)
	require.Len(t, idx.Entries, 4)
	paths := make([]string, len(idx.Entries))
	for i, e := range idx.Entries {
		paths[i] = e.Path
	}
	require.Equal(t, []string{"README.md", "cmd/helpers.go", "cmd/main.go", "pkg/lib.go"}, paths)
}

func TestBuilderRejectsInvalidPath(t *testing.T) {
	b := NewBuilder(2)
	b.Add(Entry{Path: "/abs/path", Mode: filemode.Regular})
	_, err := b.Finish()
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestBuilderRejectsDuplicateEntry(t *testing.T) {
	b := NewBuilder(2)
	b.Add(Entry{Path: "a.txt", Mode: filemode.Regular})
	b.Add(Entry{Path: "a.txt", Mode: filemode.Regular})
	_, err := b.Finish()
	require.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestBuilderRejectsStageConflict(t *testing.T) {
	b := NewBuilder(2)
	b.Add(Entry{Path: "a.txt", Stage: Merged})
	b.Add(Entry{Path: "a.txt", Stage: OurStage})
	_, err := b.Finish()
	require.ErrorIs(t, err, ErrStageConflict)
}

func TestIndexEntryLookup(t *testing.T) {
	idx := buildSample(t, 2)

	e, err := idx.Entry("cmd/main.go")
	require.NoError(t, err)
	require.Equal(t, blobID("main"), e.ID)

	_, err = idx.Entry("missing.go")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestEditorUpsertDeleteResolve(t *testing.T) {
	base := buildSample(t, 2)

	ed := NewEditor(base)
	ed.Upsert(Entry{Path: "new.txt", Mode: filemode.Regular, ID: blobID("new")})
	ed.DeleteSubtree("cmd")
	updated, err := ed.Apply()
	require.NoError(t, err)

	_, err = updated.Entry("cmd/main.go")
	require.ErrorIs(t, err, ErrEntryNotFound)
	_, err = updated.Entry("cmd/helpers.go")
	require.ErrorIs(t, err, ErrEntryNotFound)

	e, err := updated.Entry("new.txt")
	require.NoError(t, err)
	require.Equal(t, blobID("new"), e.ID)

	require.False(t, updated.HasConflicts())
}

func TestEditorResolveConflict(t *testing.T) {
	b := NewBuilder(2)
	b.Add(Entry{Path: "a.txt", Stage: AncestorStage, ID: blobID("base")})
	b.Add(Entry{Path: "a.txt", Stage: OurStage, ID: blobID("ours")})
	b.Add(Entry{Path: "a.txt", Stage: TheirStage, ID: blobID("theirs")})
	conflicted, err := b.Finish()
	require.NoError(t, err)
	require.True(t, conflicted.HasConflicts())

	ed := NewEditor(conflicted)
	ed.ResolveConflict("a.txt", OurStage)
	resolved, err := ed.Apply()
	require.NoError(t, err)
	require.False(t, resolved.HasConflicts())

	e, err := resolved.Entry("a.txt")
	require.NoError(t, err)
	require.Equal(t, blobID("ours"), e.ID)
	require.Equal(t, Merged, e.Stage)
}

func TestWriteTreeRejectsConflicts(t *testing.T) {
	b := NewBuilder(2)
	b.Add(Entry{Path: "a.txt", Stage: OurStage})
	idx, err := b.Finish()
	require.NoError(t, err)

	_, err = WriteTree(idx, nil)
	require.ErrorIs(t, err, ErrConflicts)
}

func TestWriteTreeFoldsNestedDirectories(t *testing.T) {
	idx := buildSample(t, 2)

	var stores [][]object.TreeEntry
	store := func(entries []object.TreeEntry) (codec.ID, error) {
		stores = append(stores, entries)
		return codec.Sum([]byte(entries[0].Name)), nil
	}

	rootID, err := WriteTree(idx, store)
	require.NoError(t, err)
	require.NotEqual(t, codec.ID{}, rootID)

	// one store call per directory: root, cmd, pkg.
	require.Len(t, stores, 3)

	var cmdCall []object.TreeEntry
	for _, call := range stores {
		if len(call) == 2 {
			cmdCall = call
		}
	}
	require.NotNil(t, cmdCall)
	names := []string{cmdCall[0].Name, cmdCall[1].Name}
	require.ElementsMatch(t, []string{"helpers.go", "main.go"}, names)
}

func TestEncodeDecodeRoundTripV2(t *testing.T) {
	idx := buildSample(t, 2)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.Version, decoded.Version)
	require.Equal(t, idx.Entries, decoded.Entries)
}

func TestEncodeDecodeRoundTripV4(t *testing.T) {
	idx := buildSample(t, 4)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.Version, decoded.Version)
	require.Equal(t, idx.Entries, decoded.Entries)
}

func TestEncodeDecodeExtendedFlags(t *testing.T) {
	idx := &Index{
		Version: 3,
		Entries: []Entry{
			{Path: "a.txt", Mode: filemode.Regular, ID: blobID("a"), IntentToAdd: true},
			{Path: "b.txt", Mode: filemode.Regular, ID: blobID("b"), SkipWorktree: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.True(t, decoded.Entries[0].IntentToAdd)
	require.True(t, decoded.Entries[1].SkipWorktree)
}

func TestEncodeDecodeTreeExtension(t *testing.T) {
	idx := buildSample(t, 2)
	idx.Cache = []TreeCacheEntry{
		{Path: "", Entries: 4, Trees: 2, ID: blobID("root-tree")},
		{Path: "cmd", Entries: -1, Trees: 0},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.Cache, decoded.Cache)
}

func TestEncodeDecodeResolveUndoExtension(t *testing.T) {
	idx := buildSample(t, 2)
	idx.ResolveUndo = []ResolveUndoEntry{
		{Path: "a.txt", Stages: map[Stage]ResolveUndoStage{
			AncestorStage: {Mode: filemode.Regular, ID: blobID("base")},
			OurStage:      {Mode: filemode.Regular, ID: blobID("ours")},
			TheirStage:    {Mode: filemode.Executable, ID: blobID("theirs")},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.ResolveUndo, decoded.ResolveUndo)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOPE0000")))
	require.ErrorIs(t, err, ErrMalformedSignature)
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	idx := buildSample(t, 2)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xff

	_, err := Decode(bytes.NewReader(corrupt))
	require.ErrorIs(t, err, ErrInvalidChecksum)
}
