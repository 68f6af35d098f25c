package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/index"
)

func blobID(s string) codec.ID { return codec.Sum([]byte(s)) }

func buildIndex(t *testing.T, entries ...index.Entry) *index.Index {
	t.Helper()
	b := index.NewBuilder(2)
	for _, e := range entries {
		b.Add(e)
	}
	idx, err := b.Finish()
	require.NoError(t, err)
	return idx
}

func entry(path, content string) index.Entry {
	return index.Entry{Path: path, Mode: filemode.Regular, ID: blobID(content)}
}

func TestMergeUnchanged(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	ours := buildIndex(t, entry("a.txt", "a"))
	theirs := buildIndex(t, entry("a.txt", "a"))

	result := Merge(base, ours, theirs)
	require.Len(t, result.Paths, 1)
	require.Equal(t, Unchanged, result.Paths[0].Case)
	require.Empty(t, result.Conflicts)
}

func TestMergeModifiedByUs(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	ours := buildIndex(t, entry("a.txt", "a2"))
	theirs := buildIndex(t, entry("a.txt", "a"))

	result := Merge(base, ours, theirs)
	require.Equal(t, ModifiedByUs, result.Paths[0].Case)
	require.False(t, result.Paths[0].Case.IsConflict())
}

func TestMergeModifiedBothDiffer(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	ours := buildIndex(t, entry("a.txt", "a-ours"))
	theirs := buildIndex(t, entry("a.txt", "a-theirs"))

	result := Merge(base, ours, theirs)
	require.Equal(t, ModifiedBothDiffer, result.Paths[0].Case)
	require.True(t, result.Paths[0].Case.IsConflict())
	require.Len(t, result.Conflicts, 1)
}

func TestMergeModifiedBothSame(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	ours := buildIndex(t, entry("a.txt", "a2"))
	theirs := buildIndex(t, entry("a.txt", "a2"))

	result := Merge(base, ours, theirs)
	require.Equal(t, ModifiedBothSame, result.Paths[0].Case)
}

func TestMergeAddedByUsAndThem(t *testing.T) {
	base := buildIndex(t)
	ours := buildIndex(t, entry("new.txt", "x"))
	theirs := buildIndex(t)

	result := Merge(base, ours, theirs)
	require.Equal(t, AddedByUs, result.Paths[0].Case)

	result2 := Merge(base, buildIndex(t), buildIndex(t, entry("new.txt", "x")))
	require.Equal(t, AddedByThem, result2.Paths[0].Case)
}

func TestMergeAddedBothDiffer(t *testing.T) {
	base := buildIndex(t)
	ours := buildIndex(t, entry("new.txt", "x"))
	theirs := buildIndex(t, entry("new.txt", "y"))

	result := Merge(base, ours, theirs)
	require.Equal(t, AddedBothDiffer, result.Paths[0].Case)
	require.True(t, result.Paths[0].Case.IsConflict())
}

func TestMergeDeletedByUsAndThem(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	ours := buildIndex(t)
	theirs := buildIndex(t, entry("a.txt", "a"))

	result := Merge(base, ours, theirs)
	require.Equal(t, DeletedByUs, result.Paths[0].Case)
	require.False(t, result.Paths[0].Case.IsConflict())

	result2 := Merge(base, buildIndex(t, entry("a.txt", "a")), buildIndex(t))
	require.Equal(t, DeletedByThem, result2.Paths[0].Case)
}

func TestMergeDeletedBoth(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	result := Merge(base, buildIndex(t), buildIndex(t))
	require.Equal(t, DeletedBoth, result.Paths[0].Case)
}

func TestMergeDeleteModifyAndModifyDelete(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	// ours deleted, theirs modified -> delete/modify conflict.
	r1 := Merge(base, buildIndex(t), buildIndex(t, entry("a.txt", "a2")))
	require.Equal(t, DeleteModify, r1.Paths[0].Case)
	require.True(t, r1.Paths[0].Case.IsConflict())

	// ours modified, theirs deleted -> modify/delete conflict.
	r2 := Merge(base, buildIndex(t, entry("a.txt", "a2")), buildIndex(t))
	require.Equal(t, ModifyDelete, r2.Paths[0].Case)
	require.True(t, r2.Paths[0].Case.IsConflict())
}

func TestApplyNonConflictingUpdatesBaseIndex(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"), entry("b.txt", "b"))
	ours := buildIndex(t, entry("a.txt", "a"), entry("b.txt", "b"))
	theirs := buildIndex(t, entry("a.txt", "a2"), entry("b.txt", "b"))

	result := Merge(base, ours, theirs)
	require.Empty(t, result.Conflicts)

	ed := index.NewEditor(ours)
	Apply(result, ed)
	merged, err := ed.Apply()
	require.NoError(t, err)

	e, err := merged.Entry("a.txt")
	require.NoError(t, err)
	require.Equal(t, blobID("a2"), e.ID)
	require.Equal(t, index.Merged, e.Stage)
}

func TestApplyConflictStagesAllThree(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "base"))
	ours := buildIndex(t, entry("a.txt", "ours"))
	theirs := buildIndex(t, entry("a.txt", "theirs"))

	result := Merge(base, ours, theirs)
	require.Len(t, result.Conflicts, 1)

	ed := index.NewEditor(ours)
	Apply(result, ed)
	merged, err := ed.Apply()
	require.NoError(t, err)
	require.True(t, merged.HasConflicts())

	stages := merged.EntriesAtStages("a.txt")
	require.Len(t, stages, 3)
}

func TestApplyDeletedByUsRemovesPath(t *testing.T) {
	base := buildIndex(t, entry("a.txt", "a"))
	ours := buildIndex(t)
	theirs := buildIndex(t, entry("a.txt", "a"))

	result := Merge(base, ours, theirs)

	ed := index.NewEditor(ours)
	Apply(result, ed)
	merged, err := ed.Apply()
	require.NoError(t, err)

	_, err = merged.Entry("a.txt")
	require.ErrorIs(t, err, index.ErrEntryNotFound)
}
