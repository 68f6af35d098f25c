package objstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/rawstore"
)

func newTestStore() *Store {
	return New(rawstore.NewMemory())
}

func person(name string) object.PersonIdent {
	return object.PersonIdent{Name: name, Email: name + "@example.com", When: 1000, TZOffset: 0}
}

func TestBlobsStoreLoad(t *testing.T) {
	blobs := NewBlobs(newTestStore())

	id, err := blobs.Store([]byte("hello"))
	require.NoError(t, err)

	content, err := blobs.Load(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), content)

	ok, err := blobs.Has(id)
	require.NoError(t, err)
	require.True(t, ok)

	size, err := blobs.Size(id)
	require.NoError(t, err)
	require.Equal(t, 5, size)
}

func TestTreesStoreLoadGetEntry(t *testing.T) {
	trees := NewTrees(newTestStore())
	blobID := object.Hash(object.BlobType, []byte("content"))

	id, err := trees.Store([]object.TreeEntry{
		{Name: "file.txt", Mode: filemode.Regular, ID: blobID},
	})
	require.NoError(t, err)

	tr, err := trees.Load(id)
	require.NoError(t, err)
	require.Len(t, tr.Entries, 1)

	entry, ok, err := trees.GetEntry(id, "file.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blobID, entry.ID)

	_, ok, err = trees.GetEntry(id, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlobWrongTypeRejected(t *testing.T) {
	store := newTestStore()
	trees := NewTrees(store)
	blobs := NewBlobs(store)

	treeID, err := trees.Store(nil)
	require.NoError(t, err)

	_, err = blobs.Load(treeID)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestAncestryAndMergeBase(t *testing.T) {
	store := newTestStore()
	trees := NewTrees(store)
	commits := NewCommits(store)

	emptyTreeID, err := trees.Store(nil)
	require.NoError(t, err)

	rootID, err := commits.Store(&object.Commit{
		TreeID: emptyTreeID, Author: person("root"), Committer: person("root"), Message: "root\n",
	})
	require.NoError(t, err)

	c1ID, err := commits.Store(&object.Commit{
		TreeID: emptyTreeID, ParentIDs: []codec.ID{rootID},
		Author: person("c1"), Committer: person("c1"), Message: "c1\n",
	})
	require.NoError(t, err)

	a2ID, err := commits.Store(&object.Commit{
		TreeID: emptyTreeID, ParentIDs: []codec.ID{c1ID},
		Author: person("a2"), Committer: person("a2"), Message: "a2\n",
	})
	require.NoError(t, err)

	b2ID, err := commits.Store(&object.Commit{
		TreeID: emptyTreeID, ParentIDs: []codec.ID{c1ID},
		Author: person("b2"), Committer: person("b2"), Message: "b2\n",
	})
	require.NoError(t, err)

	isAnc, err := commits.IsAncestor(rootID, a2ID)
	require.NoError(t, err)
	require.True(t, isAnc)

	isAnc, err = commits.IsAncestor(a2ID, b2ID)
	require.NoError(t, err)
	require.False(t, isAnc)

	bases, err := commits.FindMergeBase(a2ID, b2ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []codec.ID{c1ID}, bases)

	// root is a common ancestor too, but not minimal (c1 is closer and
	// root is reachable from c1), so it must not appear in the result.
	for _, base := range bases {
		require.NotEqual(t, rootID, base)
	}

	var parents []codec.ID
	require.NoError(t, commits.WalkAncestry(a2ID, WalkOptions{}, func(id codec.ID, c *object.Commit) (bool, error) {
		parents = append(parents, id)
		return true, nil
	}))
	require.ElementsMatch(t, []codec.ID{a2ID, c1ID, rootID}, parents)

	limited := 0
	require.NoError(t, commits.WalkAncestry(a2ID, WalkOptions{Limit: 1}, func(id codec.ID, c *object.Commit) (bool, error) {
		limited++
		return true, nil
	}))
	require.Equal(t, 1, limited)
}

func TestTagsGetTargetAndPeel(t *testing.T) {
	store := newTestStore()
	trees := NewTrees(store)
	commits := NewCommits(store)
	tags := NewTags(store)

	emptyTreeID, err := trees.Store(nil)
	require.NoError(t, err)

	commitID, err := commits.Store(&object.Commit{
		TreeID: emptyTreeID, Author: person("a"), Committer: person("a"), Message: "msg\n",
	})
	require.NoError(t, err)

	innerTagID, err := tags.Store(&object.Tag{
		Object: commitID, ObjectType: object.CommitType, Name: "v1", Tagger: person("tagger"), Message: "v1\n",
	})
	require.NoError(t, err)

	outerTagID, err := tags.Store(&object.Tag{
		Object: innerTagID, ObjectType: object.TagType, Name: "v1-alias", Tagger: person("tagger"), Message: "alias\n",
	})
	require.NoError(t, err)

	target, typ, err := tags.GetTarget(outerTagID, false)
	require.NoError(t, err)
	require.Equal(t, innerTagID, target)
	require.Equal(t, object.TagType, typ)

	target, typ, err = tags.GetTarget(outerTagID, true)
	require.NoError(t, err)
	require.Equal(t, commitID, target)
	require.Equal(t, object.CommitType, typ)
}
