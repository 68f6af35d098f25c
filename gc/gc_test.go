package gc

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/history"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack"
	"github.com/statewalker/vcs-sub012/rawstore"
	"github.com/statewalker/vcs-sub012/refs"
)

func person(name string) object.PersonIdent {
	return object.PersonIdent{Name: name, Email: name + "@example.com", When: 1000, TZOffset: 0}
}

func newTestRepacker(t *testing.T) (*Repacker, *history.History, *rawstore.Loose) {
	t.Helper()
	objFS := memfs.New()
	loose := rawstore.NewLoose(objFS)

	h, err := history.Initialize(loose, memfs.New())
	require.NoError(t, err)

	packs := pack.NewDirectory(10)
	r := NewRepacker(h, loose, packs, memfs.New())
	return r, h, loose
}

func TestRunPacksReachableAndPrunesLoose(t *testing.T) {
	r, h, loose := newTestRepacker(t)

	blobID, err := h.Blobs.Store([]byte("hello world\n"))
	require.NoError(t, err)
	treeID, err := h.Trees.Store([]object.TreeEntry{
		{Name: "f.txt", Mode: filemode.Regular, ID: blobID},
	})
	require.NoError(t, err)
	commitID, err := h.Commits.Store(&object.Commit{
		TreeID: treeID, Author: person("a"), Committer: person("a"), Message: "root\n",
	})
	require.NoError(t, err)
	require.NoError(t, h.Refs.SetReference(refs.NewHashReference(history.DefaultBranch, commitID), nil))
	require.NoError(t, h.Refs.SetReference(refs.NewSymbolicReference(refs.HEAD, history.DefaultBranch), nil))

	result, err := r.Run(DefaultOptions, nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.ObjectCount) // commit, tree, blob
	require.Equal(t, 3, result.RemovedLoose)

	for _, id := range []codec.ID{commitID, treeID, blobID} {
		ok, err := loose.Has(id)
		require.NoError(t, err)
		require.False(t, ok, "object should have been pruned from loose storage")

		_, _, found := r.Packs.FindPack(id)
		require.True(t, found, "object should be present in the new pack")
	}

	// HEAD and the default branch still resolve after the repack.
	resolved, err := h.Refs.ResolveReference(refs.HEAD)
	require.NoError(t, err)
	require.Equal(t, commitID, resolved.Hash())
}

func TestRunLeavesUnreachableObjectsLoose(t *testing.T) {
	r, h, loose := newTestRepacker(t)

	blobID, err := h.Blobs.Store([]byte("reachable\n"))
	require.NoError(t, err)
	treeID, err := h.Trees.Store([]object.TreeEntry{
		{Name: "f.txt", Mode: filemode.Regular, ID: blobID},
	})
	require.NoError(t, err)
	commitID, err := h.Commits.Store(&object.Commit{
		TreeID: treeID, Author: person("a"), Committer: person("a"), Message: "root\n",
	})
	require.NoError(t, err)
	require.NoError(t, h.Refs.SetReference(refs.NewHashReference(history.DefaultBranch, commitID), nil))

	orphanID, err := h.Blobs.Store([]byte("nobody points at me\n"))
	require.NoError(t, err)

	result, err := r.Run(DefaultOptions, nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.ObjectCount)

	ok, err := loose.Has(orphanID)
	require.NoError(t, err)
	require.True(t, ok, "unreachable object must stay loose, not be pruned")

	_, _, found := r.Packs.FindPack(orphanID)
	require.False(t, found, "unreachable object must not land in the new pack")
}

func TestRunDeltifiesNearDuplicateBlobs(t *testing.T) {
	r, h, _ := newTestRepacker(t)

	base := make([]byte, 4096)
	for i := range base {
		base[i] = byte(i % 251)
	}
	modified := append([]byte{}, base...)
	modified[10] = 0xFF

	baseID, err := h.Blobs.Store(base)
	require.NoError(t, err)
	modID, err := h.Blobs.Store(modified)
	require.NoError(t, err)

	treeID, err := h.Trees.Store([]object.TreeEntry{
		{Name: "base.bin", Mode: filemode.Regular, ID: baseID},
		{Name: "mod.bin", Mode: filemode.Regular, ID: modID},
	})
	require.NoError(t, err)
	commitID, err := h.Commits.Store(&object.Commit{
		TreeID: treeID, Author: person("a"), Committer: person("a"), Message: "root\n",
	})
	require.NoError(t, err)
	require.NoError(t, h.Refs.SetReference(refs.NewHashReference(history.DefaultBranch, commitID), nil))

	result, err := r.Run(DefaultOptions, nil)
	require.NoError(t, err)

	checksum, reader, found := r.Packs.FindPack(baseID)
	require.True(t, found)
	require.Equal(t, result.PackChecksum, checksum)

	typ, got, err := reader.Get(modID)
	require.NoError(t, err)
	require.Equal(t, object.BlobType, typ)
	require.Equal(t, modified, got)
}

func TestShouldRunHonorsThresholdsAndMinInterval(t *testing.T) {
	opts := DefaultOptions
	now := time.Unix(1_000_000, 0)
	lastRun := now.Add(-opts.MinInterval * 2)

	require.False(t, ShouldRun(Stats{LooseObjectCount: 1}, opts, lastRun, now))
	require.True(t, ShouldRun(Stats{LooseObjectCount: opts.LooseBlobThreshold + 1}, opts, lastRun, now))
	require.True(t, ShouldRun(Stats{MaxChainDepth: opts.MaxChainDepth + 1}, opts, lastRun, now))

	// Too soon since the last automatic run, even past threshold.
	require.False(t, ShouldRun(Stats{LooseObjectCount: opts.LooseBlobThreshold + 1}, opts, now.Add(-1*time.Second), now))
}

func TestLoadExistingRegistersPacksFromDisk(t *testing.T) {
	r, h, _ := newTestRepacker(t)

	blobID, err := h.Blobs.Store([]byte("x"))
	require.NoError(t, err)
	treeID, err := h.Trees.Store([]object.TreeEntry{
		{Name: "x.txt", Mode: filemode.Regular, ID: blobID},
	})
	require.NoError(t, err)
	commitID, err := h.Commits.Store(&object.Commit{
		TreeID: treeID, Author: person("a"), Committer: person("a"), Message: "root\n",
	})
	require.NoError(t, err)
	require.NoError(t, h.Refs.SetReference(refs.NewHashReference(history.DefaultBranch, commitID), nil))

	_, err = r.Run(DefaultOptions, nil)
	require.NoError(t, err)

	packs2 := pack.NewDirectory(10)
	r2 := NewRepacker(h, rawstore.NewLoose(memfs.New()), packs2, r.FS)
	require.NoError(t, r2.LoadExisting())

	_, _, found := packs2.FindPack(blobID)
	require.True(t, found)
}
