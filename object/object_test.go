package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
)

func TestBlobHash(t *testing.T) {
	id := Hash(BlobType, []byte("hello"))
	require.Equal(t, "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0", id.String())
}

func TestTreeRoundTripAndCanonicalOrder(t *testing.T) {
	fileID := codec.Sum([]byte("blob 4\x00file"))
	dirID := codec.Sum([]byte("tree 0\x00"))

	tr := &Tree{Entries: []TreeEntry{
		{Mode: filemode.Regular, Name: "foo.txt", ID: fileID},
		{Mode: filemode.Dir, Name: "foo", ID: dirID},
	}}

	payload, err := tr.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTree(payload)
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 2)
	// The directory compares as "foo/", and '.' (0x2e) < '/' (0x2f), so
	// "foo.txt" comes first.
	require.Equal(t, "foo.txt", decoded.Entries[0].Name)
	require.Equal(t, "foo", decoded.Entries[1].Name)

	reEncoded, err := decoded.Encode()
	require.NoError(t, err)
	require.Equal(t, payload, reEncoded)
}

func TestEmptyTreeID(t *testing.T) {
	require.Equal(t, "4b825dc642cb6eb9a060e54bf8d69288fbee4904", EmptyTreeID.String())
}

func TestCommitRoundTrip(t *testing.T) {
	parent := codec.Sum([]byte("commit 0\x00"))
	c := &Commit{
		TreeID:    EmptyTreeID,
		ParentIDs: []codec.ID{parent},
		Author:    PersonIdent{Name: "A U Thor", Email: "author@example.com", When: 1234567890, TZOffset: -420},
		Committer: PersonIdent{Name: "A U Thor", Email: "author@example.com", When: 1234567890, TZOffset: -420},
		Message:   "initial commit\n",
	}

	payload, err := c.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCommit(payload)
	require.NoError(t, err)
	require.Equal(t, c.TreeID, decoded.TreeID)
	require.Equal(t, c.ParentIDs, decoded.ParentIDs)
	require.Equal(t, c.Author, decoded.Author)
	require.Equal(t, c.Message, decoded.Message)

	reEncoded, err := decoded.Encode()
	require.NoError(t, err)
	require.Equal(t, payload, reEncoded)
}

func TestTagRoundTrip(t *testing.T) {
	target := codec.Sum([]byte("commit 0\x00"))
	tg := &Tag{
		Object:     target,
		ObjectType: CommitType,
		Name:       "v1.0.0",
		Tagger:     PersonIdent{Name: "Releaser", Email: "rel@example.com", When: 42, TZOffset: 0},
		Message:    "release\n",
	}

	payload, err := tg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTag(payload)
	require.NoError(t, err)
	require.Equal(t, tg.Object, decoded.Object)
	require.Equal(t, tg.ObjectType, decoded.ObjectType)
	require.Equal(t, tg.Name, decoded.Name)
	require.Equal(t, tg.Message, decoded.Message)
}

func TestPersonIdentRoundTrip(t *testing.T) {
	p := PersonIdent{Name: "Jane Doe", Email: "jane@example.com", When: 1600000000, TZOffset: 330}
	parsed, err := ParsePersonIdent(p.Encode())
	require.NoError(t, err)
	require.Equal(t, p, parsed)
}
