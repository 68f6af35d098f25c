package rawstore

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemory()
	id := codec.Sum([]byte("hello"))

	ok, err := m.Has(id)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Store(id, []byte("payload")))

	ok, err = m.Has(id)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := m.Load(id)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	require.NoError(t, m.Remove(id))
	ok, err = m.Has(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLooseStoreRoundTrip(t *testing.T) {
	fs := memfs.New()
	l := NewLoose(fs)

	id := codec.Sum([]byte("blob 5\x00hello"))
	require.NoError(t, l.Store(id, []byte("blob 5\x00hello")))

	ok, err := l.Has(id)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := l.Load(id)
	require.NoError(t, err)
	require.Equal(t, []byte("blob 5\x00hello"), got)

	keys, err := l.Keys()
	require.NoError(t, err)
	require.Equal(t, []codec.ID{id}, keys)

	require.NoError(t, l.Remove(id))
	ok, err = l.Has(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOverlayPrefersMutable(t *testing.T) {
	mutable := NewMemory()
	packed := NewMemory()

	id := codec.Sum([]byte("a"))
	require.NoError(t, packed.Store(id, []byte("from-pack")))

	o := NewOverlay(mutable, packed)
	got, err := o.Load(id)
	require.NoError(t, err)
	require.Equal(t, []byte("from-pack"), got)

	require.NoError(t, o.Store(id, []byte("from-mutable")))
	got, err = o.Load(id)
	require.NoError(t, err)
	require.Equal(t, []byte("from-mutable"), got)

	keys, err := o.Keys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestOverlayMissing(t *testing.T) {
	o := NewOverlay(NewMemory(), NewMemory())
	_, err := o.Load(codec.Sum([]byte("missing")))
	require.ErrorIs(t, err, ErrNotFound)
}
