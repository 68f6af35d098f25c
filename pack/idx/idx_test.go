package idx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []Entry{
		{ID: codec.Sum([]byte("a")), Offset: 12, CRC32: 0x11111111},
		{ID: codec.Sum([]byte("b")), Offset: 9999999999, CRC32: 0x22222222},
		{ID: codec.Sum([]byte("c")), Offset: 4096, CRC32: 0x33333333},
	}
	packChecksum := codec.Sum([]byte("pack"))
	idx := New(packChecksum, entries)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), decoded.Len())
	require.Equal(t, packChecksum, decoded.PackChecksum)

	for _, e := range entries {
		off, ok := decoded.FindOffset(e.ID)
		require.True(t, ok)
		require.Equal(t, e.Offset, off)

		crc, ok := decoded.FindCRC32(e.ID)
		require.True(t, ok)
		require.Equal(t, e.CRC32, crc)
	}
}

func TestFindOffsetMissing(t *testing.T) {
	idx := New(codec.ID{}, []Entry{{ID: codec.Sum([]byte("a")), Offset: 1}})
	_, ok := idx.FindOffset(codec.Sum([]byte("nonexistent")))
	require.False(t, ok)
}

func TestFindID(t *testing.T) {
	id := codec.Sum([]byte("x"))
	idx := New(codec.ID{}, []Entry{{ID: id, Offset: 42}})
	got, ok := idx.FindID(42)
	require.True(t, ok)
	require.Equal(t, id, got)
}
