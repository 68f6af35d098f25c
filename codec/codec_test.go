package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumAndID(t *testing.T) {
	id := Sum([]byte("blob 5\x00hello"))
	require.Equal(t, "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0", id.String())

	parsed, err := NewID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestDeflateInflateRoundTrip(t *testing.T) {
	payload := []byte("blob 5\x00hello")
	compressed := Deflate(payload)

	out, err := Inflate(compressed, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestDecompressPartialConsumesExactBytes(t *testing.T) {
	a := Deflate([]byte("first entry payload"))
	b := Deflate([]byte("second entry payload, different length"))
	concat := append(append([]byte{}, a...), b...)

	outA, consumedA, err := DecompressPartial(concat, 0)
	require.NoError(t, err)
	require.Equal(t, "first entry payload", string(outA))
	require.Equal(t, len(a), consumedA)

	outB, consumedB, err := DecompressPartial(concat[consumedA:], 0)
	require.NoError(t, err)
	require.Equal(t, "second entry payload, different length", string(outB))
	require.Equal(t, len(b), consumedB)
}

func TestLEB128RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40} {
		buf := WriteLEB128(nil, v)
		got, rest := ReadLEB128(buf)
		require.Equal(t, v, got)
		require.Empty(t, rest)
	}
}

func TestPackObjectHeaderRoundTrip(t *testing.T) {
	for _, size := range []uint64{0, 10, 15, 16, 4096, 1 << 30} {
		buf := PackObjectHeader(3, size)
		gotType, gotSize, err := ReadPackObjectHeader(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, byte(3), gotType)
		require.Equal(t, size, gotSize)
	}
}

func TestOFSDeltaOffsetRoundTrip(t *testing.T) {
	for _, off := range []int64{0, 1, 127, 128, 16383, 16384, 1 << 28} {
		buf := WriteOFSDeltaOffset(off)
		got, err := ReadOFSDeltaOffset(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, off, got)
	}
}
