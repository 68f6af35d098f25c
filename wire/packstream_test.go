package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack"
)

func TestReadEntryBase(t *testing.T) {
	payload := []byte("blob content\n")

	var buf bytes.Buffer
	buf.Write(codec.PackObjectHeader(byte(pack.BlobEntry), uint64(len(payload))))
	buf.Write(codec.Deflate(payload))

	r := NewBoundedReader(&buf, 1<<20)
	entry, err := ReadEntry(r)
	require.NoError(t, err)

	base, ok := entry.(*BasePackEntry)
	require.True(t, ok)
	require.Equal(t, object.BlobType, base.Type)
	require.Equal(t, payload, base.Payload)
}

func TestReadEntryOFSDelta(t *testing.T) {
	deltaBytes := []byte("fake delta instructions")

	var buf bytes.Buffer
	buf.Write(codec.PackObjectHeader(byte(pack.OFSDeltaEntry), uint64(len(deltaBytes))))
	buf.Write(codec.WriteOFSDeltaOffset(37))
	buf.Write(codec.Deflate(deltaBytes))

	r := NewBoundedReader(&buf, 1<<20)
	entry, err := ReadEntry(r)
	require.NoError(t, err)

	delta, ok := entry.(*DeltaPackEntry)
	require.True(t, ok)
	require.Equal(t, int64(0-37), delta.BaseOffset)
	require.Equal(t, deltaBytes, delta.Payload)
}

func TestReadHeaderRejectsBadSignature(t *testing.T) {
	buf := bytes.NewBufferString("NOPE\x00\x00\x00\x02\x00\x00\x00\x01")
	r := NewBoundedReader(buf, 1<<20)
	_, _, err := ReadHeader(r)
	require.Error(t, err)
}
