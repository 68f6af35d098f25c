package codec

import (
	"bytes"
	"compress/zlib"
	"io"
	"sync"
)

// pooled zlib readers/writers, grounded on utils/sync/zlib.go's pooling
// discipline: packs contain thousands of independently-framed zlib streams,
// and allocating a fresh (de)compressor per entry dominates GC pressure on
// large repacks.
var (
	zlibInitBytes = []byte{0x78, 0x9c, 0x01, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}

	zlibReaderPool = sync.Pool{
		New: func() any {
			r, _ := zlib.NewReader(bytes.NewReader(zlibInitBytes))
			return r
		},
	}
	zlibWriterPool = sync.Pool{
		New: func() any {
			return zlib.NewWriter(io.Discard)
		},
	}
)

// Inflater is a pooled zlib (RFC1950) reader. Callers MUST call Release
// when done to return the reader to the pool.
type Inflater struct {
	r zlib.Resetter
	io.Reader
}

// NewInflater wraps r in a pooled zlib (RFC1950) reader.
func NewInflater(r io.Reader) (*Inflater, error) {
	zr := zlibReaderPool.Get().(io.ReadCloser)
	resetter := zr.(zlib.Resetter)
	if err := resetter.Reset(r, nil); err != nil {
		zlibReaderPool.Put(zr)
		return nil, err
	}
	return &Inflater{r: resetter, Reader: zr}, nil
}

// Release returns the underlying zlib reader to the pool. The Inflater must
// not be used afterwards.
func (z *Inflater) Release() {
	if c, ok := z.Reader.(io.Closer); ok {
		c.Close()
	}
	zlibReaderPool.Put(z.Reader)
}

// Deflater is a pooled zlib (RFC1950) writer.
type Deflater struct {
	*zlib.Writer
}

// NewDeflater wraps w in a pooled zlib writer.
func NewDeflater(w io.Writer) *Deflater {
	zw := zlibWriterPool.Get().(*zlib.Writer)
	zw.Reset(w)
	return &Deflater{Writer: zw}
}

// Release flushes and returns the underlying zlib writer to the pool. The
// Deflater must not be used afterwards.
func (z *Deflater) Release() error {
	err := z.Writer.Close()
	zlibWriterPool.Put(z.Writer)
	return err
}

// Deflate zlib-compresses b in one shot.
func Deflate(b []byte) []byte {
	var buf bytes.Buffer
	zw := NewDeflater(&buf)
	zw.Write(b)
	zw.Release()
	return buf.Bytes()
}

// Inflate zlib-decompresses b in one shot, when the exact decompressed size
// is known in advance.
func Inflate(b []byte, size int) ([]byte, error) {
	zr, err := NewInflater(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Release()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	return out, nil
}

// countingReader tracks exactly how many bytes have been pulled from the
// underlying reader, which is how DecompressPartial reports consumption.
//
// It is critical that this type implement io.ByteReader itself: flate only
// demand-reads one byte at a time from a source that already satisfies
// io.ByteReader, but wraps any other io.Reader in its own internally
// buffered reader first, which would pull far more bytes than the current
// zlib stream actually occupies and make offset tracking useless for
// concatenated pack entries.
type countingReader struct {
	r *bytes.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// DecompressPartial decompresses a single zlib stream that begins at the
// start of buf, stopping exactly at the end of that stream. It returns the
// decompressed bytes and the number of input bytes consumed. This is the
// primitive pack reading depends on: pack entries are back-to-back zlib
// streams with no length prefix, so the only way to find where one ends is
// to decompress it and ask zlib how much input it read.
func DecompressPartial(buf []byte, sizeHint int) (decompressed []byte, consumed int, err error) {
	cr := &countingReader{r: bytes.NewReader(buf)}
	zr, err := NewInflater(cr)
	if err != nil {
		return nil, 0, err
	}
	defer zr.Release()

	out := make([]byte, 0, sizeHint)
	chunk := make([]byte, 32*1024)
	for {
		n, rerr := zr.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, 0, rerr
		}
	}
	return out, int(cr.n), nil
}
