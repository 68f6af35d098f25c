// Package wire implements the moving parts of receiving and serving
// Git's pack-based smart protocol over an already-framed byte stream:
// a bounded reader that can pull a whole zlib stream out of an
// otherwise unterminated sequence of back-to-back entries, a
// streaming pack-entry parser, an object cache for objects read
// before the stream's delta bases have arrived, and the pkt-line
// session that drives upload-pack/receive-pack.
package wire

import (
	"errors"
	"io"

	"github.com/statewalker/vcs-sub012/codec"
)

// ErrBufferExceeded is returned when a single entry's compressed
// payload would require growing the bounded reader's buffer past its
// configured maximum, which guards against a corrupt or hostile stream
// claiming an unbounded zlib stream length.
var ErrBufferExceeded = errors.New("wire: compressed entry exceeds buffer limit")

// BoundedReader wraps an incoming byte stream with a growable,
// capped-size lookahead buffer. Pack entries arrive as back-to-back
// zlib streams with no length prefix (codec.DecompressPartial is the
// only way to find where one ends), so the reader has to be able to
// hand zlib progressively more trailing bytes until it reports how
// much it consumed.
type BoundedReader struct {
	r   io.Reader
	buf []byte // unconsumed bytes already pulled from r
	max int
	pos int64 // total bytes consumed so far
}

// NewBoundedReader wraps r; max bounds how large the internal lookahead
// buffer may grow before ReadCompressed gives up with ErrBufferExceeded.
func NewBoundedReader(r io.Reader, max int) *BoundedReader {
	return &BoundedReader{r: r, max: max}
}

// Pos reports how many bytes have been consumed so far, which is the
// offset OFS_DELTA entries resolve relative to.
func (b *BoundedReader) Pos() int64 { return b.pos }

// fill ensures at least n bytes are buffered, short of EOF.
func (b *BoundedReader) fill(n int) error {
	for len(b.buf) < n {
		chunk := make([]byte, 32*1024)
		rn, err := b.r.Read(chunk)
		if rn > 0 {
			b.buf = append(b.buf, chunk[:rn]...)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadByte implements io.ByteReader, which codec.ReadPackObjectHeader
// and codec.ReadOFSDeltaOffset require.
func (b *BoundedReader) ReadByte() (byte, error) {
	if err := b.fill(1); err != nil {
		return 0, err
	}
	c := b.buf[0]
	b.buf = b.buf[1:]
	b.pos++
	return c, nil
}

// ReadExact consumes exactly n bytes.
func (b *BoundedReader) ReadExact(n int) ([]byte, error) {
	if err := b.fill(n); err != nil {
		return nil, err
	}
	out := append([]byte(nil), b.buf[:n]...)
	b.buf = b.buf[n:]
	b.pos += int64(n)
	return out, nil
}

// ReadCompressed decompresses one zlib stream starting at the current
// position, growing the lookahead buffer as needed, and advances past
// exactly the bytes that stream occupied. sizeHint presizes the output
// slice; it does not bound how much is actually produced.
func (b *BoundedReader) ReadCompressed(sizeHint int) ([]byte, error) {
	grow := 4096
	for {
		out, consumed, derr := codec.DecompressPartial(b.buf, sizeHint)
		if derr == nil {
			b.buf = b.buf[consumed:]
			b.pos += int64(consumed)
			return out, nil
		}

		before := len(b.buf)
		if before >= b.max {
			return nil, ErrBufferExceeded
		}

		want := before + grow
		if want > b.max {
			want = b.max
		}
		ferr := b.fill(want)
		if len(b.buf) == before {
			// Nothing new arrived: the stream truly ended mid-entry.
			if ferr != nil {
				return nil, ferr
			}
			return nil, derr
		}
		if ferr != nil && !errors.Is(ferr, io.EOF) {
			return nil, ferr
		}
		grow *= 2
	}
}
