package codec

import "hash/crc32"

// CRC32 computes the zip-polynomial CRC-32 of b, used by pack-index v2 to
// checksum each pack entry's compressed bytes.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// NewCRC32Writer wraps crc32.NewIEEE for streaming use when the entry bytes
// are not already buffered in memory.
func NewCRC32Writer() *crc32Writer {
	return &crc32Writer{table: crc32.IEEETable}
}

type crc32Writer struct {
	table *crc32.Table
	sum   uint32
}

func (w *crc32Writer) Write(p []byte) (int, error) {
	w.sum = crc32.Update(w.sum, w.table, p)
	return len(p), nil
}

func (w *crc32Writer) Sum32() uint32 { return w.sum }
