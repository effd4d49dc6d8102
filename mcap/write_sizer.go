package mcap

import (
	"hash"
	"hash/crc32"
	"io"
)

// writeSizer counts the bytes that reach w and keeps a running CRC32 over
// them. Only bytes the sink accepted are counted.
type writeSizer struct {
	w    io.Writer
	crc  hash.Hash32
	size uint64
}

func newWriteSizer(w io.Writer) *writeSizer {
	return &writeSizer{w: w, crc: crc32.NewIEEE()}
}

func (w *writeSizer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.size += uint64(n)
		_, _ = w.crc.Write(p[:n])
	}
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

func (w *writeSizer) Size() uint64 {
	return w.size
}

func (w *writeSizer) Checksum() uint32 {
	return w.crc.Sum32()
}

