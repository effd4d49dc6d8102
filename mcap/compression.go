package mcap

import (
	"bytes"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Compression names the algorithm applied to chunk records. The empty value
// writes chunks uncompressed.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZSTD Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// compressor turns the uncompressed records of a sealed chunk into the bytes
// stored in the Chunk record.
type compressor interface {
	compress(dst, src []byte) ([]byte, error)
}

func newCompressor(c Compression) (compressor, error) {
	switch c {
	case CompressionNone:
		return nopCompressor{}, nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, errors.Wrap(err, "zstd encoder")
		}
		return &zstdCompressor{enc: enc}, nil
	case CompressionLZ4:
		return &lz4Compressor{w: lz4.NewWriter(nil)}, nil
	default:
		return nil, errors.Errorf("mcap: unsupported compression %q", string(c))
	}
}

type nopCompressor struct{}

func (nopCompressor) compress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z *zstdCompressor) compress(dst, src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

type lz4Compressor struct {
	w   *lz4.Writer
	buf bytes.Buffer
}

func (l *lz4Compressor) compress(dst, src []byte) ([]byte, error) {
	l.buf.Reset()
	l.w.Reset(&l.buf)
	if _, err := l.w.Write(src); err != nil {
		return dst, errors.Wrap(err, "lz4 compress")
	}
	if err := l.w.Close(); err != nil {
		return dst, errors.Wrap(err, "lz4 compress")
	}
	return append(dst[:0], l.buf.Bytes()...), nil
}

// maxChunkPrealloc caps the buffer reserved up front for a decompressed
// chunk. The declared size is read from the file and may be corrupt.
const maxChunkPrealloc = 16 << 20

// decompress reverses the chunk compression named by c. size is the
// declared uncompressed length; decoding stops one byte past it so callers
// can detect a mismatch without trusting size for allocation.
func decompress(c Compression, src []byte, size uint64) ([]byte, error) {
	hint := size
	if hint > maxChunkPrealloc {
		hint = maxChunkPrealloc
	}
	limit := int64(math.MaxInt64)
	if size < math.MaxInt64 {
		limit = int64(size) + 1
	}
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(limit)))
		if err != nil {
			return nil, errors.Wrap(err, "zstd decoder")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, make([]byte, 0, hint))
		return out, errors.Wrap(err, "zstd decompress")
	case CompressionLZ4:
		out := bytes.NewBuffer(make([]byte, 0, hint))
		_, err := io.Copy(out, io.LimitReader(lz4.NewReader(bytes.NewReader(src)), limit))
		return out.Bytes(), errors.Wrap(err, "lz4 decompress")
	default:
		return nil, errors.Errorf("mcap: unsupported compression %q", string(c))
	}
}
