package compressors

import (
	"io"

	"github.com/golang/snappy"
)

// SnappyCompressor implements the Compressor interface using the framed
// Snappy stream format.
type SnappyCompressor struct{}

// snappyReadCloser wraps snappy.Reader to satisfy io.ReadCloser. The reader
// holds no external resources, so Close is a no-op.
type snappyReadCloser struct {
	*snappy.Reader
}

func (src *snappyReadCloser) Close() error { return nil }

var _ Compressor = (*SnappyCompressor)(nil)
var _ io.ReadCloser = (*snappyReadCloser)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	// Close flushes the final frame without closing the underlying writer.
	return snappy.NewBufferedWriter(w), nil
}

func (c *SnappyCompressor) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return &snappyReadCloser{Reader: snappy.NewReader(r)}, nil
}

func (c *SnappyCompressor) Type() Type { return TypeSnappy }

func (c *SnappyCompressor) Suffix() string { return ".sz" }
