package compressors

import (
	"io"

	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements the Compressor interface using the LZ4 frame
// format.
type LZ4Compressor struct{}

// lz4ReadCloser wraps lz4.Reader to satisfy io.ReadCloser.
type lz4ReadCloser struct {
	*lz4.Reader
}

func (lrc *lz4ReadCloser) Close() error { return nil }

var _ Compressor = (*LZ4Compressor)(nil)
var _ io.ReadCloser = (*lz4ReadCloser)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	// lz4.Writer.Close finalizes the frame; the underlying writer stays open.
	return lz4.NewWriter(w), nil
}

func (c *LZ4Compressor) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return &lz4ReadCloser{Reader: lz4.NewReader(r)}, nil
}

func (c *LZ4Compressor) Type() Type { return TypeLZ4 }

func (c *LZ4Compressor) Suffix() string { return ".lz4" }
