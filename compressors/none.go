package compressors

import "io"

// NoCompressionCompressor implements the Compressor interface without
// performing compression.
type NoCompressionCompressor struct{}

var _ Compressor = (*NoCompressionCompressor)(nil)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func (c *NoCompressionCompressor) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{Writer: w}, nil
}

func (c *NoCompressionCompressor) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (c *NoCompressionCompressor) Type() Type { return TypeNone }

func (c *NoCompressionCompressor) Suffix() string { return "" }
