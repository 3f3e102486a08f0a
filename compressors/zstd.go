package compressors

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements the Compressor interface using zstd. Encoders
// and decoders are pooled: both are expensive to construct and fully
// reusable after Reset.
type ZstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

// zstdWriteCloser finalizes the frame on Close and returns the encoder to
// the pool. It does not close the underlying writer.
type zstdWriteCloser struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (zwc *zstdWriteCloser) Close() error {
	err := zwc.Encoder.Close()
	zwc.pool.Put(zwc.Encoder)
	return err
}

// zstdReadCloser returns the decoder to the pool on Close. The decoder's own
// Close is never called: it would invalidate the decoder for reuse.
type zstdReadCloser struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (zrc *zstdReadCloser) Close() error {
	zrc.pool.Put(zrc.Decoder)
	return nil
}

var _ Compressor = (*ZstdCompressor)(nil)
var _ io.WriteCloser = (*zstdWriteCloser)(nil)
var _ io.ReadCloser = (*zstdReadCloser)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{
		encoderPool: sync.Pool{
			New: func() interface{} {
				// The actual io.Writer is set during Reset.
				enc, err := zstd.NewWriter(nil)
				if err != nil {
					log.Printf("Error creating new zstd encoder: %v", err)
					return nil
				}
				return enc
			},
		},
		decoderPool: sync.Pool{
			New: func() interface{} {
				dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(100*1024*1024))
				if err != nil {
					log.Printf("Error creating new zstd decoder: %v", err)
					return nil
				}
				return dec
			},
		},
	}
}

func (c *ZstdCompressor) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	enc, ok := c.encoderPool.Get().(*zstd.Encoder)
	if !ok || enc == nil {
		return nil, fmt.Errorf("zstd encoder unavailable")
	}
	enc.Reset(w)
	return &zstdWriteCloser{Encoder: enc, pool: &c.encoderPool}, nil
}

func (c *ZstdCompressor) WrapReader(r io.Reader) (io.ReadCloser, error) {
	dec, ok := c.decoderPool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		return nil, fmt.Errorf("zstd decoder unavailable")
	}
	if err := dec.Reset(r); err != nil {
		c.decoderPool.Put(dec)
		return nil, fmt.Errorf("zstd decoder reset error: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, pool: &c.decoderPool}, nil
}

func (c *ZstdCompressor) Type() Type { return TypeZstd }

func (c *ZstdCompressor) Suffix() string { return ".zst" }
