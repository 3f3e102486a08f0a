package compressors

import (
	"fmt"
	"io"
	"strings"
)

// Type identifies the compression algorithm applied to archived content.
type Type byte

const (
	TypeNone   Type = 0
	TypeSnappy Type = 1
	TypeLZ4    Type = 2
	TypeZstd   Type = 3
)

// String returns the string representation of the Type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeSnappy:
		return "snappy"
	case TypeLZ4:
		return "lz4"
	case TypeZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseType converts a configuration string to a Type. An empty string means
// no compression.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypeNone, nil
	case "snappy":
		return TypeSnappy, nil
	case "lz4":
		return TypeLZ4, nil
	case "zstd":
		return TypeZstd, nil
	default:
		return TypeNone, fmt.Errorf("unknown compression type %q", s)
	}
}

// Compressor wraps content streams written into and read back from archives.
type Compressor interface {
	// WrapWriter returns a WriteCloser that compresses into w. Closing the
	// returned writer finalizes the compressed stream; it does not close w.
	WrapWriter(w io.Writer) (io.WriteCloser, error)
	// WrapReader returns a ReadCloser that decompresses from r.
	WrapReader(r io.Reader) (io.ReadCloser, error)
	// Type returns the Type identifier for this compressor.
	Type() Type
	// Suffix returns the file-name suffix recorded on archived content
	// entries, empty for no compression.
	Suffix() string
}

var (
	defaultNone   = &NoCompressionCompressor{}
	defaultSnappy = NewSnappyCompressor()
	defaultLZ4    = NewLz4Compressor()
	defaultZstd   = NewZstdCompressor()
)

// ForType returns the shared Compressor for t.
func ForType(t Type) (Compressor, error) {
	switch t {
	case TypeNone:
		return defaultNone, nil
	case TypeSnappy:
		return defaultSnappy, nil
	case TypeLZ4:
		return defaultLZ4, nil
	case TypeZstd:
		return defaultZstd, nil
	default:
		return nil, fmt.Errorf("unknown compression type %d", t)
	}
}

// ForSuffix returns the shared Compressor that records the given file-name
// suffix on content entries.
func ForSuffix(suffix string) (Compressor, error) {
	switch suffix {
	case "":
		return defaultNone, nil
	case defaultSnappy.Suffix():
		return defaultSnappy, nil
	case defaultLZ4.Suffix():
		return defaultLZ4, nil
	case defaultZstd.Suffix():
		return defaultZstd, nil
	default:
		return nil, fmt.Errorf("unknown compression suffix %q", suffix)
	}
}
