// Package archive serializes committer requests to and from self-contained
// zip files, one request per file. An archive holds a "reference" entry, a
// "metadata" entry of key=value lines, and, for upserts only, a "content"
// entry. Presence of the content entry is what distinguishes an upsert from
// a delete; an upsert with an empty body still carries the entry. The
// content entry name records the stream compression as a suffix
// ("content", "content.sz", "content.lz4", "content.zst"), so archives are
// self-describing on decode.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/INLOpen/nexuscommit/compressors"
	"github.com/INLOpen/nexuscommit/core"
	"github.com/INLOpen/nexuscommit/sys"
)

const (
	entryReference = "reference"
	entryMetadata  = "metadata"
	entryContent   = "content"

	upsertSuffix = "-upsert.zip"
	deleteSuffix = "-delete.zip"
)

// FileName builds an archive file name from a zero-padded ordinal prefix and
// the request operation.
func FileName(prefix string, op core.Operation) string {
	if op == core.OpDelete {
		return prefix + deleteSuffix
	}
	return prefix + upsertSuffix
}

// Kind classifies an archive file name by its operation suffix. The second
// return is false for names that are not committer archives.
func Kind(filename string) (core.Operation, bool) {
	switch {
	case strings.HasSuffix(filename, upsertSuffix):
		return core.OpUpsert, true
	case strings.HasSuffix(filename, deleteSuffix):
		return core.OpDelete, true
	default:
		return 0, false
	}
}

// IsArchive reports whether filename looks like a committer archive.
func IsArchive(filename string) bool {
	_, ok := Kind(filename)
	return ok
}

// contentProvider is satisfied by upsert requests carrying a body stream.
type contentProvider interface {
	Content() io.Reader
}

// copyBuffers recycles the scratch buffers used to stream content bodies
// into archives.
var copyBuffers = core.NewGenericPool(func() *[]byte {
	buf := make([]byte, 32*1024)
	return &buf
})

// Encode writes req as a zip archive at path, consuming an upsert's content
// stream in a single pass. Failures are wrapped as core.FatalError: a
// request that cannot be persisted means the queue substrate is broken.
func Encode(path string, req core.Request, comp compressors.Compressor) error {
	f, err := sys.Create(path)
	if err != nil {
		return core.NewFatalError("encode", fmt.Errorf("create %s: %w", path, err))
	}
	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	if err := writeEntries(zw, req, comp); err != nil {
		zw.Close()
		f.Close()
		sys.Remove(path)
		return core.NewFatalError("encode", fmt.Errorf("archive %s: %w", path, err))
	}
	if err := zw.Close(); err != nil {
		f.Close()
		sys.Remove(path)
		return core.NewFatalError("encode", fmt.Errorf("finalize %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		sys.Remove(path)
		return core.NewFatalError("encode", fmt.Errorf("close %s: %w", path, err))
	}
	return nil
}

func writeEntries(zw *zip.Writer, req core.Request, comp compressors.Compressor) error {
	w, err := zw.Create(entryReference)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, req.Reference()); err != nil {
		return err
	}

	w, err = zw.Create(entryMetadata)
	if err != nil {
		return err
	}
	if _, err := req.Meta().WriteTo(w); err != nil {
		return err
	}

	if req.Operation() != core.OpUpsert {
		return nil
	}

	// Content already compressed by our own stream codec is stored raw;
	// uncompressed content goes through the zip's Deflate.
	method := zip.Deflate
	if comp.Type() != compressors.TypeNone {
		method = zip.Store
	}
	w, err = zw.CreateHeader(&zip.FileHeader{
		Name:   entryContent + comp.Suffix(),
		Method: method,
	})
	if err != nil {
		return err
	}
	cw, err := comp.WrapWriter(w)
	if err != nil {
		return err
	}
	if provider, ok := req.(contentProvider); ok && provider.Content() != nil {
		buf := copyBuffers.Get()
		_, err := io.CopyBuffer(cw, provider.Content(), *buf)
		copyBuffers.Put(buf)
		if err != nil {
			cw.Close()
			return err
		}
	}
	return cw.Close()
}

// Decoded is a request read back from an archive. For upserts the content
// stream reads lazily from the underlying file; Close releases it. Close is
// safe to call for deletes as well.
type Decoded struct {
	Request core.Request

	content io.ReadCloser
	zr      *zip.ReadCloser
}

// Close releases the archive file backing the decoded request.
func (d *Decoded) Close() error {
	var firstErr error
	if d.content != nil {
		if err := d.content.Close(); err != nil {
			firstErr = err
		}
		d.content = nil
	}
	if d.zr != nil {
		if err := d.zr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.zr = nil
	}
	return firstErr
}

// Decode reads the archive at path back into a request. The upsert/delete
// decision follows solely from the presence of a content entry. Any
// structural problem is wrapped as core.FatalError: a corrupt archive can
// never succeed on retry.
func Decode(path string) (*Decoded, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, core.NewFatalError("decode", fmt.Errorf("open %s: %w", path, err))
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	d, err := decodeEntries(zr)
	if err != nil {
		zr.Close()
		return nil, core.NewFatalError("decode", fmt.Errorf("archive %s: %w", path, err))
	}
	d.zr = zr
	return d, nil
}

func decodeEntries(zr *zip.ReadCloser) (*Decoded, error) {
	var refFile, metaFile, contentFile *zip.File
	var contentName string
	for _, f := range zr.File {
		switch {
		case f.Name == entryReference:
			refFile = f
		case f.Name == entryMetadata:
			metaFile = f
		case strings.HasPrefix(f.Name, entryContent):
			if contentFile != nil {
				return nil, fmt.Errorf("duplicate content entry %q", f.Name)
			}
			contentFile = f
			contentName = f.Name
		}
	}
	if refFile == nil {
		return nil, fmt.Errorf("missing %s entry", entryReference)
	}
	if metaFile == nil {
		return nil, fmt.Errorf("missing %s entry", entryMetadata)
	}

	rc, err := refFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open reference entry: %w", err)
	}
	refBytes, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read reference entry: %w", err)
	}
	reference := string(refBytes)

	mc, err := metaFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open metadata entry: %w", err)
	}
	meta, err := core.ReadMetadataFrom(mc)
	mc.Close()
	if err != nil {
		return nil, fmt.Errorf("read metadata entry: %w", err)
	}

	if contentFile == nil {
		return &Decoded{Request: core.NewDeleteRequest(reference, meta)}, nil
	}

	comp, err := compressors.ForSuffix(strings.TrimPrefix(contentName, entryContent))
	if err != nil {
		return nil, err
	}
	cc, err := contentFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open content entry: %w", err)
	}
	content, err := comp.WrapReader(cc)
	if err != nil {
		cc.Close()
		return nil, err
	}
	return &Decoded{
		Request: core.NewUpsertRequest(reference, meta, content),
		content: &chainedCloser{ReadCloser: content, inner: cc},
	}, nil
}

// chainedCloser closes the decompression wrapper and then the raw zip entry
// reader beneath it.
type chainedCloser struct {
	io.ReadCloser
	inner io.Closer
}

func (c *chainedCloser) Close() error {
	err := c.ReadCloser.Close()
	if ierr := c.inner.Close(); ierr != nil && err == nil {
		err = ierr
	}
	return err
}
