package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuscommit/compressors"
	"github.com/INLOpen/nexuscommit/core"
)

func mustCompressor(t *testing.T, typ compressors.Type) compressors.Compressor {
	t.Helper()
	c, err := compressors.ForType(typ)
	require.NoError(t, err)
	return c
}

func TestEncodeDecodeUpsert(t *testing.T) {
	for _, typ := range []compressors.Type{
		compressors.TypeNone,
		compressors.TypeSnappy,
		compressors.TypeLZ4,
		compressors.TypeZstd,
	} {
		t.Run(typ.String(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, FileName("0000001", core.OpUpsert))

			meta := core.NewMetadata()
			meta.Add("title", "A Document")
			meta.Add("keywords", "one", "two")
			meta.Add("title", "Secondary Title")
			body := strings.Repeat("document body content. ", 50)

			req := core.NewUpsertRequest("https://example.com/doc", meta, strings.NewReader(body))
			require.NoError(t, Encode(path, req, mustCompressor(t, typ)))

			d, err := Decode(path)
			require.NoError(t, err)
			defer d.Close()

			require.Equal(t, core.OpUpsert, d.Request.Operation())
			assert.Equal(t, "https://example.com/doc", d.Request.Reference())
			assert.Equal(t, []string{"title", "keywords"}, d.Request.Meta().Keys())
			assert.Equal(t, []string{"A Document", "Secondary Title"}, d.Request.Meta().Values("title"))
			assert.Equal(t, []string{"one", "two"}, d.Request.Meta().Values("keywords"))

			upsert, ok := d.Request.(*core.UpsertRequest)
			require.True(t, ok)
			got, err := io.ReadAll(upsert.Content())
			require.NoError(t, err)
			assert.Equal(t, body, string(got))
		})
	}
}

func TestEncodeDecodeDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("0000002", core.OpDelete))

	meta := core.NewMetadata()
	meta.Add("reason", "expired")
	req := core.NewDeleteRequest("https://example.com/gone", meta)
	require.NoError(t, Encode(path, req, mustCompressor(t, compressors.TypeNone)))

	d, err := Decode(path)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, core.OpDelete, d.Request.Operation())
	assert.Equal(t, "https://example.com/gone", d.Request.Reference())
	assert.Equal(t, "expired", d.Request.Meta().Get("reason"))
}

func TestEncodeUpsertWithNilContent(t *testing.T) {
	// A metadata-only upsert must still decode as an upsert: presence of the
	// content entry, not its size, decides the operation.
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("0000003", core.OpUpsert))

	req := core.NewUpsertRequest("ref", nil, nil)
	require.NoError(t, Encode(path, req, mustCompressor(t, compressors.TypeZstd)))

	d, err := Decode(path)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, core.OpUpsert, d.Request.Operation())
	upsert := d.Request.(*core.UpsertRequest)
	got, err := io.ReadAll(upsert.Content())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeMissingFileIsFatal(t *testing.T) {
	_, err := Decode(filepath.Join(t.TempDir(), "absent-upsert.zip"))
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestDecodeGarbageIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn-upsert.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0644))

	_, err := Decode(path)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func writeRawZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestDecodeStructuralProblemsAreFatal(t *testing.T) {
	testCases := []struct {
		name    string
		entries map[string]string
	}{
		{
			name:    "missing reference entry",
			entries: map[string]string{"metadata": "k=v\n"},
		},
		{
			name:    "missing metadata entry",
			entries: map[string]string{"reference": "ref"},
		},
		{
			name: "unknown content suffix",
			entries: map[string]string{
				"reference":  "ref",
				"metadata":   "k=v\n",
				"content.gz": "x",
			},
		},
		{
			name: "duplicate content entries",
			entries: map[string]string{
				"reference":   "ref",
				"metadata":    "k=v\n",
				"content":     "a",
				"content.zst": "b",
			},
		},
		{
			name: "malformed metadata",
			entries: map[string]string{
				"reference": "ref",
				"metadata":  "no separator\n",
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad-upsert.zip")
			writeRawZip(t, path, tc.entries)

			_, err := Decode(path)
			require.Error(t, err)
			assert.True(t, core.IsFatal(err), "decode error should be fatal: %v", err)
		})
	}
}

func TestKindAndFileName(t *testing.T) {
	op, ok := Kind("0000005-upsert.zip")
	require.True(t, ok)
	assert.Equal(t, core.OpUpsert, op)

	op, ok = Kind("0000006-delete.zip")
	require.True(t, ok)
	assert.Equal(t, core.OpDelete, op)

	_, ok = Kind("notes.txt")
	assert.False(t, ok)
	assert.False(t, IsArchive(".lock"))

	assert.Equal(t, "07-upsert.zip", FileName("07", core.OpUpsert))
	assert.Equal(t, "07-delete.zip", FileName("07", core.OpDelete))
}

func TestDecodedCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("0000008", core.OpUpsert))
	req := core.NewUpsertRequest("ref", nil, strings.NewReader("x"))
	require.NoError(t, Encode(path, req, mustCompressor(t, compressors.TypeNone)))

	d, err := Decode(path)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}
