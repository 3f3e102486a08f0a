package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataOrderAndMultiValues(t *testing.T) {
	m := NewMetadata()
	m.Add("title", "First")
	m.Add("keywords", "go", "queue")
	m.Add("title", "Second")
	m.Add("author", "someone")

	assert.Equal(t, []string{"title", "keywords", "author"}, m.Keys())
	assert.Equal(t, "First", m.Get("title"))
	assert.Equal(t, []string{"First", "Second"}, m.Values("title"))
	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Has("keywords"))
	assert.False(t, m.Has("missing"))
	assert.Equal(t, "", m.Get("missing"))
	assert.Nil(t, m.Values("missing"))
}

func TestMetadataSetReplaces(t *testing.T) {
	m := NewMetadata()
	m.Add("k", "a", "b")
	m.Set("k", "c")
	assert.Equal(t, []string{"c"}, m.Values("k"))

	// Setting zero values removes the key entirely.
	m.Set("k")
	assert.False(t, m.Has("k"))
	assert.Empty(t, m.Keys())
}

func TestMetadataDeleteKeepsOrder(t *testing.T) {
	m := NewMetadata()
	m.Add("a", "1")
	m.Add("b", "2")
	m.Add("c", "3")
	m.Delete("b")
	assert.Equal(t, []string{"a", "c"}, m.Keys())
	m.Delete("b") // absent key is a no-op
	assert.Equal(t, 2, m.Len())
}

func TestMetadataCloneIsIndependent(t *testing.T) {
	m := NewMetadata()
	m.Add("k", "v1")
	c := m.Clone()
	c.Add("k", "v2")
	c.Add("extra", "x")

	assert.Equal(t, []string{"v1"}, m.Values("k"))
	assert.False(t, m.Has("extra"))
	assert.Equal(t, []string{"v1", "v2"}, c.Values("k"))
}

func TestMetadataValuesReturnsCopy(t *testing.T) {
	m := NewMetadata()
	m.Add("k", "v1", "v2")
	vs := m.Values("k")
	vs[0] = "mutated"
	assert.Equal(t, "v1", m.Get("k"))
}

func TestMetadataRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		fill func(m *Metadata)
	}{
		{
			name: "simple",
			fill: func(m *Metadata) {
				m.Add("title", "A Title")
				m.Add("lang", "en")
			},
		},
		{
			name: "multi-valued preserves order",
			fill: func(m *Metadata) {
				m.Add("keywords", "one", "two", "three")
				m.Add("title", "t")
				m.Add("keywords", "four")
			},
		},
		{
			name: "separator and line breaks in keys and values",
			fill: func(m *Metadata) {
				m.Add("weird=key", "a=b=c")
				m.Add("multi\nline", "first\nsecond\r\nthird")
				m.Add("back\\slash", "c:\\temp\\x")
			},
		},
		{
			name: "empty values",
			fill: func(m *Metadata) {
				m.Add("empty", "")
				m.Add("mixed", "", "v")
			},
		},
		{
			name: "unicode",
			fill: func(m *Metadata) {
				m.Add("ชื่อ", "ค่า")
				m.Add("emoji", "🚀")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMetadata()
			tc.fill(m)

			var buf bytes.Buffer
			n, err := m.WriteTo(&buf)
			require.NoError(t, err)
			require.Equal(t, int64(buf.Len()), n)

			got, err := ReadMetadataFrom(&buf)
			require.NoError(t, err)

			require.Equal(t, m.Keys(), got.Keys())
			for _, k := range m.Keys() {
				assert.Equal(t, m.Values(k), got.Values(k), "values for key %q", k)
			}
		})
	}
}

func TestReadMetadataFromRejectsMalformedLines(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "missing separator", input: "no-separator-here\n"},
		{name: "dangling escape", input: "key=value\\\n"},
		{name: "invalid escape", input: "key=va\\qlue\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadMetadataFrom(strings.NewReader(tc.input))
			require.Error(t, err)
		})
	}
}

func TestReadMetadataFromSkipsBlankLines(t *testing.T) {
	m, err := ReadMetadataFrom(strings.NewReader("a=1\n\nb=2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}
