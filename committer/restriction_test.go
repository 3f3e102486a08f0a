package committer

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/INLOpen/nexuscommit/core"
)

func metaOf(kv ...string) *core.Metadata {
	m := core.NewMetadata()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Add(kv[i], kv[i+1])
	}
	return m
}

func TestRestrictionMatches(t *testing.T) {
	textOnly := Restriction{Field: "content-type", Pattern: regexp.MustCompile(`^text/`)}

	assert.True(t, textOnly.matches(metaOf("content-type", "text/html")))
	assert.False(t, textOnly.matches(metaOf("content-type", "image/png")))
	assert.False(t, textOnly.matches(metaOf("other", "text/html")))
	assert.False(t, textOnly.matches(nil))

	t.Run("any value of a multi-valued field matches", func(t *testing.T) {
		m := metaOf("content-type", "application/pdf", "content-type", "text/plain")
		assert.True(t, textOnly.matches(m))
	})

	t.Run("nil pattern requires only field presence", func(t *testing.T) {
		presence := Restriction{Field: "force"}
		assert.True(t, presence.matches(metaOf("force", "")))
		assert.False(t, presence.matches(metaOf("other", "x")))
	})
}

func TestApplyFieldMappings(t *testing.T) {
	t.Run("no mappings returns the metadata unchanged", func(t *testing.T) {
		m := metaOf("a", "1")
		assert.Same(t, m, applyFieldMappings(m, nil))
	})

	t.Run("renames preserve key order", func(t *testing.T) {
		m := metaOf("dc.title", "T", "author", "A")
		out := applyFieldMappings(m, map[string]string{"dc.title": "title"})
		assert.Equal(t, []string{"title", "author"}, out.Keys())
		assert.Equal(t, []string{"T"}, out.Values("title"))
		assert.Equal(t, []string{"A"}, out.Values("author"))
	})

	t.Run("empty target drops the key", func(t *testing.T) {
		m := metaOf("keep", "1", "junk", "2")
		out := applyFieldMappings(m, map[string]string{"junk": ""})
		assert.Equal(t, []string{"keep"}, out.Keys())
	})

	t.Run("collision merges values in walk order", func(t *testing.T) {
		m := metaOf("title", "primary", "alt", "secondary")
		out := applyFieldMappings(m, map[string]string{"alt": "title"})
		assert.Equal(t, []string{"title"}, out.Keys())
		assert.Equal(t, []string{"primary", "secondary"}, out.Values("title"))
	})

	t.Run("multi-valued fields carry all values", func(t *testing.T) {
		m := metaOf("tag", "a", "tag", "b")
		out := applyFieldMappings(m, map[string]string{"tag": "label"})
		assert.Equal(t, []string{"a", "b"}, out.Values("label"))
	})
}
