package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Metadata is an ordered multimap of document fields. A key keeps the
// position of its first insertion and may carry any number of values in
// insertion order. The zero value is not usable; use NewMetadata.
type Metadata struct {
	keys   []string
	values map[string][]string
}

// NewMetadata creates an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string][]string)}
}

// Set replaces all values of key. Setting zero values removes the key.
func (m *Metadata) Set(key string, values ...string) {
	if len(values) == 0 {
		m.Delete(key)
		return
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append([]string(nil), values...)
}

// Add appends values to key, creating it if absent.
func (m *Metadata) Add(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], values...)
}

// Get returns the first value of key, or "" if the key is absent.
func (m *Metadata) Get(key string) string {
	if vs := m.values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns a copy of all values of key in insertion order.
func (m *Metadata) Values(key string) []string {
	vs, ok := m.values[key]
	if !ok {
		return nil
	}
	return append([]string(nil), vs...)
}

// Has reports whether key is present.
func (m *Metadata) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns a copy of the keys in first-insertion order.
func (m *Metadata) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of distinct keys.
func (m *Metadata) Len() int { return len(m.keys) }

// Delete removes key and all its values.
func (m *Metadata) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string][]string, len(m.values)),
	}
	for k, vs := range m.values {
		c.values[k] = append([]string(nil), vs...)
	}
	return c
}

// WriteTo serializes the metadata as one "key=value" line per value, with
// repeated keys for multi-valued fields. Key order and per-key value order
// are preserved. Implements io.WriterTo.
func (m *Metadata) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, k := range m.keys {
		ek := escapeMetaKey(k)
		for _, v := range m.values[k] {
			n, err := fmt.Fprintf(w, "%s=%s\n", ek, escapeMetaValue(v))
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// ReadMetadataFrom parses the serialized form produced by WriteTo.
func ReadMetadataFrom(r io.Reader) (*Metadata, error) {
	m := NewMetadata()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		key, value, err := splitMetaLine(text)
		if err != nil {
			return nil, fmt.Errorf("metadata line %d: %w", line, err)
		}
		m.Add(key, value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return m, nil
}

// escapeMetaKey escapes backslash, '=', and line breaks so the key cannot be
// confused with the separator or a record boundary.
func escapeMetaKey(s string) string {
	if !strings.ContainsAny(s, "\\=\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '=':
			b.WriteString(`\=`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeMetaValue escapes backslash and line breaks. '=' needs no escaping
// in values: parsing splits on the first unescaped '='.
func escapeMetaValue(s string) string {
	if !strings.ContainsAny(s, "\\\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func splitMetaLine(line string) (key, value string, err error) {
	var b strings.Builder
	escaped := false
	inKey := true
	for _, r := range line {
		if escaped {
			switch r {
			case '\\':
				b.WriteRune('\\')
			case '=':
				b.WriteRune('=')
			case 'n':
				b.WriteRune('\n')
			case 'r':
				b.WriteRune('\r')
			default:
				return "", "", fmt.Errorf("invalid escape sequence \\%c", r)
			}
			escaped = false
			continue
		}
		switch {
		case r == '\\':
			escaped = true
		case r == '=' && inKey:
			key = b.String()
			b.Reset()
			inKey = false
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		return "", "", fmt.Errorf("dangling escape at end of line")
	}
	if inKey {
		return "", "", fmt.Errorf("missing '=' separator")
	}
	return key, b.String(), nil
}
