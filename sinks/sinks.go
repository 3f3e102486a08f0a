// Package sinks bundles ready-made Sink implementations for the committer:
// an in-memory recorder, an append-only JSON-lines file writer, and an
// embedded Badger key-value store.
package sinks

import (
	"errors"
	"io"

	"github.com/INLOpen/nexuscommit/core"
)

// ErrClosed is returned by a sink whose Close method has already been called.
var ErrClosed = errors.New("sink is closed")

// Document is the stored form of a committed upsert: the request metadata as
// a plain multimap plus the raw content bytes.
type Document struct {
	Metadata map[string][]string `json:"metadata,omitempty"`
	Content  []byte              `json:"content,omitempty"`
}

// metadataValues flattens request metadata into a plain map. First-insertion
// key order is not preserved; values keep their order within a key.
func metadataValues(meta *core.Metadata) map[string][]string {
	if meta == nil || meta.Len() == 0 {
		return nil
	}
	out := make(map[string][]string, meta.Len())
	for _, key := range meta.Keys() {
		out[key] = meta.Values(key)
	}
	return out
}

// contentBytes drains the body of an upsert request. Deletes and body-less
// upserts yield nil.
func contentBytes(req core.Request) ([]byte, error) {
	up, ok := req.(*core.UpsertRequest)
	if !ok || up.Content() == nil {
		return nil, nil
	}
	return io.ReadAll(up.Content())
}
