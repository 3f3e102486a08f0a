package sinks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/INLOpen/nexuscommit/committer"
	"github.com/INLOpen/nexuscommit/core"
)

// Memory records committed requests in process memory. Upserts overwrite by
// reference, deletes remove the reference again. It is safe for concurrent
// use and mainly serves tests and examples.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string]Document
	deletes []string
}

var _ committer.Sink = (*Memory)(nil)

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

// Commit applies one batch of requests to the in-memory store.
func (s *Memory) Commit(ctx context.Context, requests core.RequestIterator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for requests.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := requests.Request()
		if req.Operation() == core.OpDelete {
			delete(s.docs, req.Reference())
			s.deletes = append(s.deletes, req.Reference())
			continue
		}
		content, err := contentBytes(req)
		if err != nil {
			return fmt.Errorf("read content of %s: %w", req.Reference(), err)
		}
		s.docs[req.Reference()] = Document{Metadata: metadataValues(req.Meta()), Content: content}
	}
	return requests.Error()
}

// Get returns the stored document for reference.
func (s *Memory) Get(reference string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[reference]
	return doc, ok
}

// Len returns the number of stored documents.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// References returns the stored references in sorted order.
func (s *Memory) References() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]string, 0, len(s.docs))
	for ref := range s.docs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Deletes returns every delete reference seen, in commit order.
func (s *Memory) Deletes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.deletes...)
}
