package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/INLOpen/nexuscommit/committer"
	"github.com/INLOpen/nexuscommit/core"
)

// JSONL appends committed requests to a file, one JSON object per line.
// Content bytes are carried base64-encoded. Writes are buffered and flushed
// at every commit boundary, so an accepted batch is on disk before the queue
// discards it.
type JSONL struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	logger *slog.Logger
}

var _ committer.Sink = (*JSONL)(nil)
var _ io.Closer = (*JSONL)(nil)

type jsonlRecord struct {
	Operation string              `json:"operation"`
	Reference string              `json:"reference"`
	Metadata  map[string][]string `json:"metadata,omitempty"`
	Content   []byte              `json:"content,omitempty"`
}

// NewJSONL opens (or creates) the file at path for appending.
func NewJSONL(path string, logger *slog.Logger) (*JSONL, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open jsonl file %s: %w", path, err)
	}
	return &JSONL{
		file:   file,
		w:      bufio.NewWriter(file),
		logger: logger.With("component", "JSONLSink"),
	}, nil
}

// Commit appends one batch of requests to the file and flushes it.
func (s *JSONL) Commit(ctx context.Context, requests core.RequestIterator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}
	enc := json.NewEncoder(s.w)
	for requests.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := requests.Request()
		content, err := contentBytes(req)
		if err != nil {
			return fmt.Errorf("read content of %s: %w", req.Reference(), err)
		}
		rec := jsonlRecord{
			Operation: req.Operation().String(),
			Reference: req.Reference(),
			Metadata:  metadataValues(req.Meta()),
			Content:   content,
		}
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("encode record for %s: %w", req.Reference(), err)
		}
	}
	if err := requests.Error(); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush jsonl file: %w", err)
	}
	s.logger.Debug("Batch appended", "requests", requests.Pulled())
	return nil
}

// Close flushes buffered records and closes the file.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	s.w = nil
	return err
}
