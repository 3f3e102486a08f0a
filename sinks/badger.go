package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/INLOpen/nexuscommit/committer"
	"github.com/INLOpen/nexuscommit/core"
)

// Badger persists committed documents in an embedded Badger store keyed by
// reference. Each commit call runs as one read-write transaction, so a batch
// lands atomically or not at all.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ committer.Sink = (*Badger)(nil)
var _ io.Closer = (*Badger)(nil)

// NewBadger opens (or creates) a Badger store rooted at dir.
func NewBadger(dir string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", dir, err)
	}
	logger = logger.With("component", "BadgerSink")
	logger.Info("Badger sink opened", "dir", dir)
	return &Badger{db: db, logger: logger}, nil
}

type badgerOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Commit applies one batch of requests in a single transaction. The iterator
// is single-pass, so requests are materialized before the transaction starts.
func (s *Badger) Commit(ctx context.Context, requests core.RequestIterator) error {
	ops := make([]badgerOp, 0, requests.Count())
	for requests.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := requests.Request()
		if req.Operation() == core.OpDelete {
			ops = append(ops, badgerOp{key: []byte(req.Reference()), delete: true})
			continue
		}
		content, err := contentBytes(req)
		if err != nil {
			return fmt.Errorf("read content of %s: %w", req.Reference(), err)
		}
		value, err := json.Marshal(Document{Metadata: metadataValues(req.Meta()), Content: content})
		if err != nil {
			return fmt.Errorf("encode document %s: %w", req.Reference(), err)
		}
		ops = append(ops, badgerOp{key: []byte(req.Reference()), value: value})
	}
	if err := requests.Error(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			if op.delete {
				if err := txn.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger transaction: %w", err)
	}
	s.logger.Debug("Batch stored", "requests", len(ops))
	return nil
}

// Get reads the stored document for reference. The boolean is false when the
// reference is absent.
func (s *Badger) Get(reference string) (Document, bool, error) {
	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reference))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("failed to read document %s: %w", reference, err)
	}
	return doc, true, nil
}

// Close closes the underlying store.
func (s *Badger) Close() error {
	return s.db.Close()
}
