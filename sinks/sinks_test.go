package sinks

import (
	"io"
	"strings"

	"github.com/INLOpen/nexuscommit/core"
)

// sliceIterator feeds a fixed request slice through the RequestIterator
// contract so sinks can be tested without a queue behind them.
type sliceIterator struct {
	reqs []core.Request
	pos  int
	err  error
}

var _ core.RequestIterator = (*sliceIterator)(nil)

func iterate(reqs ...core.Request) *sliceIterator {
	return &sliceIterator{reqs: reqs}
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.reqs) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Request() core.Request { return it.reqs[it.pos-1] }
func (it *sliceIterator) Count() int            { return len(it.reqs) }
func (it *sliceIterator) Pulled() int           { return it.pos }
func (it *sliceIterator) Error() error          { return it.err }
func (it *sliceIterator) Close() error          { return nil }

func upsertWith(ref, body string, kv ...string) *core.UpsertRequest {
	meta := core.NewMetadata()
	for i := 0; i+1 < len(kv); i += 2 {
		meta.Add(kv[i], kv[i+1])
	}
	var content io.Reader
	if body != "" {
		content = strings.NewReader(body)
	}
	return core.NewUpsertRequest(ref, meta, content)
}

func deleteOf(ref string) *core.DeleteRequest {
	return core.NewDeleteRequest(ref, nil)
}
