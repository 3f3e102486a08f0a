package batch

import (
	"github.com/INLOpen/nexuscommit/archive"
	"github.com/INLOpen/nexuscommit/core"
)

// Iterator is a lazy, single-pass cursor over a batch's requests. Each
// archive is decoded when reached; the previous request's resources are
// released on the next advance. Not safe for concurrent use.
type Iterator struct {
	files   []string
	idx     int
	current *archive.Decoded
	req     core.Request
	pulled  int
	err     error
}

var _ core.RequestIterator = (*Iterator)(nil)

func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.release()
	if it.idx >= len(it.files) {
		return false
	}
	d, err := archive.Decode(it.files[it.idx])
	if err != nil {
		it.err = err
		return false
	}
	it.idx++
	it.current = d
	it.req = d.Request
	it.pulled++
	return true
}

func (it *Iterator) Request() core.Request { return it.req }

func (it *Iterator) Count() int { return len(it.files) }

func (it *Iterator) Pulled() int { return it.pulled }

func (it *Iterator) Error() error { return it.err }

func (it *Iterator) Close() error {
	return it.release()
}

func (it *Iterator) release() error {
	if it.current == nil {
		return nil
	}
	err := it.current.Close()
	it.current = nil
	it.req = nil
	return err
}
