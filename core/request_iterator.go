package core

// RequestIterator is a single-pass, non-restartable cursor over the requests
// of one batch. Requests are decoded lazily; an upsert's content stream is
// only valid until the next call to Next.
type RequestIterator interface {
	// Next advances to the next request. It returns false when the batch is
	// exhausted or a decode error occurred; check Error to tell the two apart.
	Next() bool
	// Request returns the current request. Only valid after Next returned true.
	Request() Request
	// Count returns the total number of requests this iterator will yield.
	Count() int
	// Pulled returns how many requests have been yielded so far.
	Pulled() int
	// Error returns the first decode error encountered, if any.
	Error() error
	// Close releases any resources held by the current request.
	Close() error
}
