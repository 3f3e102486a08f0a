package core

import "io"

// Operation defines the type of action a request asks the target repository
// to perform.
type Operation byte

const (
	// OpUpsert represents an addition or full update of a document.
	OpUpsert Operation = 'U'
	// OpDelete represents a removal of a document.
	OpDelete Operation = 'D'
)

// String returns the string representation of the Operation.
func (op Operation) String() string {
	switch op {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Request is a single unit of work addressed to the target repository.
// Implementations are immutable after construction.
type Request interface {
	// Reference returns the unique document reference (URL, path, id).
	Reference() string
	// Meta returns the request metadata. Callers must not assume the map is
	// shared; mutating it after queueing has no effect on the queued copy.
	Meta() *Metadata
	// Operation reports whether this is an upsert or a delete.
	Operation() Operation
}

// UpsertRequest adds or replaces a document in the target repository.
// Content is a single-use stream: it is consumed exactly once, when the
// request is serialized into the queue.
type UpsertRequest struct {
	reference string
	meta      *Metadata
	content   io.Reader
}

var _ Request = (*UpsertRequest)(nil)

// NewUpsertRequest creates an upsert request. A nil meta is treated as empty.
func NewUpsertRequest(reference string, meta *Metadata, content io.Reader) *UpsertRequest {
	if meta == nil {
		meta = NewMetadata()
	}
	return &UpsertRequest{reference: reference, meta: meta, content: content}
}

func (r *UpsertRequest) Reference() string    { return r.reference }
func (r *UpsertRequest) Meta() *Metadata      { return r.meta }
func (r *UpsertRequest) Operation() Operation { return OpUpsert }

// Content returns the document body stream. May be nil for metadata-only
// upserts; consumers must treat nil as an empty body.
func (r *UpsertRequest) Content() io.Reader { return r.content }

// DeleteRequest removes a document from the target repository.
type DeleteRequest struct {
	reference string
	meta      *Metadata
}

var _ Request = (*DeleteRequest)(nil)

// NewDeleteRequest creates a delete request. A nil meta is treated as empty.
func NewDeleteRequest(reference string, meta *Metadata) *DeleteRequest {
	if meta == nil {
		meta = NewMetadata()
	}
	return &DeleteRequest{reference: reference, meta: meta}
}

func (r *DeleteRequest) Reference() string    { return r.reference }
func (r *DeleteRequest) Meta() *Metadata      { return r.meta }
func (r *DeleteRequest) Operation() Operation { return OpDelete }
