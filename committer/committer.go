// Package committer exposes the public contract of the document committer:
// a lifecycle facade over the durable file system queue, with routing
// restrictions, metadata field mapping, and lifecycle events.
package committer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/INLOpen/nexuscommit/core"
	"github.com/INLOpen/nexuscommit/fsqueue"
	"github.com/INLOpen/nexuscommit/hooks"
)

var (
	// ErrNotInitialized is returned when a request arrives before Init.
	ErrNotInitialized = errors.New("committer is not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("committer is already initialized")
	// ErrCommitterClosed is returned for any call after Close.
	ErrCommitterClosed = errors.New("committer is closed")
)

// Sink receives batches of requests from the queue. Implementations either
// fully process the iterator or return an error; the queue's retry and split
// policy interprets any error as "this attempt failed" with no partial
// success signal.
type Sink interface {
	Commit(ctx context.Context, requests core.RequestIterator) error
}

// Options configures a Committer.
type Options struct {
	// Queue configures the underlying file system queue.
	Queue fsqueue.Options
	// Restrictions route requests: with none configured every request is
	// accepted, otherwise a request must match at least one.
	Restrictions []Restriction
	// FieldMappings renames metadata keys just before queueing. Mapping a
	// key to the empty string drops it; mapping onto an existing key merges
	// the values under the target key.
	FieldMappings map[string]string

	Logger *slog.Logger
	Tracer trace.Tracer
	Hooks  hooks.HookManager
}

type state byte

const (
	stateNew state = iota
	stateReady
	stateClosed
)

// Committer is the lifecycle facade callers interact with: Init, then any
// number of Accept/Upsert/Delete calls, then Close. Clean sits outside the
// normal flow and wipes the queue for a fresh start.
type Committer struct {
	sink   Sink
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	hooks  hooks.HookManager

	mu    sync.Mutex
	state state
	queue *fsqueue.FSQueue
}

// New builds a Committer delivering to sink. The working directory is not
// touched until Init.
func New(sink Sink, opts Options) (*Committer, error) {
	if sink == nil {
		return nil, errors.New("committer: sink is nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("committer")
	}
	return &Committer{
		sink:   sink,
		opts:   opts,
		logger: opts.Logger.With("component", "Committer"),
		tracer: opts.Tracer,
		hooks:  opts.Hooks,
	}, nil
}

// Init opens the working directory and makes the committer ready for
// requests. Leftover batches from a previous run are handled according to
// the queue options.
func (c *Committer) Init(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "Committer.Init")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateReady:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrCommitterClosed
	}

	if err := c.firePre(ctx, hooks.NewPreInitEvent(hooks.InitPayload{WorkDir: c.opts.Queue.Dir})); err != nil {
		return fmt.Errorf("init cancelled by pre-hook: %w", err)
	}

	qopts := c.opts.Queue
	if qopts.Logger == nil {
		qopts.Logger = c.opts.Logger
	}
	if qopts.Tracer == nil {
		qopts.Tracer = c.tracer
	}
	if qopts.Hooks == nil {
		qopts.Hooks = c.hooks
	}
	q, err := fsqueue.Open(ctx, qopts, c.sink.Commit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue_open_error")
		c.firePost(ctx, hooks.NewPostInitEvent(hooks.PostInitPayload{WorkDir: qopts.Dir, Error: err}))
		return fmt.Errorf("open queue: %w", err)
	}
	c.queue = q
	c.state = stateReady
	c.logger.Info("Committer initialized", "dir", q.Dir())
	c.firePost(ctx, hooks.NewPostInitEvent(hooks.PostInitPayload{WorkDir: q.Dir(), Leftovers: q.Leftovers()}))
	return nil
}

// Accept reports whether the request passes the configured restrictions.
// With no restrictions everything is accepted; otherwise one matching
// restriction suffices.
func (c *Committer) Accept(req core.Request) bool {
	if req == nil {
		return false
	}
	if len(c.opts.Restrictions) == 0 {
		return true
	}
	for _, r := range c.opts.Restrictions {
		if r.matches(req.Meta()) {
			return true
		}
	}
	return false
}

// Upsert queues a document add-or-replace. Requests failing the
// restrictions are skipped, never queued. The pre-hook may rewrite the
// reference and metadata or cancel the operation; field mappings are
// applied last, right before the request reaches the queue.
func (c *Committer) Upsert(ctx context.Context, req *core.UpsertRequest) error {
	if req == nil {
		return errors.New("committer: nil request")
	}
	ctx, span := c.tracer.Start(ctx, "Committer.Upsert",
		trace.WithAttributes(attribute.String("committer.reference", req.Reference())))
	defer span.End()

	q, err := c.ready()
	if err != nil {
		return err
	}
	if !c.Accept(req) {
		c.reject(ctx, span, req)
		return nil
	}

	reference := req.Reference()
	meta := req.Meta().Clone()
	if err := c.firePre(ctx, hooks.NewPreUpsertEvent(hooks.PreUpsertPayload{Reference: &reference, Meta: meta})); err != nil {
		return fmt.Errorf("upsert %s cancelled by pre-hook: %w", req.Reference(), err)
	}

	queued := core.NewUpsertRequest(reference, applyFieldMappings(meta, c.opts.FieldMappings), req.Content())
	err = q.Queue(ctx, queued)
	c.firePost(ctx, hooks.NewPostUpsertEvent(hooks.PostUpsertPayload{Reference: reference, Error: err}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue_error")
	}
	return err
}

// Delete queues a document removal. Behaves like Upsert for restrictions,
// pre-hooks, and field mappings.
func (c *Committer) Delete(ctx context.Context, req *core.DeleteRequest) error {
	if req == nil {
		return errors.New("committer: nil request")
	}
	ctx, span := c.tracer.Start(ctx, "Committer.Delete",
		trace.WithAttributes(attribute.String("committer.reference", req.Reference())))
	defer span.End()

	q, err := c.ready()
	if err != nil {
		return err
	}
	if !c.Accept(req) {
		c.reject(ctx, span, req)
		return nil
	}

	reference := req.Reference()
	meta := req.Meta().Clone()
	if err := c.firePre(ctx, hooks.NewPreDeleteEvent(hooks.PreDeletePayload{Reference: &reference, Meta: meta})); err != nil {
		return fmt.Errorf("delete %s cancelled by pre-hook: %w", req.Reference(), err)
	}

	queued := core.NewDeleteRequest(reference, applyFieldMappings(meta, c.opts.FieldMappings))
	err = q.Queue(ctx, queued)
	c.firePost(ctx, hooks.NewPostDeleteEvent(hooks.PostDeletePayload{Reference: reference, Error: err}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue_error")
	}
	return err
}

// Close flushes the partial batch, drains pending deliveries, and releases
// the working directory. A second call is a no-op.
func (c *Committer) Close(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "Committer.Close")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateNew:
		return ErrNotInitialized
	case stateClosed:
		return nil
	}

	if err := c.firePre(ctx, hooks.NewPreCloseEvent()); err != nil {
		return fmt.Errorf("close cancelled by pre-hook: %w", err)
	}

	err := c.queue.Close(ctx)
	c.state = stateClosed
	c.firePost(ctx, hooks.NewPostCloseEvent(hooks.PostClosePayload{Error: err}))
	if c.hooks != nil {
		c.hooks.Stop()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue_close_error")
		return err
	}
	c.logger.Info("Committer closed")
	return nil
}

// Clean wipes the queue working directory, dropping every request not yet
// delivered. The committer stays usable afterwards.
func (c *Committer) Clean(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "Committer.Clean")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateNew:
		return ErrNotInitialized
	case stateClosed:
		return ErrCommitterClosed
	}

	if err := c.firePre(ctx, hooks.NewPreCleanEvent()); err != nil {
		return fmt.Errorf("clean cancelled by pre-hook: %w", err)
	}

	err := c.queue.Clean(ctx)
	c.firePost(ctx, hooks.NewPostCleanEvent(hooks.PostCleanPayload{Error: err}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue_clean_error")
		return err
	}
	c.logger.Info("Committer queue cleaned")
	return nil
}

// Queue exposes the underlying queue, mainly for inspection in tests and
// operational tooling. Nil before Init.
func (c *Committer) Queue() *fsqueue.FSQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

func (c *Committer) ready() (*fsqueue.FSQueue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateNew:
		return nil, ErrNotInitialized
	case stateClosed:
		return nil, ErrCommitterClosed
	}
	return c.queue, nil
}

func (c *Committer) reject(ctx context.Context, span trace.Span, req core.Request) {
	c.logger.Debug("Request rejected by restrictions", "reference", req.Reference())
	span.SetAttributes(attribute.Bool("committer.rejected", true))
	c.firePost(ctx, hooks.NewOnRejectedEvent(hooks.RejectedPayload{
		Reference: req.Reference(),
		Operation: req.Operation(),
	}))
}

func (c *Committer) firePre(ctx context.Context, ev hooks.HookEvent) error {
	if c.hooks == nil {
		return nil
	}
	return c.hooks.Trigger(ctx, ev)
}

func (c *Committer) firePost(ctx context.Context, ev hooks.HookEvent) {
	if c.hooks == nil {
		return
	}
	if err := c.hooks.Trigger(ctx, ev); err != nil {
		c.logger.Warn("Hook listener rejected event", "event", ev.Type(), "error", err)
	}
}
