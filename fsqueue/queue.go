// Package fsqueue implements a durable, file-system-backed batching queue
// for committer requests. Requests are serialized one archive per request
// into an active batch directory; when the directory reaches the configured
// batch size it is sealed and handed to the commit callback with fixed-delay
// retry, optional batch splitting on failure, and quarantine of whatever
// could not be delivered. Sealed batches survive a crash and can be drained
// on the next start.
package fsqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexuscommit/archive"
	"github.com/INLOpen/nexuscommit/compressors"
	"github.com/INLOpen/nexuscommit/core"
	"github.com/INLOpen/nexuscommit/hooks"
	"github.com/INLOpen/nexuscommit/internal/clock"
	"github.com/INLOpen/nexuscommit/sys"
)

const (
	// DefaultBatchSize is the number of queued requests that seals a batch.
	DefaultBatchSize = 20
	// DefaultMaxPerFolder bounds how many entries a single queue directory
	// may hold before fan-out adds another level.
	DefaultMaxPerFolder = 500

	queueSubdir  = "queue"
	errorSubdir  = "error"
	lockBaseName = "committer-queue"

	// sealedBufferSize is the async handoff channel capacity. A full buffer
	// applies backpressure to producers.
	sealedBufferSize = 16
)

// CommitFunc delivers one batch of requests to the sink. Any returned error
// marks the whole attempt as failed; partial success is only ever inferred
// by the split-retry policy trying smaller chunks.
type CommitFunc func(ctx context.Context, requests core.RequestIterator) error

// SplitPolicy controls how a batch is shrunk after its retry budget is
// exhausted.
type SplitPolicy byte

const (
	// SplitOff disables splitting: an exhausted batch goes straight to the
	// error directory.
	SplitOff SplitPolicy = iota
	// SplitHalf halves the attempted chunk size (ceiling division) each time
	// a chunk-size level fails.
	SplitHalf
	// SplitOne drops straight to single-request chunks.
	SplitOne
)

func (p SplitPolicy) String() string {
	switch p {
	case SplitOff:
		return "off"
	case SplitHalf:
		return "half"
	case SplitOne:
		return "one"
	default:
		return fmt.Sprintf("SplitPolicy(%d)", p)
	}
}

// ParseSplitPolicy converts a configuration string into a SplitPolicy.
// The empty string means SplitOff.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return SplitOff, nil
	case "half":
		return SplitHalf, nil
	case "one":
		return SplitOne, nil
	default:
		return SplitOff, fmt.Errorf("unknown split policy %q", s)
	}
}

// Options configures a file system queue.
type Options struct {
	// Dir is the queue working directory. Empty means a fresh directory
	// under the system temp directory.
	Dir string
	// BatchSize is the request count that seals a batch. Defaults to
	// DefaultBatchSize.
	BatchSize int
	// MaxPerFolder bounds directory entries via fan-out. Defaults to
	// DefaultMaxPerFolder.
	MaxPerFolder int
	// CommitLeftoversOnInit drains batch directories left over from a prior
	// run before accepting new work.
	CommitLeftoversOnInit bool
	// MaxRetries is how many times a failed commit attempt is repeated for
	// the same chunk. Zero means a single attempt.
	MaxRetries int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// SplitBatch selects the shrink policy applied after retries are
	// exhausted.
	SplitBatch SplitPolicy
	// IgnoreErrors logs a quarantined batch instead of returning the error,
	// keeping the queue flowing.
	IgnoreErrors bool
	// Compression selects the stream codec for upsert content.
	Compression compressors.Type
	// AsyncConsume moves batch consumption onto a single background
	// goroutine; terminal errors are then surfaced by Close.
	AsyncConsume bool
	// DiskMonitorInterval enables periodic disk usage sampling of the work
	// directory when positive.
	DiskMonitorInterval time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer
	Clock  clock.Clock
	Hooks  hooks.HookManager
}

// activeBatch is the directory currently receiving archives. The WaitGroup
// tracks in-flight archive writes so a seal never hands off a directory that
// is still being written into.
type activeBatch struct {
	dir   string
	count int
	wg    sync.WaitGroup
}

// FSQueue is a durable batching queue rooted at a working directory.
type FSQueue struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	clk     clock.Clock
	hooks   hooks.HookManager
	consume CommitFunc
	comp    compressors.Compressor
	fan     fanout
	ids     *timeIDGenerator
	metrics *queueMetrics

	dir      string
	queueDir string
	errorDir string

	leftoversAtOpen int

	releaseLock func() error
	monitor     *diskMonitor

	mu     sync.Mutex
	active *activeBatch
	closed bool

	// producers tracks in-flight Queue calls so Close can wait for their
	// handoffs before closing the async channel.
	producers sync.WaitGroup

	sealed chan string
	group  *errgroup.Group
}

// Open prepares the working directory, takes the single-process lock, and
// returns a queue ready to accept requests. Leftover batch directories from
// a previous run are drained first when CommitLeftoversOnInit is set,
// otherwise logged and left in place.
func Open(ctx context.Context, opts Options, consume CommitFunc) (*FSQueue, error) {
	if consume == nil {
		return nil, errors.New("fsqueue: commit callback is nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxPerFolder <= 0 {
		opts.MaxPerFolder = DefaultMaxPerFolder
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Clock == nil {
		opts.Clock = clock.SystemClockDefault
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("fsqueue")
	}
	comp, err := compressors.ForType(opts.Compression)
	if err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		d, err := os.MkdirTemp("", "committer-queue-")
		if err != nil {
			return nil, core.NewFatalError("create temp work directory", err)
		}
		dir = d
	}
	queueDir := filepath.Join(dir, queueSubdir)
	errorDir := filepath.Join(dir, errorSubdir)
	if err := sys.MkdirAll(queueDir, 0o755); err != nil {
		return nil, core.NewFatalError("create queue directory", err)
	}
	if err := sys.MkdirAll(errorDir, 0o755); err != nil {
		return nil, core.NewFatalError("create error directory", err)
	}
	release, err := sys.AcquireFileLock(filepath.Join(dir, lockBaseName), 0, 50*time.Millisecond, sys.DefaultLockStaleTTL)
	if err != nil {
		return nil, fmt.Errorf("work directory %s is in use by another process: %w", dir, err)
	}

	q := &FSQueue{
		opts:        opts,
		logger:      opts.Logger.With("component", "FSQueue"),
		tracer:      opts.Tracer,
		clk:         opts.Clock,
		hooks:       opts.Hooks,
		consume:     consume,
		comp:        comp,
		fan:         newFanout(opts.BatchSize, opts.MaxPerFolder),
		ids:         newTimeIDGenerator(opts.Clock),
		metrics:     sharedQueueMetrics(),
		dir:         dir,
		queueDir:    queueDir,
		errorDir:    errorDir,
		releaseLock: release,
	}

	leftovers, err := q.listBatchDirs()
	if err != nil {
		_ = release()
		return nil, err
	}
	q.leftoversAtOpen = len(leftovers)
	if len(leftovers) > 0 {
		if opts.CommitLeftoversOnInit {
			q.logger.Info("Draining leftover batches from a previous run", "count", len(leftovers))
			for _, d := range leftovers {
				if err := q.consumeSealed(ctx, d); err != nil {
					_ = release()
					return nil, err
				}
			}
		} else {
			q.logger.Info("Leftover batches present and left in place", "count", len(leftovers), "dir", queueDir)
		}
	}

	q.mu.Lock()
	err = q.swapActiveLocked()
	q.mu.Unlock()
	if err != nil {
		_ = release()
		return nil, err
	}

	if opts.AsyncConsume {
		q.sealed = make(chan string, sealedBufferSize)
		q.group = &errgroup.Group{}
		q.group.Go(q.consumeLoop)
	}
	if opts.DiskMonitorInterval > 0 {
		q.monitor = newDiskMonitor(dir, opts.DiskMonitorInterval, q.logger)
		q.monitor.Start()
	}

	q.logger.Info("File system queue ready",
		"dir", dir,
		"batch_size", opts.BatchSize,
		"max_per_folder", opts.MaxPerFolder,
		"split", opts.SplitBatch.String(),
		"compression", opts.Compression.String(),
		"async", opts.AsyncConsume,
	)
	return q, nil
}

// Dir returns the queue working directory.
func (q *FSQueue) Dir() string { return q.dir }

// QueueDir returns the directory holding active and sealed batches.
func (q *FSQueue) QueueDir() string { return q.queueDir }

// ErrorDir returns the directory quarantined batches are moved to.
func (q *FSQueue) ErrorDir() string { return q.errorDir }

// Leftovers reports how many sealed batch directories from a previous run
// were found on disk when the queue was opened.
func (q *FSQueue) Leftovers() int { return q.leftoversAtOpen }

// Queue serializes one request into the active batch. When the request fills
// the batch, exactly this call seals the directory, swaps in a fresh active
// directory for concurrent producers, and hands the sealed batch to
// consumption (synchronously unless AsyncConsume is set). Terminal delivery
// errors from synchronous consumption are returned here.
func (q *FSQueue) Queue(ctx context.Context, req core.Request) error {
	if req == nil {
		return errors.New("fsqueue: nil request")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return core.ErrQueueClosed
	}
	q.producers.Add(1)
	b := q.active
	ordinal := b.count
	b.count++
	b.wg.Add(1)
	var toSeal *activeBatch
	if b.count >= q.opts.BatchSize {
		toSeal = b
		if err := q.swapActiveLocked(); err != nil {
			b.count--
			b.wg.Done()
			q.producers.Done()
			q.mu.Unlock()
			return err
		}
	}
	q.mu.Unlock()
	defer q.producers.Done()

	err := q.writeArchive(b.dir, ordinal, req)
	b.wg.Done()
	if err == nil {
		q.metrics.requestsQueued.Add(1)
	}

	if toSeal == nil {
		return err
	}

	// The sealed directory may still have writes from other producers in
	// flight; they all reserved before the swap.
	toSeal.wg.Wait()
	sealErr := q.dispatch(ctx, toSeal)
	if err != nil {
		return err
	}
	return sealErr
}

// Close seals and drains the active batch (any size), waits for asynchronous
// consumption to finish, and releases the working directory lock. A second
// call is a no-op.
func (q *FSQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	b := q.active
	q.active = nil
	q.mu.Unlock()

	q.producers.Wait()
	b.wg.Wait()

	var errs []error
	if b.count > 0 {
		if err := q.dispatch(ctx, b); err != nil {
			errs = append(errs, err)
		}
	} else if err := sys.Remove(b.dir); err != nil {
		q.logger.Warn("Failed to remove empty active batch directory", "dir", b.dir, "error", err)
	}

	if q.sealed != nil {
		close(q.sealed)
		if err := q.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	if q.monitor != nil {
		q.monitor.Stop()
	}
	if err := q.releaseLock(); err != nil {
		errs = append(errs, fmt.Errorf("release work directory lock: %w", err))
	}
	q.logger.Info("File system queue closed", "dir", q.dir)
	return errors.Join(errs...)
}

// Clean wipes the queue and error trees and starts over with an empty
// layout. It must not race active producers or consumers; the queue mutex
// only protects against new reservations.
func (q *FSQueue) Clean(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return core.ErrQueueClosed
	}
	q.producers.Wait()

	if err := sys.RemoveAll(q.queueDir); err != nil {
		return core.NewFatalError("remove queue tree", err)
	}
	if err := sys.RemoveAll(q.errorDir); err != nil {
		return core.NewFatalError("remove error tree", err)
	}
	if err := sys.MkdirAll(q.queueDir, 0o755); err != nil {
		return core.NewFatalError("recreate queue directory", err)
	}
	if err := sys.MkdirAll(q.errorDir, 0o755); err != nil {
		return core.NewFatalError("recreate error directory", err)
	}
	q.logger.Info("Queue working directory wiped", "dir", q.dir)
	return q.swapActiveLocked()
}

// swapActiveLocked creates a fresh batch directory and makes it the active
// one. Callers hold q.mu.
func (q *FSQueue) swapActiveLocked() error {
	dir := filepath.Join(q.queueDir, batchDirPrefix+q.ids.next())
	if err := sys.MkdirAll(dir, 0o755); err != nil {
		return core.NewFatalError("create batch directory", err)
	}
	q.active = &activeBatch{dir: dir}
	return nil
}

func (q *FSQueue) writeArchive(batchDir string, ordinal int, req core.Request) error {
	relDir, prefix := q.fan.relPath(ordinal)
	targetDir := batchDir
	if relDir != "" {
		targetDir = filepath.Join(batchDir, relDir)
		if err := sys.MkdirAll(targetDir, 0o755); err != nil {
			return core.NewFatalError("create fan-out directory", err)
		}
	}
	return archive.Encode(filepath.Join(targetDir, archive.FileName(prefix, req.Operation())), req, q.comp)
}

// dispatch hands a full (or final) batch directory to consumption.
func (q *FSQueue) dispatch(ctx context.Context, b *activeBatch) error {
	q.metrics.batchesSealed.Add(1)
	q.fireHook(ctx, hooks.NewOnBatchSealedEvent(hooks.BatchSealedPayload{Dir: b.dir, Requests: b.count}))
	if q.sealed != nil {
		q.sealed <- b.dir
		return nil
	}
	return q.consumeSealed(ctx, b.dir)
}

// consumeLoop is the single async consumer. It keeps draining after a
// terminal error so producers are never blocked on a full channel; the first
// error is reported by Close via the errgroup.
func (q *FSQueue) consumeLoop() error {
	var firstErr error
	for dir := range q.sealed {
		if err := q.consumeSealed(context.Background(), dir); err != nil {
			q.logger.Error("Asynchronous batch consumption failed", "dir", dir, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (q *FSQueue) listBatchDirs() ([]string, error) {
	entries, err := sys.ReadDir(q.queueDir)
	if err != nil {
		return nil, core.NewFatalError("list queue directory", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), batchDirPrefix) {
			dirs = append(dirs, filepath.Join(q.queueDir, e.Name()))
		}
	}
	return dirs, nil
}

func (q *FSQueue) fireHook(ctx context.Context, ev hooks.HookEvent) {
	if q.hooks == nil {
		return
	}
	if err := q.hooks.Trigger(ctx, ev); err != nil {
		q.logger.Warn("Hook listener rejected queue event", "event", ev.Type(), "error", err)
	}
}
