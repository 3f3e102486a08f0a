package fsqueue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/INLOpen/nexuscommit/batch"
	"github.com/INLOpen/nexuscommit/core"
	"github.com/INLOpen/nexuscommit/hooks"
)

// consumeSealed drains one sealed batch directory: the full batch with
// fixed-delay retry first, then progressively smaller sub-batches when
// splitting is enabled, and finally quarantine of whatever could not be
// delivered. Fatal errors (broken filesystem, undecodable archive) are
// returned immediately and leave the directory in place.
func (q *FSQueue) consumeSealed(ctx context.Context, dir string) error {
	_, span := q.tracer.Start(ctx, "FSQueue.ConsumeBatch")
	defer span.End()
	span.SetAttributes(attribute.String("queue.batch_dir", dir))

	start := q.clk.Now()
	b, err := batch.Open(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch_open_error")
		return err
	}
	total := b.Count()
	span.SetAttributes(attribute.Int("queue.batch_requests", total))
	if total == 0 {
		return b.Delete()
	}
	q.logger.Debug("Consuming sealed batch", "dir", dir, "requests", total)

	err = q.commitWithRetry(ctx, b)
	if err == nil {
		if derr := b.Delete(); derr != nil {
			return derr
		}
		q.recordCommitted(ctx, dir, total, q.clk.Now().Sub(start))
		return nil
	}
	if core.IsFatal(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fatal_error")
		return err
	}
	if ctx.Err() != nil {
		// Interrupted delivery: the batch stays queued rather than being
		// quarantined, so a later run can resume it.
		q.logger.Warn("Batch delivery interrupted, leaving batch queued", "dir", dir, "error", err)
		return err
	}

	if q.opts.SplitBatch == SplitOff {
		err = q.quarantine(ctx, b, err)
	} else {
		err = q.splitAndRetry(ctx, b, start, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch_quarantined")
	}
	return err
}

// commitWithRetry runs the commit callback for one batch (or sub-batch),
// repeating up to MaxRetries times with the fixed RetryDelay between
// attempts. Fatal errors short-circuit the retry loop.
func (q *FSQueue) commitWithRetry(ctx context.Context, b *batch.Batch) error {
	attempt := 0
	op := func() error {
		attempt++
		q.metrics.commitAttempts.Add(1)
		it := b.Iterator()
		err := q.consume(ctx, it)
		if ierr := it.Error(); ierr != nil {
			// A decode failure outranks whatever the sink reported.
			err = ierr
		}
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err == nil {
			return nil
		}
		if core.IsFatal(err) {
			return backoff.Permanent(err)
		}
		q.logger.Warn("Batch commit attempt failed",
			"dir", b.Dir(),
			"attempt", attempt,
			"requests", b.Count(),
			"error", err,
		)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(q.opts.RetryDelay), uint64(q.opts.MaxRetries)), ctx)
	return backoff.Retry(op, bo)
}

// splitAndRetry re-attempts the not-yet-committed remainder of a batch in
// progressively smaller chunks. Each successful sub-batch deletes its own
// archives immediately, so a sibling failure or a crash never re-commits
// delivered requests. Shrinking stops once a chunk size of one has failed;
// the survivors are then quarantined.
func (q *FSQueue) splitAndRetry(ctx context.Context, root *batch.Batch, start time.Time, cause error) error {
	total := root.Count()
	remaining, err := root.Remaining()
	if err != nil {
		return err
	}
	var chunk int
	switch q.opts.SplitBatch {
	case SplitOne:
		chunk = 1
	default:
		chunk = (remaining.Count() + 1) / 2
	}

	for {
		q.logger.Info("Retrying batch in smaller chunks",
			"dir", root.Dir(),
			"chunk_size", chunk,
			"remaining", remaining.Count(),
		)
		levelFailed := false
		lastErr := cause
		for _, sub := range remaining.Split(chunk) {
			err := q.commitWithRetry(ctx, sub)
			if err == nil {
				if derr := sub.Delete(); derr != nil {
					return derr
				}
				q.metrics.requestsCommitted.Add(int64(sub.Count()))
				continue
			}
			if core.IsFatal(err) {
				return err
			}
			levelFailed = true
			lastErr = err
		}
		if !levelFailed {
			if err := root.Delete(); err != nil {
				return err
			}
			elapsed := q.clk.Now().Sub(start)
			q.metrics.batchesCommitted.Add(1)
			q.metrics.observeCommitLatency(elapsed)
			q.logger.Info("Batch committed after splitting", "dir", root.Dir(), "requests", total, "duration", elapsed)
			q.fireHook(ctx, hooks.NewOnBatchCommittedEvent(hooks.BatchCommittedPayload{
				Dir:      root.Dir(),
				Requests: total,
				Duration: elapsed,
			}))
			return nil
		}
		if ctx.Err() != nil {
			q.logger.Warn("Split delivery interrupted, leaving remainder queued", "dir", root.Dir(), "error", lastErr)
			return lastErr
		}
		if chunk == 1 {
			return q.quarantine(ctx, root, lastErr)
		}
		remaining, err = root.Remaining()
		if err != nil {
			return err
		}
		chunk = (chunk + 1) / 2
	}
}

// quarantine moves whatever remains of a batch to the error directory and
// reports the terminal failure. Under IgnoreErrors the loss is logged and
// nil returned so the queue keeps flowing.
func (q *FSQueue) quarantine(ctx context.Context, root *batch.Batch, cause error) error {
	remaining, err := root.Remaining()
	if err != nil {
		return err
	}
	n := remaining.Count()
	dest, err := root.Move(q.errorDir)
	if err != nil {
		return err
	}
	q.metrics.batchesQuarantined.Add(1)
	q.metrics.requestsQuarantined.Add(int64(n))
	q.fireHook(ctx, hooks.NewOnBatchQuarantinedEvent(hooks.BatchQuarantinedPayload{
		Dir:      dest,
		Requests: n,
		Error:    cause,
	}))
	commitErr := &core.CommitError{Dir: dest, Requests: n, Err: cause}
	if q.opts.IgnoreErrors {
		q.logger.Error("Batch moved to the error directory", "dir", dest, "requests", n, "error", cause)
		return nil
	}
	return commitErr
}

func (q *FSQueue) recordCommitted(ctx context.Context, dir string, requests int, d time.Duration) {
	q.metrics.batchesCommitted.Add(1)
	q.metrics.requestsCommitted.Add(int64(requests))
	q.metrics.observeCommitLatency(d)
	q.logger.Info("Batch committed", "dir", dir, "requests", requests, "duration", d)
	q.fireHook(ctx, hooks.NewOnBatchCommittedEvent(hooks.BatchCommittedPayload{
		Dir:      dir,
		Requests: requests,
		Duration: d,
	}))
}
