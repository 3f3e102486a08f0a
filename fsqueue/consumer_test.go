package fsqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuscommit/batch"
	"github.com/INLOpen/nexuscommit/core"
)

func TestConsumeRetriesTransientFailure(t *testing.T) {
	attempts := 0
	sink := &recordingSink{}
	sink.fail = func([]string) error {
		attempts++
		if attempts <= 2 {
			return errors.New("sink unavailable")
		}
		return nil
	}
	q := openQueue(t, Options{BatchSize: 3, MaxRetries: 2}, sink.commit)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Queue(ctx, upsertReq(fmt.Sprintf("doc-%d", i))))
	}

	assert.Len(t, sink.calls(), 3, "two failures and the succeeding attempt")
	assert.Empty(t, batchDirsUnder(t, q.ErrorDir()))
	assert.Zero(t, countArchivesUnder(t, q.QueueDir()))
	require.NoError(t, q.Close(ctx))
}

func TestConsumeQuarantinesAfterRetryBudget(t *testing.T) {
	sink := &recordingSink{fail: func([]string) error { return errors.New("sink offline") }}
	q := openQueue(t, Options{BatchSize: 2, MaxRetries: 1}, sink.commit)
	ctx := context.Background()

	require.NoError(t, q.Queue(ctx, upsertReq("doc-0")))
	err := q.Queue(ctx, upsertReq("doc-1"))
	require.Error(t, err)

	commitErr, ok := core.AsCommitError(err)
	require.True(t, ok)
	assert.Equal(t, 2, commitErr.Requests)
	assert.True(t, strings.HasPrefix(commitErr.Dir, q.ErrorDir()), "commit error names the quarantine directory")

	assert.Len(t, sink.calls(), 2, "initial attempt plus one retry")
	errDirs := batchDirsUnder(t, q.ErrorDir())
	require.Len(t, errDirs, 1)
	assert.Equal(t, commitErr.Dir, errDirs[0])
	assert.Equal(t, 2, countArchivesUnder(t, errDirs[0]))
	assert.Zero(t, countArchivesUnder(t, q.QueueDir()))
	require.NoError(t, q.Close(ctx))
}

func TestConsumeSplitHalfShrinksToSingles(t *testing.T) {
	sink := &recordingSink{fail: func([]string) error { return errors.New("sink offline") }}
	q := openQueue(t, Options{BatchSize: 5, SplitBatch: SplitHalf}, sink.commit)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Queue(ctx, upsertReq(fmt.Sprintf("doc-%d", i))))
	}
	err := q.Queue(ctx, upsertReq("doc-4"))
	require.Error(t, err)

	var sizes []int
	for _, c := range sink.calls() {
		sizes = append(sizes, len(c))
	}
	assert.Equal(t, []int{5, 3, 2, 2, 2, 1, 1, 1, 1, 1, 1}, sizes,
		"chunk sizes halve per level until single requests have failed")

	commitErr, ok := core.AsCommitError(err)
	require.True(t, ok)
	assert.Equal(t, 5, commitErr.Requests, "nothing was delivered, everything is quarantined")
	assert.Equal(t, 5, countArchivesUnder(t, commitErr.Dir))
	assert.Zero(t, countArchivesUnder(t, q.QueueDir()))
	require.NoError(t, q.Close(ctx))
}

func TestConsumeSplitOneIsolatesPoisonRequest(t *testing.T) {
	sink := &recordingSink{fail: func(refs []string) error {
		for _, r := range refs {
			if r == "poison" {
				return errors.New("document rejected")
			}
		}
		return nil
	}}
	q := openQueue(t, Options{BatchSize: 6, SplitBatch: SplitOne}, sink.commit)
	ctx := context.Background()

	refs := []string{"doc-0", "doc-1", "doc-2", "poison", "doc-4", "doc-5"}
	for _, ref := range refs[:5] {
		require.NoError(t, q.Queue(ctx, upsertReq(ref)))
	}
	err := q.Queue(ctx, upsertReq(refs[5]))
	require.Error(t, err)

	calls := sink.calls()
	require.Len(t, calls, 7, "one full attempt, then each request alone")
	assert.Equal(t, refs, calls[0])
	for i, ref := range refs {
		assert.Equal(t, []string{ref}, calls[i+1])
	}

	commitErr, ok := core.AsCommitError(err)
	require.True(t, ok)
	assert.Equal(t, 1, commitErr.Requests, "delivered requests are not quarantined alongside the poison one")

	quarantined, berr := batch.Open(commitErr.Dir)
	require.NoError(t, berr)
	require.Equal(t, 1, quarantined.Count())
	it := quarantined.Iterator()
	defer it.Close()
	require.True(t, it.Next())
	assert.Equal(t, "poison", it.Request().Reference())
	require.NoError(t, q.Close(ctx))
}

func TestConsumeIgnoreErrorsKeepsQueueFlowing(t *testing.T) {
	sink := &recordingSink{fail: func([]string) error { return errors.New("sink offline") }}
	q := openQueue(t, Options{BatchSize: 2, IgnoreErrors: true}, sink.commit)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Queue(ctx, upsertReq(fmt.Sprintf("doc-%d", i))),
			"ignored delivery failures must not reach producers")
	}
	require.NoError(t, q.Close(ctx))

	assert.Len(t, sink.calls(), 2)
	assert.Len(t, batchDirsUnder(t, q.ErrorDir()), 2, "each failed batch is quarantined separately")
	assert.Equal(t, 4, countArchivesUnder(t, q.ErrorDir()))
	assert.Zero(t, countArchivesUnder(t, q.QueueDir()))
}

func TestConsumeFatalErrorSkipsRetryAndSplit(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{fail: func([]string) error {
		return core.NewFatalError("fs", errors.New("device gone"))
	}}
	q := openQueue(t, Options{Dir: dir, BatchSize: 2, MaxRetries: 3, SplitBatch: SplitHalf}, sink.commit)
	ctx := context.Background()

	require.NoError(t, q.Queue(ctx, upsertReq("doc-0")))
	err := q.Queue(ctx, upsertReq("doc-1"))
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))

	assert.Len(t, sink.calls(), 1, "fatal failures are neither retried nor split")
	assert.Empty(t, batchDirsUnder(t, q.ErrorDir()), "fatal failures do not quarantine")
	require.NoError(t, q.Close(ctx))

	remaining := batchDirsUnder(t, filepath.Join(dir, queueSubdir))
	require.Len(t, remaining, 1, "the failed batch stays queued for the next run")
	assert.Equal(t, 2, countArchivesUnder(t, remaining[0]))

	healthy := &recordingSink{}
	q2, err := Open(ctx, Options{Dir: dir, CommitLeftoversOnInit: true}, healthy.commit)
	require.NoError(t, err)
	calls := healthy.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"doc-0", "doc-1"}, calls[0])
	require.NoError(t, q2.Close(ctx))
	assert.Zero(t, countArchivesUnder(t, dir))
}

func TestConsumeInterruptionLeavesBatchQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{fail: func([]string) error {
		cancel()
		return errors.New("sink offline")
	}}
	q := openQueue(t, Options{BatchSize: 2, MaxRetries: 5, RetryDelay: time.Second, SplitBatch: SplitHalf}, sink.commit)

	require.NoError(t, q.Queue(ctx, upsertReq("doc-0")))
	err := q.Queue(ctx, upsertReq("doc-1"))
	require.Error(t, err)

	assert.Len(t, sink.calls(), 1, "cancellation stops the retry loop")
	assert.Empty(t, batchDirsUnder(t, q.ErrorDir()), "an interrupted batch is not quarantined")
	assert.Equal(t, 2, countArchivesUnder(t, q.QueueDir()), "the interrupted batch stays on disk")
	require.NoError(t, q.Close(context.Background()))
}

func TestOpenRemovesEmptyLeftoverDir(t *testing.T) {
	dir := t.TempDir()
	queueDir := filepath.Join(dir, queueSubdir)
	require.NoError(t, os.MkdirAll(filepath.Join(queueDir, "batch-000000000001-0000"), 0755))

	sink := &recordingSink{}
	q := openQueue(t, Options{Dir: dir, CommitLeftoversOnInit: true}, sink.commit)
	assert.Empty(t, sink.calls(), "an empty batch has nothing to deliver")
	assert.Len(t, batchDirsUnder(t, queueDir), 1, "only the fresh active directory remains")
	require.NoError(t, q.Close(context.Background()))
}

func TestConsumeCorruptArchiveIsFatal(t *testing.T) {
	dir := t.TempDir()
	queueDir := filepath.Join(dir, queueSubdir)
	name := "batch-000000000001-0000"
	writeLeftoverBatch(t, queueDir, name, "good-0")
	require.NoError(t, os.WriteFile(filepath.Join(queueDir, name, "001-upsert.zip"), []byte("torn"), 0644))

	sink := &recordingSink{}
	_, err := Open(context.Background(), Options{Dir: dir, CommitLeftoversOnInit: true}, sink.commit)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}
