package fsqueue

import (
	"expvar"
	"sync"
	"time"

	"github.com/caio/go-tdigest/v4"
)

// Queue metrics are process-wide: all FSQueue instances feed the same
// counters, mirroring how expvar itself is global.
var (
	queueMetricsOnce sync.Once
	queueMetricsInst *queueMetrics
)

type queueMetrics struct {
	requestsQueued      *expvar.Int
	batchesSealed       *expvar.Int
	batchesCommitted    *expvar.Int
	requestsCommitted   *expvar.Int
	batchesQuarantined  *expvar.Int
	requestsQuarantined *expvar.Int
	commitAttempts      *expvar.Int

	mu      sync.Mutex
	latency *tdigest.TDigest
}

func sharedQueueMetrics() *queueMetrics {
	queueMetricsOnce.Do(func() {
		m := &queueMetrics{
			requestsQueued:      expvar.NewInt("fsqueue_requests_queued_total"),
			batchesSealed:       expvar.NewInt("fsqueue_batches_sealed_total"),
			batchesCommitted:    expvar.NewInt("fsqueue_batches_committed_total"),
			requestsCommitted:   expvar.NewInt("fsqueue_requests_committed_total"),
			batchesQuarantined:  expvar.NewInt("fsqueue_batches_quarantined_total"),
			requestsQuarantined: expvar.NewInt("fsqueue_requests_quarantined_total"),
			commitAttempts:      expvar.NewInt("fsqueue_commit_attempts_total"),
		}
		// tdigest.New with default options does not fail; a nil digest just
		// disables the quantile readout.
		m.latency, _ = tdigest.New()
		expvar.Publish("fsqueue_commit_latency_seconds", expvar.Func(m.latencySnapshot))
		queueMetricsInst = m
	})
	return queueMetricsInst
}

func (m *queueMetrics) observeCommitLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latency == nil {
		return
	}
	_ = m.latency.AddWeighted(d.Seconds(), 1)
}

func (m *queueMetrics) latencySnapshot() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := map[string]interface{}{
		"count": uint64(0),
		"p50":   0.0,
		"p95":   0.0,
		"p99":   0.0,
	}
	if m.latency == nil || m.latency.Count() == 0 {
		return snap
	}
	snap["count"] = m.latency.Count()
	snap["p50"] = m.latency.Quantile(0.50)
	snap["p95"] = m.latency.Quantile(0.95)
	snap["p99"] = m.latency.Quantile(0.99)
	return snap
}
