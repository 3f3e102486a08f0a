package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/nexuscommit/hooks"
)

// DeliveryStatsListener exposes counters about batch delivery outcomes.
var (
	// Use sync.Once to ensure these expvars are only ever created once,
	// making NewDeliveryStatsListener idempotent.
	deliveryMetricsOnce sync.Once
	batchesCommitted    *expvar.Int
	requestsCommitted   *expvar.Int
	batchesQuarantined  *expvar.Int
	requestsQuarantined *expvar.Int
)

func initDeliveryMetrics() {
	deliveryMetricsOnce.Do(func() {
		batchesCommitted = expvar.NewInt("committer_batches_committed_total")
		requestsCommitted = expvar.NewInt("committer_requests_committed_total")
		batchesQuarantined = expvar.NewInt("committer_batches_quarantined_total")
		requestsQuarantined = expvar.NewInt("committer_requests_quarantined_total")
		// Expose the failure ratio as a float.
		// This function will be called by the metrics endpoint each time it's scraped.
		expvar.Publish("committer_delivery_failure_ratio", expvar.Func(func() interface{} {
			delivered := requestsCommitted.Value()
			failed := requestsQuarantined.Value()
			total := delivered + failed
			if total == 0 {
				return 0.0 // Avoid division by zero.
			}
			return float64(failed) / float64(total)
		}))
	})
}

type DeliveryStatsListener struct {
	logger *slog.Logger

	// Metrics to track
	batchesCommitted    *expvar.Int
	requestsCommitted   *expvar.Int
	batchesQuarantined  *expvar.Int
	requestsQuarantined *expvar.Int
}

// NewDeliveryStatsListener creates a new listener.
func NewDeliveryStatsListener(logger *slog.Logger) *DeliveryStatsListener {
	if logger == nil {
		// Default to a discard logger to prevent nil panics if no logger is provided.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initDeliveryMetrics() // This will only run the registration logic once.
	return &DeliveryStatsListener{
		logger:              logger.With("component", "DeliveryStatsListener"),
		batchesCommitted:    batchesCommitted,
		requestsCommitted:   requestsCommitted,
		batchesQuarantined:  batchesQuarantined,
		requestsQuarantined: requestsQuarantined,
	}
}

// OnEvent is called when a batch delivery outcome event is triggered.
// Register it for both OnBatchCommitted and OnBatchQuarantined.
func (l *DeliveryStatsListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch payload := event.Payload().(type) {
	case hooks.BatchCommittedPayload:
		l.batchesCommitted.Add(1)
		l.requestsCommitted.Add(int64(payload.Requests))
		l.logger.Info("Batch delivery recorded",
			"dir", payload.Dir,
			"requests", payload.Requests,
			"duration", payload.Duration,
		)
	case hooks.BatchQuarantinedPayload:
		l.batchesQuarantined.Add(1)
		l.requestsQuarantined.Add(int64(payload.Requests))
	}

	// This is an async post-hook, so we don't return an error.
	return nil
}

// Priority defines the execution order. Lower numbers run first.
func (l *DeliveryStatsListener) Priority() int {
	return 100 // A lower priority is fine for metrics.
}

// IsAsync indicates this listener can run in the background.
func (l *DeliveryStatsListener) IsAsync() bool {
	return true
}
