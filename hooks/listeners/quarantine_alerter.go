package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexuscommit/hooks"
)

// QuarantineAlerterListener logs a warning when a batch exhausts its delivery
// budget and is moved to the error directory. This can be used to alert
// operators that manual intervention is needed.
type QuarantineAlerterListener struct {
	logger *slog.Logger
}

// NewQuarantineAlerterListener creates a new listener for monitoring quarantined batches.
func NewQuarantineAlerterListener(logger *slog.Logger) *QuarantineAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &QuarantineAlerterListener{
		logger: logger.With("component", "QuarantineAlerterListener"),
	}
}

// OnEvent handles the OnBatchQuarantined event.
func (l *QuarantineAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnBatchQuarantined {
		return nil // Ignore other events
	}

	payload, ok := event.Payload().(hooks.BatchQuarantinedPayload)
	if !ok {
		l.logger.Error("Received OnBatchQuarantined event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	l.logger.Warn("Batch quarantined after exhausting delivery attempts",
		"error_dir", payload.Dir,
		"requests", payload.Requests,
		"error", payload.Error,
	)

	return nil
}

// Priority defines the execution order.
func (l *QuarantineAlerterListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *QuarantineAlerterListener) IsAsync() bool { return true }
