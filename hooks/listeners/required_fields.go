package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexuscommit/hooks"
)

// RequiredFieldsListener rejects upserts that are missing mandatory metadata
// fields. Because it is registered as a Pre-hook, returning an error cancels
// the queue operation before anything touches the disk.
type RequiredFieldsListener struct {
	logger *slog.Logger
	fields []string
}

// NewRequiredFieldsListener creates a new listener enforcing the presence of
// the given metadata fields on every upsert.
func NewRequiredFieldsListener(logger *slog.Logger, fields []string) *RequiredFieldsListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RequiredFieldsListener{
		logger: logger.With("component", "RequiredFieldsListener"),
		fields: fields,
	}
}

// OnEvent handles PreUpsert events to validate metadata before queuing.
func (l *RequiredFieldsListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPreUpsert {
		return nil
	}

	payload, ok := event.Payload().(hooks.PreUpsertPayload)
	if !ok {
		l.logger.Error("Received PreUpsert event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	if payload.Meta == nil {
		if len(l.fields) == 0 {
			return nil
		}
		return fmt.Errorf("upsert has no metadata, required fields: %v", l.fields)
	}

	for _, field := range l.fields {
		if !payload.Meta.Has(field) {
			ref := ""
			if payload.Reference != nil {
				ref = *payload.Reference
			}
			l.logger.Warn("Rejecting upsert with missing metadata field",
				"reference", ref,
				"field", field,
			)
			return fmt.Errorf("required metadata field %q is missing", field)
		}
	}

	return nil
}

// Priority defines the execution order. Validation runs before monitoring hooks.
func (l *RequiredFieldsListener) Priority() int { return 10 }

// IsAsync indicates this listener must run synchronously.
// Pre-hooks always run synchronously regardless of this value.
func (l *RequiredFieldsListener) IsAsync() bool { return false }
