package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/nexuscommit/core"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// Committer Lifecycle Events
	EventPreInit   EventType = "PreInit"
	EventPostInit  EventType = "PostInit"
	EventPreClose  EventType = "PreClose"
	EventPostClose EventType = "PostClose"
	EventPreClean  EventType = "PreClean"
	EventPostClean EventType = "PostClean"

	// Request Lifecycle Events
	EventPreUpsert   EventType = "PreUpsert"
	EventPostUpsert  EventType = "PostUpsert"
	EventPreDelete   EventType = "PreDelete"
	EventPostDelete  EventType = "PostDelete"
	EventOnRejected  EventType = "OnRejected"

	// Queue Events
	EventOnBatchSealed      EventType = "OnBatchSealed"
	EventOnBatchCommitted   EventType = "OnBatchCommitted"
	EventOnBatchQuarantined EventType = "OnBatchQuarantined"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// --- Payloads and Event Creators ---

// InitPayload contains the data for a PreInit event.
type InitPayload struct {
	WorkDir string
}

// NewPreInitEvent creates a new event for before the committer initializes.
func NewPreInitEvent(payload InitPayload) HookEvent {
	return &BaseEvent{eventType: EventPreInit, payload: payload}
}

// PostInitPayload contains the data for a PostInit event.
type PostInitPayload struct {
	WorkDir   string
	Leftovers int // sealed batches found on disk at startup
	Error     error
}

// NewPostInitEvent creates a new event for after the committer has initialized.
func NewPostInitEvent(payload PostInitPayload) HookEvent {
	return &BaseEvent{eventType: EventPostInit, payload: payload}
}

// PreUpsertPayload contains the data for a PreUpsert event. Fields are
// pointers to allow listeners to modify the request before it is queued.
type PreUpsertPayload struct {
	Reference *string
	Meta      *core.Metadata
}

// NewPreUpsertEvent creates a new event for before an upsert is queued.
func NewPreUpsertEvent(payload PreUpsertPayload) HookEvent {
	return &BaseEvent{eventType: EventPreUpsert, payload: payload}
}

// PostUpsertPayload contains the data for a PostUpsert event.
type PostUpsertPayload struct {
	Reference string
	Error     error
}

// NewPostUpsertEvent creates a new event for after an upsert was queued.
func NewPostUpsertEvent(payload PostUpsertPayload) HookEvent {
	return &BaseEvent{eventType: EventPostUpsert, payload: payload}
}

// PreDeletePayload contains the data for a PreDelete event. Fields are
// pointers to allow listeners to modify the request before it is queued.
type PreDeletePayload struct {
	Reference *string
	Meta      *core.Metadata
}

// NewPreDeleteEvent creates a new event for before a delete is queued.
func NewPreDeleteEvent(payload PreDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPreDelete, payload: payload}
}

// PostDeletePayload contains the data for a PostDelete event.
type PostDeletePayload struct {
	Reference string
	Error     error
}

// NewPostDeleteEvent creates a new event for after a delete was queued.
func NewPostDeleteEvent(payload PostDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPostDelete, payload: payload}
}

// RejectedPayload contains the data for an OnRejected event, fired when a
// request fails the committer's accept restrictions.
type RejectedPayload struct {
	Reference string
	Operation core.Operation
}

// NewOnRejectedEvent creates a new event for a request that was not accepted.
func NewOnRejectedEvent(payload RejectedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnRejected, payload: payload}
}

// LifecyclePayload is used for close/clean events. It is currently empty but
// can be extended.
type LifecyclePayload struct{}

// NewPreCloseEvent creates a new event for before the committer closes.
func NewPreCloseEvent() HookEvent {
	return &BaseEvent{eventType: EventPreClose, payload: LifecyclePayload{}}
}

// PostClosePayload contains the data for a PostClose event.
type PostClosePayload struct {
	Error error
}

// NewPostCloseEvent creates a new event for after the committer has closed.
func NewPostCloseEvent(payload PostClosePayload) HookEvent {
	return &BaseEvent{eventType: EventPostClose, payload: payload}
}

// NewPreCleanEvent creates a new event for before the queue is cleaned.
func NewPreCleanEvent() HookEvent {
	return &BaseEvent{eventType: EventPreClean, payload: LifecyclePayload{}}
}

// PostCleanPayload contains the data for a PostClean event.
type PostCleanPayload struct {
	Error error
}

// NewPostCleanEvent creates a new event for after the queue was cleaned.
func NewPostCleanEvent(payload PostCleanPayload) HookEvent {
	return &BaseEvent{eventType: EventPostClean, payload: payload}
}

// BatchSealedPayload contains data about a batch that reached its size
// boundary and was handed to the consumer.
type BatchSealedPayload struct {
	Dir      string
	Requests int
}

// NewOnBatchSealedEvent creates an event for a just-sealed batch.
func NewOnBatchSealedEvent(payload BatchSealedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnBatchSealed, payload: payload}
}

// BatchCommittedPayload contains data about a fully delivered batch.
type BatchCommittedPayload struct {
	Dir      string
	Requests int
	Duration time.Duration
}

// NewOnBatchCommittedEvent creates an event for a fully delivered batch.
func NewOnBatchCommittedEvent(payload BatchCommittedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnBatchCommitted, payload: payload}
}

// BatchQuarantinedPayload contains data about a batch moved to the error
// directory after exhausting its delivery budget.
type BatchQuarantinedPayload struct {
	Dir      string // error directory holding the survivors
	Requests int
	Error    error
}

// NewOnBatchQuarantinedEvent creates an event for a quarantined batch.
func NewOnBatchQuarantinedEvent(payload BatchQuarantinedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnBatchQuarantined, payload: payload}
}

// --- HookListener Interface ---

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook (e.g., PreUpsert) can cancel the operation.
	// Errors from "Post" hooks are typically logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post-events.
	IsAsync() bool
}

// listenerWithPriority wraps a listener with its priority for ordered storage.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		// Default to a discard logger to prevent nil panics if no logger is provided.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]

	// sort.Search finds the first index i where l[i].priority >= item.priority.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})

	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks MUST be synchronous to allow for cancellation.
		// Post-hooks can be sync or async based on the listener's preference.
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					// For Pre-hooks, the error is critical and cancels the operation.
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				// For synchronous Post-hooks, we just log the error and continue.
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
