package orchestrator

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventName is one of the four fixed lifecycle event names.
type EventName string

const (
	EventExecutionUpdated EventName = "workflow_execution_updated"
	EventNodeStarted      EventName = "workflow_node_started"
	EventNodeCompleted    EventName = "workflow_node_completed"
	EventNodeFailed       EventName = "workflow_node_failed"
)

// Event is one emitted lifecycle notification; Payload carries the
// camelCase JSON shape listeners expect.
type Event struct {
	Name    EventName
	Payload map[string]any
}

// Listener receives emitted events. A listener that panics is caught
// and logged: event emission is best-effort and must never abort a run.
type Listener func(Event)

// EventBus fans events out to every subscribed Listener.
type EventBus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Emit fans e out to every listener, dropping (and logging) any listener
// panic rather than letting it propagate.
func (b *EventBus) Emit(e Event) {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()

	for _, l := range listeners {
		func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					log.Warn().Interface("panic", r).Str("event", string(e.Name)).Msg("event listener panicked, dropping")
				}
			}()
			l(e)
		}(l)
	}
}

func executionUpdatedEvent(executionID uuid.UUID, state string, elapsedMS *int64, errMsg *string) Event {
	payload := map[string]any{"executionId": executionID, "state": state}
	if elapsedMS != nil {
		payload["elapsed"] = *elapsedMS
	}
	if errMsg != nil {
		payload["error"] = *errMsg
	}
	return Event{Name: EventExecutionUpdated, Payload: payload}
}

func nodeStartedEvent(executionID, nodeID uuid.UUID) Event {
	return Event{Name: EventNodeStarted, Payload: map[string]any{"executionId": executionID, "nodeId": nodeID}}
}

func nodeCompletedEvent(executionID, nodeID uuid.UUID) Event {
	return Event{Name: EventNodeCompleted, Payload: map[string]any{
		"executionId": executionID, "nodeId": nodeID, "state": "completed",
	}}
}

func nodeFailedEvent(executionID, nodeID uuid.UUID, errMsg string) Event {
	return Event{Name: EventNodeFailed, Payload: map[string]any{
		"executionId": executionID, "nodeId": nodeID, "error": errMsg,
	}}
}
