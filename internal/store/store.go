// Package store implements the persistence contract the orchestration
// core depends on: loading a workflow's nodes/edges, and
// saving/listing WorkflowExecution and NodeExecution rows. Change-event
// broadcast is the store's own concern; the core never subscribes to or
// emits these; host-application surfaces (UI sync, live views) do.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lybpyn/yaak/internal/domain"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("not found")

// Source tags who is performing an upsert, so a store can choose
// timestamp semantics: Sync/Import preserve timestamps, User/Background
// advance them.
type Source string

const (
	SourceUser       Source = "user"
	SourceBackground Source = "background"
	SourceSync       Source = "sync"
	SourceImport     Source = "import"
)

// Store is the persistence contract required by the graph compiler and
// orchestrator. Rows are persisted directly rather than event-sourced:
// executions interrupted mid-run are abandoned, so there is no replay
// to support.
type Store interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	UpsertWorkflow(ctx context.Context, workflow *domain.Workflow, source Source) error

	GetWorkflowNodes(ctx context.Context, workflowID uuid.UUID) ([]*domain.Node, error)
	GetWorkflowEdges(ctx context.Context, workflowID uuid.UUID) ([]*domain.Edge, error)
	UpsertNode(ctx context.Context, node *domain.Node, source Source) error
	UpsertEdge(ctx context.Context, edge *domain.Edge, source Source) error
	DeleteNode(ctx context.Context, id uuid.UUID) error
	DeleteEdge(ctx context.Context, id uuid.UUID) error

	GetViewport(ctx context.Context, workflowID uuid.UUID) (*domain.Viewport, error)
	UpsertViewport(ctx context.Context, viewport *domain.Viewport, source Source) error

	SaveExecution(ctx context.Context, exec *domain.WorkflowExecution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error)
	ListExecutions(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*domain.WorkflowExecution, error)

	SaveNodeExecution(ctx context.Context, ne *domain.NodeExecution) error
	ListNodeExecutions(ctx context.Context, executionID uuid.UUID) ([]*domain.NodeExecution, error)

	// PruneExecutions deletes a workflow's executions (and their
	// NodeExecution rows) older than its `keep` most recent. The host
	// application calls this on whatever schedule it likes; the
	// orchestrator itself never prunes.
	PruneExecutions(ctx context.Context, workflowID uuid.UUID, keep int) error
}

// ChangeOp tags a change event's operation.
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// ChangeListener receives a store's change events. Delivery is
// best-effort: a listener that panics is logged and dropped, never
// allowed to fail the write that triggered it.
type ChangeListener func(op ChangeOp, model any)

// changeNotifier is the broadcast half of the persistence contract,
// embedded by both store implementations.
type changeNotifier struct {
	mu        sync.RWMutex
	listeners []ChangeListener
}

// OnChange subscribes l to every subsequent change event.
func (n *changeNotifier) OnChange(l ChangeListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *changeNotifier) notify(op ChangeOp, model any) {
	n.mu.RLock()
	listeners := append([]ChangeListener(nil), n.listeners...)
	n.mu.RUnlock()

	for _, l := range listeners {
		func(l ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					log.Warn().Interface("panic", r).Str("op", string(op)).Msg("change listener panicked, dropping")
				}
			}()
			l(op, model)
		}(l)
	}
}
