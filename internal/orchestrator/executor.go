// Package orchestrator drives a compiled ExecutionPlan: it spawns the
// background task, walks the plan's steps, persists per-node execution
// records, and honours cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lybpyn/yaak/internal/domain"
)

// NodeExecutor is the external capability the orchestrator depends on
// but does not implement: given a node (with already-rendered config)
// and the live ExecutionContext, produce a NodeResult or fail.
type NodeExecutor interface {
	Execute(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error)
}

// NodeError is the user-facing failure an executor returns; the
// orchestrator wraps a generic Go error from an executor into one.
type NodeError struct {
	NodeID  uuid.UUID
	Message string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Message, e.Cause)
	}
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

func (e *NodeError) Unwrap() error { return e.Cause }

// NoOpExecutor implements the trigger contract: manual_trigger,
// webhook_trigger, and timer_trigger all return {} immediately, since
// schedule/webhook wiring is a concern of the surrounding application.
type NoOpExecutor struct{}

func (NoOpExecutor) Execute(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
	return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{}}, nil
}

// StubExecutor is a test double whose behavior is supplied by Fn.
type StubExecutor struct {
	Fn func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error)
}

func (s *StubExecutor) Execute(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
	if s.Fn == nil {
		return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{}}, nil
	}
	return s.Fn(ctx, node, execCtx)
}

// NodeExecutorRegistry maps a node subtype to the NodeExecutor that
// handles it. Action subtypes without a registered executor fall back to
// a registry-wide default (if set), letting tests and partial
// deployments run without wiring every subtype.
type NodeExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[domain.NodeSubtype]NodeExecutor
	fallback  NodeExecutor
}

// NewNodeExecutorRegistry constructs an empty registry with triggers
// pre-registered against NoOpExecutor.
func NewNodeExecutorRegistry() *NodeExecutorRegistry {
	r := &NodeExecutorRegistry{executors: make(map[domain.NodeSubtype]NodeExecutor)}
	noop := NoOpExecutor{}
	r.Register(domain.SubtypeManualTrigger, noop)
	r.Register(domain.SubtypeWebhookTrigger, noop)
	r.Register(domain.SubtypeTimerTrigger, noop)
	return r
}

// Register assigns the executor responsible for subtype.
func (r *NodeExecutorRegistry) Register(subtype domain.NodeSubtype, executor NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[subtype] = executor
}

// SetFallback assigns the executor used when no subtype-specific
// executor is registered.
func (r *NodeExecutorRegistry) SetFallback(executor NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = executor
}

// Resolve returns the executor for subtype, or the fallback if set.
func (r *NodeExecutorRegistry) Resolve(subtype domain.NodeSubtype) (NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.executors[subtype]; ok {
		return e, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
