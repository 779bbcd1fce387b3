package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeExecution is the persisted per-node row: one per (execution, node,
// iteration) tuple.
type NodeExecution struct {
	mu sync.RWMutex

	id                  uuid.UUID
	workflowExecutionID uuid.UUID
	workflowNodeID      uuid.UUID
	loopIteration       *int

	state     NodeExecState
	elapsedMS int64
	errMsg    string
	result    any

	startedAt time.Time
}

// NewNodeExecution constructs a NodeExecution in state Running, as
// created at node entry.
func NewNodeExecution(id, workflowExecutionID, workflowNodeID uuid.UUID, loopIteration *int, startedAt time.Time) *NodeExecution {
	return &NodeExecution{
		id:                  id,
		workflowExecutionID: workflowExecutionID,
		workflowNodeID:      workflowNodeID,
		loopIteration:       loopIteration,
		state:               NodeExecRunning,
		startedAt:           startedAt,
	}
}

// ReconstructNodeExecution rebuilds a NodeExecution from a persisted row.
// Used only by store implementations loading rows back into memory.
func ReconstructNodeExecution(id, workflowExecutionID, workflowNodeID uuid.UUID, loopIteration *int, state NodeExecState, elapsedMS int64, errMsg string, result any, startedAt time.Time) *NodeExecution {
	return &NodeExecution{
		id:                  id,
		workflowExecutionID: workflowExecutionID,
		workflowNodeID:      workflowNodeID,
		loopIteration:       loopIteration,
		state:               state,
		elapsedMS:           elapsedMS,
		errMsg:              errMsg,
		result:              result,
		startedAt:           startedAt,
	}
}

func (n *NodeExecution) ID() uuid.UUID                  { return n.id }
func (n *NodeExecution) WorkflowExecutionID() uuid.UUID { return n.workflowExecutionID }
func (n *NodeExecution) WorkflowNodeID() uuid.UUID      { return n.workflowNodeID }
func (n *NodeExecution) LoopIteration() *int            { return n.loopIteration }
func (n *NodeExecution) StartedAt() time.Time           { return n.startedAt }

func (n *NodeExecution) State() NodeExecState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *NodeExecution) ElapsedMS() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.elapsedMS
}

func (n *NodeExecution) Error() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.errMsg
}

func (n *NodeExecution) Result() any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.result
}

// Complete transitions Running → Completed, recording elapsed time and
// result.
func (n *NodeExecution) Complete(now time.Time, result any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = NodeExecCompleted
	n.elapsedMS = now.Sub(n.startedAt).Milliseconds()
	n.result = result
}

// Fail transitions Running → Failed, recording elapsed time and errMsg.
func (n *NodeExecution) Fail(now time.Time, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = NodeExecFailed
	n.elapsedMS = now.Sub(n.startedAt).Milliseconds()
	n.errMsg = errMsg
}

// Skip marks the row Skipped, used for enabled=false nodes that are
// entered and immediately recorded without running.
func (n *NodeExecution) Skip(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = NodeExecSkipped
	n.elapsedMS = now.Sub(n.startedAt).Milliseconds()
}
