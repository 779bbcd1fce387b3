package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkflowExecution is the persisted record of one run. It is owned
// exclusively by the orchestrator task handling it; no other writer may
// mutate it once Running.
type WorkflowExecution struct {
	mu sync.RWMutex

	id            uuid.UUID
	workflowID    uuid.UUID
	workspaceID   uuid.UUID
	environmentID *uuid.UUID

	state     ExecutionState
	elapsedMS int64
	errMsg    string

	startedAt time.Time
}

// NewWorkflowExecution constructs a WorkflowExecution in state Initialized.
func NewWorkflowExecution(id, workflowID, workspaceID uuid.UUID, environmentID *uuid.UUID, startedAt time.Time) *WorkflowExecution {
	return &WorkflowExecution{
		id:            id,
		workflowID:    workflowID,
		workspaceID:   workspaceID,
		environmentID: environmentID,
		state:         ExecutionInitialized,
		startedAt:     startedAt,
	}
}

// ReconstructWorkflowExecution rebuilds a WorkflowExecution from a
// persisted row, bypassing the Start/Complete/Fail/Cancel transition
// guards. Used only by store implementations loading rows back into
// memory, never by the orchestrator driving a live run.
func ReconstructWorkflowExecution(id, workflowID, workspaceID uuid.UUID, environmentID *uuid.UUID, state ExecutionState, elapsedMS int64, errMsg string, startedAt time.Time) *WorkflowExecution {
	return &WorkflowExecution{
		id:            id,
		workflowID:    workflowID,
		workspaceID:   workspaceID,
		environmentID: environmentID,
		state:         state,
		elapsedMS:     elapsedMS,
		errMsg:        errMsg,
		startedAt:     startedAt,
	}
}

func (e *WorkflowExecution) ID() uuid.UUID            { return e.id }
func (e *WorkflowExecution) WorkflowID() uuid.UUID     { return e.workflowID }
func (e *WorkflowExecution) WorkspaceID() uuid.UUID    { return e.workspaceID }
func (e *WorkflowExecution) EnvironmentID() *uuid.UUID { return e.environmentID }
func (e *WorkflowExecution) StartedAt() time.Time      { return e.startedAt }

// State returns the current lifecycle state.
func (e *WorkflowExecution) State() ExecutionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// ElapsedMS returns the elapsed duration in milliseconds, set only once the
// execution reaches a terminal state.
func (e *WorkflowExecution) ElapsedMS() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.elapsedMS
}

// Error returns the recorded failure message, if any.
func (e *WorkflowExecution) Error() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errMsg
}

// Start transitions Initialized → Running. A no-op (returns false) if the
// execution is not in Initialized.
func (e *WorkflowExecution) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != ExecutionInitialized {
		return false
	}
	e.state = ExecutionRunning
	return true
}

// finish transitions a non-terminal execution (Initialized or Running) to
// a terminal state exactly once. Terminal states are absorbing: once in a
// terminal state, finish is a no-op.
func (e *WorkflowExecution) finish(state ExecutionState, now time.Time, errMsg string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.IsTerminal() {
		return false
	}
	e.state = state
	e.elapsedMS = now.Sub(e.startedAt).Milliseconds()
	e.errMsg = errMsg
	return true
}

// Complete transitions Running → Completed.
func (e *WorkflowExecution) Complete(now time.Time) bool { return e.finish(ExecutionCompleted, now, "") }

// Fail transitions Initialized or Running → Failed, recording errMsg. The
// orchestrator fails an execution that is still Initialized when its
// workflow does not compile.
func (e *WorkflowExecution) Fail(now time.Time, errMsg string) bool {
	return e.finish(ExecutionFailed, now, errMsg)
}

// Cancel transitions Running → Cancelled. A no-op on an
// already-terminal execution.
func (e *WorkflowExecution) Cancel(now time.Time) bool {
	return e.finish(ExecutionCancelled, now, "")
}
