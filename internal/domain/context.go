package domain

import (
	"sync"

	"github.com/google/uuid"
)

// LoopContext is the per-iteration record inside a running loop: its
// position, the total iteration count, and the current item when the loop
// is iterating an array.
type LoopContext struct {
	NodeID uuid.UUID
	Index  int
	Total  int
	Item   any
}

// NodeResult is the recorded outcome of one node's execution, addressable
// by later steps through the template renderer.
type NodeResult struct {
	NodeID          uuid.UUID
	Output          any
	ElapsedMS       int64
	LoopResults     []any
	ParallelResults []any
}

// StepResponse is the template-facing, HTTP-like view of a step's output.
// The orchestrator adapts each NodeResult into this shape; the template renderer
// never sees a raw NodeResult directly.
type StepResponse struct {
	Body      any
	Headers   map[string]string
	Status    int
	ElapsedMS int64
	URL       string
}

// ExecutionContext is the in-memory, per-run state owned by the
// orchestrator task driving one WorkflowExecution. It is not shared
// between tasks: Parallel branches receive a Clone taken at spawn time,
// and a branch's writes never propagate back to the parent.
type ExecutionContext struct {
	mu sync.RWMutex

	WorkflowID    uuid.UUID
	ExecutionID   uuid.UUID
	EnvironmentID *uuid.UUID

	Variables *VariableSet

	nodeResults     map[uuid.UUID]*NodeResult
	nodeResultOrder []uuid.UUID
	loopStack       []LoopContext

	// activeBranch carries the current conditional branch tag ("true" /
	// "false") so the template renderer can resolve `conditional.branch`.
	activeBranch string
}

// NewExecutionContext constructs an ExecutionContext seeded with vars.
func NewExecutionContext(workflowID, executionID uuid.UUID, environmentID *uuid.UUID, vars map[string]any) *ExecutionContext {
	return &ExecutionContext{
		WorkflowID:    workflowID,
		ExecutionID:   executionID,
		EnvironmentID: environmentID,
		Variables:     NewVariableSetFromMap(vars),
		nodeResults:   make(map[uuid.UUID]*NodeResult),
	}
}

// SetNodeResult records r as the most recent result for its node id. A
// single node id keys only its most recent result; loop iterations
// overwrite the entry until the loop's aggregated result is published
// under the loop node's own id at loop completion.
func (c *ExecutionContext) SetNodeResult(r *NodeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.nodeResults[r.NodeID]; !exists {
		c.nodeResultOrder = append(c.nodeResultOrder, r.NodeID)
	}
	c.nodeResults[r.NodeID] = r
}

// NodeResult returns the most recently recorded result for nodeID, if any.
func (c *ExecutionContext) NodeResult(nodeID uuid.UUID) (*NodeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.nodeResults[nodeID]
	return r, ok
}

// OrderedResults returns the node results in the order their node ids
// were first inserted; "last completed node" lookups need insertion
// order, not Go's undefined map iteration order.
func (c *ExecutionContext) OrderedResults() []*NodeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*NodeResult, 0, len(c.nodeResultOrder))
	for _, id := range c.nodeResultOrder {
		if r, ok := c.nodeResults[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// PushLoop pushes a LoopContext frame, entering one more nested loop.
func (c *ExecutionContext) PushLoop(lc LoopContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopStack = append(c.loopStack, lc)
}

// PopLoop pops the innermost LoopContext frame.
func (c *ExecutionContext) PopLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loopStack) > 0 {
		c.loopStack = c.loopStack[:len(c.loopStack)-1]
	}
}

// CurrentLoop returns the innermost LoopContext, if any loop is active.
func (c *ExecutionContext) CurrentLoop() (LoopContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.loopStack) == 0 {
		return LoopContext{}, false
	}
	return c.loopStack[len(c.loopStack)-1], true
}

// SetActiveBranch records the currently selected conditional branch tag.
func (c *ExecutionContext) SetActiveBranch(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeBranch = branch
}

// ActiveBranch returns the currently selected conditional branch tag.
func (c *ExecutionContext) ActiveBranch() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeBranch
}

// Clone returns a deep-enough copy of c for a Parallel branch:
// variables and node results are snapshotted independently so the
// branch's subsequent writes never propagate back to the parent.
func (c *ExecutionContext) Clone() *ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &ExecutionContext{
		WorkflowID:    c.WorkflowID,
		ExecutionID:   c.ExecutionID,
		EnvironmentID: c.EnvironmentID,
		Variables:     c.Variables.Clone(),
		nodeResults:   make(map[uuid.UUID]*NodeResult, len(c.nodeResults)),
		loopStack:     append([]LoopContext(nil), c.loopStack...),
		activeBranch:  c.activeBranch,
	}
	for id, r := range c.nodeResults {
		rc := *r
		clone.nodeResults[id] = &rc
	}
	clone.nodeResultOrder = append([]uuid.UUID(nil), c.nodeResultOrder...)
	return clone
}
