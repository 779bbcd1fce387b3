package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lybpyn/yaak/internal/compiler"
	"github.com/lybpyn/yaak/internal/domain"
	"github.com/lybpyn/yaak/internal/template"
)

// errCancelled is the sentinel stepRunner methods return when cancellation
// is observed; run() translates it into a clean Cancelled transition
// rather than a Failed one.
var errCancelled = errors.New("execution cancelled")

// stepRunner interprets one ExecutionPlan's tree of ExecutionSteps
// against a live ExecutionContext. It owns the per-node bookkeeping:
// NodeExecution lifecycle, result recording, and event emission.
type stepRunner struct {
	orch       *Orchestrator
	ctx        context.Context
	exec       *domain.WorkflowExecution
	plan       *compiler.ExecutionPlan
	wfCtx      *template.WorkflowContext
	cancelFlag *atomic.Bool

	// wfMu guards wfCtx.Steps, the one piece of wfCtx mutated from
	// concurrently-running Parallel branches.
	wfMu sync.Mutex
}

// runSteps executes steps in order, aborting on the first failure or
// observed cancellation.
func (r *stepRunner) runSteps(execCtx *domain.ExecutionContext, steps []*compiler.ExecutionStep) error {
	_, _, err := r.runStepsWithCursor(execCtx, steps)
	return err
}

// runStepsWithCursor is runSteps plus the explicit "last completed node"
// cursor a Loop needs to find its per-iteration result; map iteration
// order is undefined, so the cursor is tracked explicitly.
func (r *stepRunner) runStepsWithCursor(execCtx *domain.ExecutionContext, steps []*compiler.ExecutionStep) (uuid.UUID, bool, error) {
	var lastID uuid.UUID
	hasLast := false
	for _, step := range steps {
		if r.cancelFlag.Load() {
			return lastID, hasLast, errCancelled
		}
		id, ok, err := r.runStepWithCursor(execCtx, step)
		if err != nil {
			return lastID, hasLast, err
		}
		if ok {
			lastID, hasLast = id, true
		}
	}
	return lastID, hasLast, nil
}

func (r *stepRunner) runStepWithCursor(execCtx *domain.ExecutionContext, step *compiler.ExecutionStep) (uuid.UUID, bool, error) {
	switch step.Kind {
	case compiler.StepSequential:
		if _, err := r.runSingleNode(execCtx, step.NodeID, nil); err != nil {
			return uuid.Nil, false, err
		}
		return step.NodeID, true, nil
	case compiler.StepConditional:
		if err := r.runConditional(execCtx, step); err != nil {
			return uuid.Nil, false, err
		}
		return step.NodeID, true, nil
	case compiler.StepLoop:
		if err := r.runLoop(execCtx, step); err != nil {
			return uuid.Nil, false, err
		}
		return step.NodeID, true, nil
	case compiler.StepParallel:
		if err := r.runParallel(execCtx, step); err != nil {
			return uuid.Nil, false, err
		}
		return step.NodeID, true, nil
	default:
		return uuid.Nil, false, fmt.Errorf("unknown step kind %d", step.Kind)
	}
}

func (r *stepRunner) currentLoopIteration(execCtx *domain.ExecutionContext) *int {
	if lc, ok := execCtx.CurrentLoop(); ok {
		idx := lc.Index
		return &idx
	}
	return nil
}

// runSingleNode is the Sequential step and a single Parallel branch's
// entire body (targets of a Parallel step are not expanded further, so
// each is just one node). It carries the full per-node life cycle:
// persist Running, (optionally) render config, invoke the executor with
// at most one retry, persist the terminal state, emit events.
func (r *stepRunner) runSingleNode(execCtx *domain.ExecutionContext, nodeID uuid.UUID, loopIterOverride *int) (*domain.NodeResult, error) {
	nodeView, ok := r.plan.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("plan references unknown node %s", nodeID)
	}
	node := domain.NewNode(nodeID, r.exec.WorkflowID(), domain.NodeType(nodeView.Type), domain.NodeSubtype(nodeView.Subtype), nodeView.Config, nodeView.Enabled)

	loopIter := loopIterOverride
	if loopIter == nil {
		loopIter = r.currentLoopIteration(execCtx)
	}

	startedAt := time.Now()
	ne := domain.NewNodeExecution(uuid.New(), r.exec.ID(), nodeID, loopIter, startedAt)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	r.orch.events.Emit(nodeStartedEvent(r.exec.ID(), nodeID))

	if !node.Enabled() {
		ne.Skip(time.Now())
		_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
		result := &domain.NodeResult{NodeID: nodeID, Output: map[string]any{}}
		execCtx.SetNodeResult(result)
		return result, nil
	}

	renderer := template.NewRenderer(execCtx.Variables, r.renderContext(), nil, template.PolicyThrow)
	renderedAny, err := renderer.RenderValue(node.Config())
	if err != nil {
		return nil, r.failNode(ne, nodeID, "template render failed", err)
	}
	renderedConfig, _ := renderedAny.(map[string]any)
	renderedNode := node.WithConfig(renderedConfig)

	executor, ok := r.orch.executors.Resolve(node.Subtype())
	if !ok {
		executor = NoOpExecutor{}
	}

	result, execErr := executor.Execute(r.ctx, renderedNode, execCtx)
	if execErr != nil {
		// Non-goals cap every node at exactly one retry per run.
		delay := r.orch.retry.Delay()
		select {
		case <-r.ctx.Done():
			execErr = r.ctx.Err()
		case <-time.After(delay):
			result, execErr = executor.Execute(r.ctx, renderedNode, execCtx)
		}
	}
	if execErr != nil {
		return nil, r.failNode(ne, nodeID, "node execution failed", execErr)
	}

	ne.Complete(time.Now(), result.Output)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	execCtx.SetNodeResult(result)
	r.appendStepResponse(adaptToStepResponse(result))
	r.orch.events.Emit(nodeCompletedEvent(r.exec.ID(), nodeID))
	return result, nil
}

func (r *stepRunner) failNode(ne *domain.NodeExecution, nodeID uuid.UUID, message string, cause error) error {
	ne.Fail(time.Now(), cause.Error())
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	r.orch.events.Emit(nodeFailedEvent(r.exec.ID(), nodeID, cause.Error()))
	return &NodeError{NodeID: nodeID, Message: message, Cause: cause}
}

// skipNode closes out a control node's row when cancellation abandons it
// mid-flight, so no NodeExecution is ever left in Running once the run
// reaches a terminal state. Always returns errCancelled.
func (r *stepRunner) skipNode(ne *domain.NodeExecution) error {
	ne.Skip(time.Now())
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	return errCancelled
}

func (r *stepRunner) appendStepResponse(sr *domain.StepResponse) {
	r.wfMu.Lock()
	defer r.wfMu.Unlock()
	r.wfCtx.Steps = append(r.wfCtx.Steps, sr)
}

// renderContext snapshots wfCtx under the lock. Renderers run inside
// concurrently-executing parallel branches while completed branches
// append to wfCtx.Steps, so they must never read the live struct.
func (r *stepRunner) renderContext() *template.WorkflowContext {
	r.wfMu.Lock()
	defer r.wfMu.Unlock()
	return &template.WorkflowContext{
		Steps:  append([]*domain.StepResponse(nil), r.wfCtx.Steps...),
		Loop:   r.wfCtx.Loop,
		Branch: r.wfCtx.Branch,
	}
}

// runConditional renders the conditional node's condition, selects a
// branch, and executes it in the current context.
func (r *stepRunner) runConditional(execCtx *domain.ExecutionContext, step *compiler.ExecutionStep) error {
	nodeView := r.plan.Nodes[step.NodeID]
	startedAt := time.Now()
	ne := domain.NewNodeExecution(uuid.New(), r.exec.ID(), step.NodeID, r.currentLoopIteration(execCtx), startedAt)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	r.orch.events.Emit(nodeStartedEvent(r.exec.ID(), step.NodeID))

	conditionExpr, _ := nodeView.Config["condition"].(string)
	renderer := template.NewRenderer(execCtx.Variables, r.renderContext(), nil, template.PolicyThrow)
	rendered, err := renderer.RenderString(conditionExpr)
	if err != nil {
		return r.failNode(ne, step.NodeID, "condition render failed", err)
	}

	branchTag := "false"
	branchSteps := step.FalseBranch
	if template.CoerceBool(rendered) {
		branchTag = "true"
		branchSteps = step.TrueBranch
	}
	execCtx.SetActiveBranch(branchTag)
	r.wfCtx.Branch = branchTag

	result := &domain.NodeResult{NodeID: step.NodeID, Output: map[string]any{"branch": branchTag}}
	ne.Complete(time.Now(), result.Output)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	execCtx.SetNodeResult(result)
	r.orch.events.Emit(nodeCompletedEvent(r.exec.ID(), step.NodeID))

	return r.runSteps(execCtx, branchSteps)
}

// runLoop iterates the loop node's body per its loop_type.
func (r *stepRunner) runLoop(execCtx *domain.ExecutionContext, step *compiler.ExecutionStep) error {
	nodeView := r.plan.Nodes[step.NodeID]
	startedAt := time.Now()
	ne := domain.NewNodeExecution(uuid.New(), r.exec.ID(), step.NodeID, r.currentLoopIteration(execCtx), startedAt)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	r.orch.events.Emit(nodeStartedEvent(r.exec.ID(), step.NodeID))

	loopType, _ := nodeView.Config["loop_type"].(string)
	var items []any
	var total int

	switch loopType {
	case "count":
		total = toInt(nodeView.Config["count"])
		items = make([]any, total)
	case "array":
		arrExpr, _ := nodeView.Config["array_variable"].(string)
		renderer := template.NewRenderer(execCtx.Variables, r.renderContext(), nil, template.PolicyThrow)
		rendered, err := renderer.RenderString(arrExpr)
		if err != nil {
			return r.failNode(ne, step.NodeID, "loop array render failed", err)
		}
		var arr []any
		if err := json.Unmarshal([]byte(rendered), &arr); err != nil {
			return r.failNode(ne, step.NodeID, "loop array is not valid JSON", err)
		}
		items, total = arr, len(arr)
	default:
		return r.failNode(ne, step.NodeID, "invalid loop config", fmt.Errorf("unknown loop_type %q", loopType))
	}

	loopResults := make([]any, 0, total)
	for i := 0; i < total; i++ {
		if r.cancelFlag.Load() {
			return r.skipNode(ne)
		}
		var item any
		if i < len(items) {
			item = items[i]
		}
		lc := domain.LoopContext{NodeID: step.NodeID, Index: i, Total: total, Item: item}
		execCtx.PushLoop(lc)
		r.wfCtx.Loop = &lc

		lastID, hasLast, err := r.runStepsWithCursor(execCtx, step.Body)

		execCtx.PopLoop()
		if prev, ok := execCtx.CurrentLoop(); ok {
			r.wfCtx.Loop = &prev
		} else {
			r.wfCtx.Loop = nil
		}

		if err != nil {
			if errors.Is(err, errCancelled) {
				return r.skipNode(ne)
			}
			return r.failNode(ne, step.NodeID, "loop iteration failed", err)
		}

		var iterOutput any
		if hasLast {
			if res, ok := execCtx.NodeResult(lastID); ok {
				iterOutput = res.Output
			}
		}
		loopResults = append(loopResults, iterOutput)
	}

	result := &domain.NodeResult{
		NodeID:      step.NodeID,
		Output:      map[string]any{"loop_results": loopResults},
		LoopResults: loopResults,
	}
	ne.Complete(time.Now(), result.Output)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	execCtx.SetNodeResult(result)
	r.orch.events.Emit(nodeCompletedEvent(r.exec.ID(), step.NodeID))
	return nil
}

// runParallel spawns one goroutine per branch target, each against a
// cloned ExecutionContext snapshot, and awaits all before aggregating.
func (r *stepRunner) runParallel(execCtx *domain.ExecutionContext, step *compiler.ExecutionStep) error {
	startedAt := time.Now()
	ne := domain.NewNodeExecution(uuid.New(), r.exec.ID(), step.NodeID, r.currentLoopIteration(execCtx), startedAt)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	r.orch.events.Emit(nodeStartedEvent(r.exec.ID(), step.NodeID))

	if r.cancelFlag.Load() {
		return r.skipNode(ne)
	}

	type outcome struct {
		result *domain.NodeResult
		err    error
	}
	outcomes := make([]outcome, len(step.NodeIDs))

	var wg sync.WaitGroup
	for i, targetID := range step.NodeIDs {
		wg.Add(1)
		branchCtx := execCtx.Clone()
		go func(i int, targetID uuid.UUID, branchCtx *domain.ExecutionContext) {
			defer wg.Done()
			res, err := r.runSingleNode(branchCtx, targetID, nil)
			outcomes[i] = outcome{result: res, err: err}
		}(i, targetID, branchCtx)
	}

	// Cancellation observed here stops further dispatch but does not
	// abort already-spawned branches; we still await them below and
	// discard their outcomes.
	cancelledMidFlight := r.cancelFlag.Load()
	wg.Wait()

	if cancelledMidFlight {
		return r.skipNode(ne)
	}

	var firstErr error
	parallelResults := make([]any, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		if o.result != nil {
			parallelResults = append(parallelResults, o.result.Output)
		}
	}

	if firstErr != nil {
		return r.failNode(ne, step.NodeID, "parallel branch failed", firstErr)
	}

	result := &domain.NodeResult{
		NodeID:          step.NodeID,
		Output:          map[string]any{"parallel_results": parallelResults},
		ParallelResults: parallelResults,
	}
	ne.Complete(time.Now(), result.Output)
	_ = r.orch.store.SaveNodeExecution(r.ctx, ne)
	execCtx.SetNodeResult(result)
	r.orch.events.Emit(nodeCompletedEvent(r.exec.ID(), step.NodeID))
	return nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// adaptToStepResponse builds the template-facing StepResponse view of a
// NodeResult. This adaptation is nominally the executor's
// responsibility; this default handles any executor whose Output is a
// plain map (duck-typed body/status/headers/url/elapsed keys) and falls
// back to wrapping the whole Output as Body otherwise.
func adaptToStepResponse(result *domain.NodeResult) *domain.StepResponse {
	sr := &domain.StepResponse{ElapsedMS: result.ElapsedMS}
	m, ok := result.Output.(map[string]any)
	if !ok {
		sr.Body = result.Output
		return sr
	}
	if body, ok := m["body"]; ok {
		sr.Body = body
	} else {
		sr.Body = m
	}
	if status, ok := m["status"]; ok {
		sr.Status = toInt(status)
	}
	if url, ok := m["url"].(string); ok {
		sr.URL = url
	}
	switch headers := m["headers"].(type) {
	case map[string]string:
		sr.Headers = headers
	case map[string]any:
		sr.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				sr.Headers[k] = s
			}
		}
	}
	return sr
}
