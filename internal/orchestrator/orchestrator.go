package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lybpyn/yaak/internal/compiler"
	"github.com/lybpyn/yaak/internal/domain"
	"github.com/lybpyn/yaak/internal/store"
	"github.com/lybpyn/yaak/internal/template"
)

// Orchestrator drives compiled plans to completion: Execute registers
// the run, run walks the plan in a background task, finish records a
// failed terminal transition.
type Orchestrator struct {
	store     store.Store
	registry  *compiler.Registry
	executors *NodeExecutorRegistry
	events    *EventBus
	retry     RetryPolicy

	// tokMu guards cancellationTokens. Reads (polling) vastly outnumber
	// writes (register/cleanup).
	tokMu              sync.RWMutex
	cancellationTokens map[uuid.UUID]*atomic.Bool
}

// New constructs an Orchestrator.
func New(st store.Store, registry *compiler.Registry, executors *NodeExecutorRegistry, events *EventBus) *Orchestrator {
	return &Orchestrator{
		store:              st,
		registry:           registry,
		executors:          executors,
		events:             events,
		retry:              DefaultRetryPolicy(),
		cancellationTokens: make(map[uuid.UUID]*atomic.Bool),
	}
}

// Execute creates a WorkflowExecution row in state Initialized, registers
// its cancellation flag, and spawns the background task that drives it.
// It returns immediately with the execution id; the run proceeds
// asynchronously.
func (o *Orchestrator) Execute(ctx context.Context, workflowID, workspaceID uuid.UUID, environmentID *uuid.UUID, variables map[string]any) (uuid.UUID, error) {
	execID := uuid.New()
	exec := domain.NewWorkflowExecution(execID, workflowID, workspaceID, environmentID, time.Now())
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		return uuid.Nil, err
	}

	flag := &atomic.Bool{}
	o.tokMu.Lock()
	o.cancellationTokens[execID] = flag
	o.tokMu.Unlock()

	go o.run(context.Background(), exec, variables, flag)

	return execID, nil
}

// Cancel requests cancellation of a running execution. Idempotent: a
// no-op on an unknown or already-terminal execution id.
func (o *Orchestrator) Cancel(executionID uuid.UUID) {
	o.tokMu.RLock()
	flag, ok := o.cancellationTokens[executionID]
	o.tokMu.RUnlock()
	if !ok {
		return
	}
	flag.Store(true)
}

func (o *Orchestrator) cleanupToken(executionID uuid.UUID) {
	o.tokMu.Lock()
	delete(o.cancellationTokens, executionID)
	o.tokMu.Unlock()
}

// run is the background task: compile, execute the plan, finalize. It
// owns exec exclusively for its lifetime.
func (o *Orchestrator) run(ctx context.Context, exec *domain.WorkflowExecution, variables map[string]any, cancelFlag *atomic.Bool) {
	defer o.cleanupToken(exec.ID())

	nodes, err := o.store.GetWorkflowNodes(ctx, exec.WorkflowID())
	if err != nil {
		o.finish(ctx, exec, err.Error())
		return
	}
	edges, err := o.store.GetWorkflowEdges(ctx, exec.WorkflowID())
	if err != nil {
		o.finish(ctx, exec, err.Error())
		return
	}

	plan, merr := compiler.Compile(nodes, edges, o.registry)
	if merr != nil {
		// Compile errors surface as a single failed WorkflowExecution.
		o.finish(ctx, exec, merr.Error())
		return
	}

	exec.Start()
	_ = o.store.SaveExecution(ctx, exec)
	o.events.Emit(executionUpdatedEvent(exec.ID(), exec.State().String(), nil, nil))
	log.Info().Str("executionId", exec.ID().String()).Str("workflowId", exec.WorkflowID().String()).Msg("execution running")

	execCtx := domain.NewExecutionContext(exec.WorkflowID(), exec.ID(), exec.EnvironmentID(), variables)
	wfCtx := &template.WorkflowContext{}

	runner := &stepRunner{
		orch:       o,
		ctx:        ctx,
		exec:       exec,
		plan:       plan,
		wfCtx:      wfCtx,
		cancelFlag: cancelFlag,
	}

	err = runner.runSteps(execCtx, plan.ExecutionOrder)

	switch {
	case errors.Is(err, errCancelled):
		exec.Cancel(time.Now())
	case err != nil:
		o.finish(ctx, exec, err.Error())
		return
	default:
		exec.Complete(time.Now())
	}
	_ = o.store.SaveExecution(ctx, exec)
	o.events.Emit(executionUpdatedEvent(exec.ID(), exec.State().String(), ptrInt64(exec.ElapsedMS()), nil))
	log.Info().Str("executionId", exec.ID().String()).Str("state", exec.State().String()).Int64("elapsedMs", exec.ElapsedMS()).Msg("execution finished")
}

// finish transitions exec to Failed with errMsg and persists/emits.
func (o *Orchestrator) finish(ctx context.Context, exec *domain.WorkflowExecution, errMsg string) {
	exec.Fail(time.Now(), errMsg)
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		log.Error().Err(err).Str("executionId", exec.ID().String()).Msg("failed to persist execution")
	}
	elapsed := exec.ElapsedMS()
	o.events.Emit(executionUpdatedEvent(exec.ID(), exec.State().String(), &elapsed, &errMsg))
	log.Info().Str("executionId", exec.ID().String()).Str("error", errMsg).Msg("execution failed")
}

func ptrInt64(v int64) *int64 { return &v }
