package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lybpyn/yaak/internal/compiler"
	"github.com/lybpyn/yaak/internal/domain"
	"github.com/lybpyn/yaak/internal/store"
	"github.com/lybpyn/yaak/internal/template"
)

func waitForTerminal(t *testing.T, st store.Store, execID uuid.UUID) *domain.WorkflowExecution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := st.GetExecution(context.Background(), execID)
		require.NoError(t, err)
		if exec.State().IsTerminal() {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("execution did not reach a terminal state in time")
	return nil
}

func seedSequentialWorkflow(t *testing.T, st store.Store) (workflowID uuid.UUID, triggerID, actionID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	workflowID = uuid.New()

	trig := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeTrigger, domain.SubtypeManualTrigger, nil, true)
	action := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://example.com", "method": "GET"}, true)
	require.NoError(t, st.UpsertNode(ctx, trig, store.SourceUser))
	require.NoError(t, st.UpsertNode(ctx, action, store.SourceUser))

	edge := domain.NewEdge(uuid.New(), workflowID, trig.ID(), action.ID(), "", "", domain.EdgeTypeSequential, 0)
	require.NoError(t, st.UpsertEdge(ctx, edge, store.SourceUser))

	return workflowID, trig.ID(), action.ID()
}

func TestOrchestrator_ExecuteSequentialSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	workflowID, _, actionID := seedSequentialWorkflow(t, st)

	registry := compiler.DefaultRegistry()
	executors := NewNodeExecutorRegistry()
	var calledWithNodeID uuid.UUID
	executors.Register(domain.SubtypeHTTPRequest, &StubExecutor{
		Fn: func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
			calledWithNodeID = node.ID()
			return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{"status": 200, "body": map[string]any{"ok": true}}}, nil
		},
	})

	orch := New(st, registry, executors, NewEventBus())
	execID, err := orch.Execute(context.Background(), workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, st, execID)
	assert.Equal(t, domain.ExecutionCompleted, exec.State())
	assert.Equal(t, actionID, calledWithNodeID)

	nodeExecs, err := st.ListNodeExecutions(context.Background(), execID)
	require.NoError(t, err)
	require.Len(t, nodeExecs, 2)
}

func TestOrchestrator_NodeFailureFailsExecutionAfterOneRetry(t *testing.T) {
	st := store.NewMemoryStore()
	workflowID, _, _ := seedSequentialWorkflow(t, st)

	registry := compiler.DefaultRegistry()
	executors := NewNodeExecutorRegistry()
	attempts := 0
	executors.Register(domain.SubtypeHTTPRequest, &StubExecutor{
		Fn: func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
			attempts++
			return nil, fmt.Errorf("connection refused")
		},
	})

	orch := New(st, registry, executors, NewEventBus())
	orch.retry = RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, Jitter: false}

	execID, err := orch.Execute(context.Background(), workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, st, execID)
	assert.Equal(t, domain.ExecutionFailed, exec.State())
	assert.Equal(t, 2, attempts) // one attempt plus exactly one retry
	assert.Contains(t, exec.Error(), "connection refused")
}

func TestOrchestrator_CancelStopsFurtherDispatch(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	workflowID := uuid.New()

	trig := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeTrigger, domain.SubtypeManualTrigger, nil, true)
	loop := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeLogic, domain.SubtypeLoop,
		map[string]any{"loop_type": "count", "count": 10}, true)
	body := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://x", "method": "GET"}, true)
	require.NoError(t, st.UpsertNode(ctx, trig, store.SourceUser))
	require.NoError(t, st.UpsertNode(ctx, loop, store.SourceUser))
	require.NoError(t, st.UpsertNode(ctx, body, store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, trig.ID(), loop.ID(), "", "", domain.EdgeTypeSequential, 0), store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, loop.ID(), body.ID(), "", "", domain.EdgeTypeLoop, 1), store.SourceUser))

	registry := compiler.DefaultRegistry()
	executors := NewNodeExecutorRegistry()
	executors.Register(domain.SubtypeHTTPRequest, &StubExecutor{
		Fn: func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
			time.Sleep(10 * time.Millisecond)
			return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{}}, nil
		},
	})

	orch := New(st, registry, executors, NewEventBus())
	execID, err := orch.Execute(ctx, workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	time.Sleep(15 * time.Millisecond)
	orch.Cancel(execID)

	exec := waitForTerminal(t, st, execID)
	assert.Equal(t, domain.ExecutionCancelled, exec.State())

	// Every row reaches a terminal state; nothing may be left Running
	// once the execution itself is terminal.
	nodeExecs, err := st.ListNodeExecutions(ctx, execID)
	require.NoError(t, err)
	for _, ne := range nodeExecs {
		assert.True(t, ne.State().IsTerminal(), "node execution %s left in %s", ne.ID(), ne.State())
	}
}

func TestStepRunner_CancelBeforeFirstStepWritesNoNodeExecutions(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	workflowID, _, _ := seedSequentialWorkflow(t, st)

	nodes, err := st.GetWorkflowNodes(ctx, workflowID)
	require.NoError(t, err)
	edges, err := st.GetWorkflowEdges(ctx, workflowID)
	require.NoError(t, err)
	plan, merr := compiler.Compile(nodes, edges, compiler.DefaultRegistry())
	require.Nil(t, merr)

	orch := New(st, compiler.DefaultRegistry(), NewNodeExecutorRegistry(), NewEventBus())
	exec := domain.NewWorkflowExecution(uuid.New(), workflowID, uuid.New(), nil, time.Now())
	flag := &atomic.Bool{}
	flag.Store(true)

	runner := &stepRunner{
		orch:       orch,
		ctx:        ctx,
		exec:       exec,
		plan:       plan,
		wfCtx:      &template.WorkflowContext{},
		cancelFlag: flag,
	}
	execCtx := domain.NewExecutionContext(workflowID, exec.ID(), nil, nil)

	err = runner.runSteps(execCtx, plan.ExecutionOrder)
	assert.ErrorIs(t, err, errCancelled)

	nodeExecs, err := st.ListNodeExecutions(ctx, exec.ID())
	require.NoError(t, err)
	assert.Empty(t, nodeExecs)
}

func TestOrchestrator_CancelOnUnknownExecutionIsNoOp(t *testing.T) {
	orch := New(store.NewMemoryStore(), compiler.DefaultRegistry(), NewNodeExecutorRegistry(), NewEventBus())
	assert.NotPanics(t, func() { orch.Cancel(uuid.New()) })
}

func TestOrchestrator_CompileFailureYieldsFailedExecution(t *testing.T) {
	st := store.NewMemoryStore()
	workflowID := uuid.New()
	// No nodes at all: Compile fails with ErrNoNodes.

	orch := New(st, compiler.DefaultRegistry(), NewNodeExecutorRegistry(), NewEventBus())
	execID, err := orch.Execute(context.Background(), workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, st, execID)
	assert.Equal(t, domain.ExecutionFailed, exec.State())
}

func TestOrchestrator_ConditionalFalseBranchSkipsTrueSide(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	workflowID := uuid.New()

	trig := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeTrigger, domain.SubtypeManualTrigger, nil, true)
	cond := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeLogic, domain.SubtypeConditional,
		map[string]any{"condition": "false"}, true)
	onTrue := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://a", "method": "GET"}, true)
	onFalse := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://b", "method": "GET"}, true)
	for _, n := range []*domain.Node{trig, cond, onTrue, onFalse} {
		require.NoError(t, st.UpsertNode(ctx, n, store.SourceUser))
	}
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, trig.ID(), cond.ID(), "", "", domain.EdgeTypeSequential, 0), store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, cond.ID(), onTrue.ID(), "true", "", domain.EdgeTypeConditional, 1), store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, cond.ID(), onFalse.ID(), "false", "", domain.EdgeTypeConditional, 2), store.SourceUser))

	executors := NewNodeExecutorRegistry()
	var executed []uuid.UUID
	executors.Register(domain.SubtypeHTTPRequest, &StubExecutor{
		Fn: func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
			executed = append(executed, node.ID())
			return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{}}, nil
		},
	})

	orch := New(st, compiler.DefaultRegistry(), executors, NewEventBus())
	execID, err := orch.Execute(ctx, workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, st, execID)
	assert.Equal(t, domain.ExecutionCompleted, exec.State())
	assert.Equal(t, []uuid.UUID{onFalse.ID()}, executed)

	nodeExecs, err := st.ListNodeExecutions(ctx, execID)
	require.NoError(t, err)
	assert.Len(t, nodeExecs, 3) // trigger, conditional, false-branch node
}

func TestOrchestrator_LoopCountThreeRecordsIterations(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	workflowID := uuid.New()

	trig := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeTrigger, domain.SubtypeManualTrigger, nil, true)
	loop := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeLogic, domain.SubtypeLoop,
		map[string]any{"loop_type": "count", "count": 3}, true)
	body := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://x", "method": "GET"}, true)
	for _, n := range []*domain.Node{trig, loop, body} {
		require.NoError(t, st.UpsertNode(ctx, n, store.SourceUser))
	}
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, trig.ID(), loop.ID(), "", "", domain.EdgeTypeSequential, 0), store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, loop.ID(), body.ID(), "", "", domain.EdgeTypeLoop, 1), store.SourceUser))

	executors := NewNodeExecutorRegistry()
	executors.Register(domain.SubtypeHTTPRequest, &StubExecutor{
		Fn: func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
			lc, _ := execCtx.CurrentLoop()
			return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{"iteration": lc.Index}}, nil
		},
	})

	orch := New(st, compiler.DefaultRegistry(), executors, NewEventBus())
	execID, err := orch.Execute(ctx, workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, st, execID)
	require.Equal(t, domain.ExecutionCompleted, exec.State())

	nodeExecs, err := st.ListNodeExecutions(ctx, execID)
	require.NoError(t, err)

	var iterations []int
	var loopRow *domain.NodeExecution
	for _, ne := range nodeExecs {
		switch ne.WorkflowNodeID() {
		case body.ID():
			require.NotNil(t, ne.LoopIteration())
			iterations = append(iterations, *ne.LoopIteration())
		case loop.ID():
			loopRow = ne
		}
	}
	assert.Equal(t, []int{0, 1, 2}, iterations)

	require.NotNil(t, loopRow)
	result, ok := loopRow.Result().(map[string]any)
	require.True(t, ok)
	loopResults, ok := result["loop_results"].([]any)
	require.True(t, ok)
	assert.Len(t, loopResults, 3)
}

func TestOrchestrator_ParallelCollatesResultsInSpawnOrder(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	workflowID := uuid.New()

	trig := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeTrigger, domain.SubtypeManualTrigger, nil, true)
	par := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeLogic, domain.SubtypeParallel, nil, true)
	a := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://a", "method": "GET"}, true)
	b := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest,
		map[string]any{"url": "http://b", "method": "GET"}, true)
	for _, n := range []*domain.Node{trig, par, a, b} {
		require.NoError(t, st.UpsertNode(ctx, n, store.SourceUser))
	}
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, trig.ID(), par.ID(), "", "", domain.EdgeTypeSequential, 0), store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, par.ID(), a.ID(), "", "", domain.EdgeTypeParallel, 1), store.SourceUser))
	require.NoError(t, st.UpsertEdge(ctx, domain.NewEdge(uuid.New(), workflowID, par.ID(), b.ID(), "", "", domain.EdgeTypeParallel, 2), store.SourceUser))

	executors := NewNodeExecutorRegistry()
	executors.Register(domain.SubtypeHTTPRequest, &StubExecutor{
		Fn: func(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) (*domain.NodeResult, error) {
			// The first branch sleeps so the second finishes first;
			// collation must still follow spawn order, not finish order.
			if node.Config()["url"] == "http://a" {
				time.Sleep(20 * time.Millisecond)
			}
			return &domain.NodeResult{NodeID: node.ID(), Output: map[string]any{"url": node.Config()["url"]}}, nil
		},
	})

	orch := New(st, compiler.DefaultRegistry(), executors, NewEventBus())
	execID, err := orch.Execute(ctx, workflowID, uuid.New(), nil, nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, st, execID)
	require.Equal(t, domain.ExecutionCompleted, exec.State())

	nodeExecs, err := st.ListNodeExecutions(ctx, execID)
	require.NoError(t, err)

	var parRow *domain.NodeExecution
	for _, ne := range nodeExecs {
		if ne.WorkflowNodeID() == par.ID() {
			parRow = ne
		}
	}
	require.NotNil(t, parRow)
	result, ok := parRow.Result().(map[string]any)
	require.True(t, ok)
	parallelResults, ok := result["parallel_results"].([]any)
	require.True(t, ok)
	require.Len(t, parallelResults, 2)
	first, _ := parallelResults[0].(map[string]any)
	second, _ := parallelResults[1].(map[string]any)
	assert.Equal(t, "http://a", first["url"])
	assert.Equal(t, "http://b", second["url"])
}

func TestEventBus_EmitFansOutAndSurvivesPanic(t *testing.T) {
	bus := NewEventBus()
	var received []EventName
	bus.Subscribe(func(e Event) { received = append(received, e.Name) })
	bus.Subscribe(func(e Event) { panic("boom") })
	bus.Subscribe(func(e Event) { received = append(received, e.Name) })

	assert.NotPanics(t, func() {
		bus.Emit(Event{Name: EventNodeStarted, Payload: map[string]any{}})
	})
	assert.Equal(t, []EventName{EventNodeStarted, EventNodeStarted}, received)
}

func TestNodeExecutorRegistry_FallbackResolution(t *testing.T) {
	r := NewNodeExecutorRegistry()
	_, ok := r.Resolve(domain.SubtypeHTTPRequest)
	assert.False(t, ok)

	fallback := &StubExecutor{}
	r.SetFallback(fallback)
	resolved, ok := r.Resolve(domain.SubtypeHTTPRequest)
	assert.True(t, ok)
	assert.Equal(t, fallback, resolved)

	specific := &StubExecutor{}
	r.Register(domain.SubtypeHTTPRequest, specific)
	resolved, ok = r.Resolve(domain.SubtypeHTTPRequest)
	assert.True(t, ok)
	assert.Equal(t, specific, resolved)
}

func TestRetryPolicy_DelayRespectsMaxDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 10 * time.Second, MaxDelay: time.Second, Multiplier: 2, Jitter: false}
	assert.Equal(t, time.Second, p.Delay())
}
