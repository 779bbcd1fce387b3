package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lybpyn/yaak/internal/domain"
)

func TestMemoryStore_NodeAndEdgeCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()

	n := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest, nil, true)
	require.NoError(t, s.UpsertNode(ctx, n, SourceUser))

	nodes, err := s.GetWorkflowNodes(ctx, workflowID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, n.ID(), nodes[0].ID())

	require.NoError(t, s.DeleteNode(ctx, n.ID()))
	nodes, err = s.GetWorkflowNodes(ctx, workflowID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestMemoryStore_EdgesReturnedInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()
	src := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		e := domain.NewEdge(uuid.New(), workflowID, src, uuid.New(), "", "", domain.EdgeTypeSequential, i)
		require.NoError(t, s.UpsertEdge(ctx, e, SourceUser))
		ids = append(ids, e.ID())
	}

	edges, err := s.GetWorkflowEdges(ctx, workflowID)
	require.NoError(t, err)
	require.Len(t, edges, 5)
	for i, e := range edges {
		assert.Equal(t, ids[i], e.ID())
	}
}

func TestMemoryStore_UpsertEdgeRejectsDuplicateFanIn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()
	target := uuid.New()

	first := domain.NewEdge(uuid.New(), workflowID, uuid.New(), target, "", "in", domain.EdgeTypeSequential, 0)
	require.NoError(t, s.UpsertEdge(ctx, first, SourceUser))

	// Re-upserting the same edge id is fine.
	require.NoError(t, s.UpsertEdge(ctx, first, SourceUser))

	dup := domain.NewEdge(uuid.New(), workflowID, uuid.New(), target, "", "in", domain.EdgeTypeSequential, 1)
	err := s.UpsertEdge(ctx, dup, SourceUser)
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeAlreadyExists, derr.Code)

	// A different target anchor on the same node is a distinct fan-in point.
	other := domain.NewEdge(uuid.New(), workflowID, uuid.New(), target, "", "else", domain.EdgeTypeSequential, 2)
	assert.NoError(t, s.UpsertEdge(ctx, other, SourceUser))
}

func TestMemoryStore_ChangeEventsFanOutAndSurvivePanic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()

	var ops []ChangeOp
	s.OnChange(func(op ChangeOp, model any) { ops = append(ops, op) })
	s.OnChange(func(op ChangeOp, model any) { panic("boom") })

	n := domain.NewNode(uuid.New(), workflowID, domain.NodeTypeAction, domain.SubtypeHTTPRequest, nil, true)
	require.NoError(t, s.UpsertNode(ctx, n, SourceUser))
	require.NoError(t, s.DeleteNode(ctx, n.ID()))

	assert.Equal(t, []ChangeOp{ChangeUpsert, ChangeDelete}, ops)
}

func TestMemoryStore_WorkflowAndViewportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	w := domain.NewWorkflow(uuid.New(), uuid.New(), "My Workflow", "desc", nil, 0)
	require.NoError(t, s.UpsertWorkflow(ctx, w, SourceUser))

	got, err := s.GetWorkflow(ctx, w.ID())
	require.NoError(t, err)
	assert.Equal(t, "My Workflow", got.Name())

	_, err = s.GetWorkflow(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	vp := domain.NewViewport(uuid.New(), w.ID(), 1.5, -2.5, 1.0)
	require.NoError(t, s.UpsertViewport(ctx, vp, SourceUser))
	gotVP, err := s.GetViewport(ctx, w.ID())
	require.NoError(t, err)
	assert.Equal(t, 1.5, gotVP.PanX())
}

func TestMemoryStore_ExecutionLifecycleAndListing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()

	var execs []*domain.WorkflowExecution
	for i := 0; i < 3; i++ {
		e := domain.NewWorkflowExecution(uuid.New(), workflowID, uuid.New(), nil, time.Now())
		require.NoError(t, s.SaveExecution(ctx, e))
		execs = append(execs, e)
	}

	got, err := s.GetExecution(ctx, execs[1].ID())
	require.NoError(t, err)
	assert.Equal(t, execs[1].ID(), got.ID())

	listed, err := s.ListExecutions(ctx, workflowID, 0, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	// Newest-first: most recently saved execution comes first.
	assert.Equal(t, execs[2].ID(), listed[0].ID())
	assert.Equal(t, execs[0].ID(), listed[2].ID())

	limited, err := s.ListExecutions(ctx, workflowID, 1, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, execs[1].ID(), limited[0].ID())
}

func TestMemoryStore_NodeExecutionUpsertByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	execID := uuid.New()

	ne := domain.NewNodeExecution(uuid.New(), execID, uuid.New(), nil, time.Now())
	require.NoError(t, s.SaveNodeExecution(ctx, ne))
	ne.Complete(time.Now(), map[string]any{"ok": true})
	require.NoError(t, s.SaveNodeExecution(ctx, ne))

	list, err := s.ListNodeExecutions(ctx, execID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NodeExecCompleted, list[0].State())
}

func TestMemoryStore_PruneExecutionsKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()

	var execs []*domain.WorkflowExecution
	for i := 0; i < 5; i++ {
		e := domain.NewWorkflowExecution(uuid.New(), workflowID, uuid.New(), nil, time.Now())
		require.NoError(t, s.SaveExecution(ctx, e))
		ne := domain.NewNodeExecution(uuid.New(), e.ID(), uuid.New(), nil, time.Now())
		require.NoError(t, s.SaveNodeExecution(ctx, ne))
		execs = append(execs, e)
	}

	require.NoError(t, s.PruneExecutions(ctx, workflowID, 2))

	remaining, err := s.ListExecutions(ctx, workflowID, 0, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, execs[4].ID(), remaining[0].ID())
	assert.Equal(t, execs[3].ID(), remaining[1].ID())

	_, err = s.GetExecution(ctx, execs[0].ID())
	assert.ErrorIs(t, err, ErrNotFound)

	nes, err := s.ListNodeExecutions(ctx, execs[0].ID())
	require.NoError(t, err)
	assert.Empty(t, nes)
}

func TestMemoryStore_PruneExecutionsNoOpWhenUnderLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	workflowID := uuid.New()
	e := domain.NewWorkflowExecution(uuid.New(), workflowID, uuid.New(), nil, time.Now())
	require.NoError(t, s.SaveExecution(ctx, e))

	require.NoError(t, s.PruneExecutions(ctx, workflowID, 50))

	remaining, err := s.ListExecutions(ctx, workflowID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
