package template

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lybpyn/yaak/internal/domain"
)

func TestIsWorkflowIdentifier(t *testing.T) {
	assert.True(t, IsWorkflowIdentifier("workflow.step[0].response.status"))
	assert.True(t, IsWorkflowIdentifier("loop.index"))
	assert.True(t, IsWorkflowIdentifier("conditional.branch"))
	assert.False(t, IsWorkflowIdentifier("myVar"))
}

func TestResolveWorkflowIdentifier_StepFields(t *testing.T) {
	wc := &WorkflowContext{
		Steps: []*domain.StepResponse{
			{Status: 200, ElapsedMS: 42, URL: "http://x", Body: map[string]any{"id": "abc"}, Headers: map[string]string{"X-Req": "1"}},
		},
	}

	v, err := ResolveWorkflowIdentifier(wc, "workflow.step[0].response.status")
	require.NoError(t, err)
	assert.Equal(t, 200, v)

	v, err = ResolveWorkflowIdentifier(wc, "workflow.step[0].response.body.id")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	v, err = ResolveWorkflowIdentifier(wc, "workflow.step[0].response.headers.X-Req")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestResolveWorkflowIdentifier_StepNotExecuted(t *testing.T) {
	wc := &WorkflowContext{Steps: []*domain.StepResponse{nil}}
	_, err := ResolveWorkflowIdentifier(wc, "workflow.step[0].response.status")
	require.Error(t, err)
	assert.IsType(t, &StepNotExecutedError{}, err)
}

func TestResolveWorkflowIdentifier_StepOutOfRange(t *testing.T) {
	wc := &WorkflowContext{}
	_, err := ResolveWorkflowIdentifier(wc, "workflow.step[5].response.status")
	require.Error(t, err)
	assert.IsType(t, &StepNotExecutedError{}, err)
}

func TestResolveWorkflowIdentifier_HeaderNotFound(t *testing.T) {
	wc := &WorkflowContext{Steps: []*domain.StepResponse{{Headers: map[string]string{}}}}
	_, err := ResolveWorkflowIdentifier(wc, "workflow.step[0].response.headers.Missing")
	require.Error(t, err)
	assert.IsType(t, &HeaderNotFoundError{}, err)
}

func TestResolveWorkflowIdentifier_LoopFields(t *testing.T) {
	wc := &WorkflowContext{Loop: &domain.LoopContext{NodeID: uuid.New(), Index: 2, Total: 5, Item: map[string]any{"name": "item2"}}}

	v, err := ResolveWorkflowIdentifier(wc, "loop.index")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = ResolveWorkflowIdentifier(wc, "loop.total")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = ResolveWorkflowIdentifier(wc, "loop.item")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "item2"}, v)

	v, err = ResolveWorkflowIdentifier(wc, "loop.item.name")
	require.NoError(t, err)
	assert.Equal(t, "item2", v)
}

func TestResolveWorkflowIdentifier_LoopOutsideLoop(t *testing.T) {
	wc := &WorkflowContext{}
	_, err := ResolveWorkflowIdentifier(wc, "loop.index")
	require.Error(t, err)
}

func TestResolveWorkflowIdentifier_ConditionalBranch(t *testing.T) {
	wc := &WorkflowContext{Branch: "true"}
	v, err := ResolveWorkflowIdentifier(wc, "conditional.branch")
	require.NoError(t, err)
	assert.Equal(t, "true", v)
}

func TestNavigatePath_ArrayIndexing(t *testing.T) {
	v, err := navigatePath(map[string]any{"items": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}}, []string{"items", "1", "id"})
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestNavigatePath_InvalidSegment(t *testing.T) {
	_, err := navigatePath(map[string]any{"a": 1}, []string{"b"})
	assert.Error(t, err)
}
