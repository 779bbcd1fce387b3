// Package service exposes the engine's control commands as plain Go
// methods on a single facade type: a thin public API wrapping
// internal/... with no transport of its own. Wiring this facade to
// HTTP, gRPC, or IPC is left to the host process.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/lybpyn/yaak/internal/compiler"
	"github.com/lybpyn/yaak/internal/domain"
	"github.com/lybpyn/yaak/internal/orchestrator"
	"github.com/lybpyn/yaak/internal/store"
)

// Service wires the compiler, orchestrator, and store behind the five
// fixed control commands.
type Service struct {
	store    store.Store
	registry *compiler.Registry
	orch     *orchestrator.Orchestrator
}

// New constructs a Service.
func New(st store.Store, registry *compiler.Registry, orch *orchestrator.Orchestrator) *Service {
	return &Service{store: st, registry: registry, orch: orch}
}

// ExecuteWorkflowResult is the `execute_workflow` command's output.
type ExecuteWorkflowResult struct {
	ExecutionID uuid.UUID
}

// ExecuteWorkflow starts a new WorkflowExecution in the background and
// returns immediately with its id.
func (s *Service) ExecuteWorkflow(ctx context.Context, workflowID uuid.UUID, environmentID *uuid.UUID, variables map[string]any) (*ExecuteWorkflowResult, error) {
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	execID, err := s.orch.Execute(ctx, workflow.ID(), workflow.WorkspaceID(), environmentID, variables)
	if err != nil {
		return nil, err
	}
	return &ExecuteWorkflowResult{ExecutionID: execID}, nil
}

// CancelWorkflowExecution requests cancellation of a running execution.
// Idempotent: a no-op on an unknown or already-terminal id.
func (s *Service) CancelWorkflowExecution(executionID uuid.UUID) {
	s.orch.Cancel(executionID)
}

// ExecutionResults is the `get_workflow_execution_results` command's
// output.
type ExecutionResults struct {
	Execution      *domain.WorkflowExecution
	NodeExecutions []*domain.NodeExecution
}

// GetWorkflowExecutionResults returns one execution's state and its full
// per-node execution history.
func (s *Service) GetWorkflowExecutionResults(ctx context.Context, executionID uuid.UUID) (*ExecutionResults, error) {
	exec, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	nodeExecs, err := s.store.ListNodeExecutions(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return &ExecutionResults{Execution: exec, NodeExecutions: nodeExecs}, nil
}

// ListWorkflowExecutions returns a workflow's executions newest-first.
func (s *Service) ListWorkflowExecutions(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*domain.WorkflowExecution, error) {
	return s.store.ListExecutions(ctx, workflowID, limit, offset)
}

// ValidationResult is the `validate_workflow_graph` command's output.
type ValidationResult struct {
	Valid  bool
	Errors []*compiler.CompileError
}

// ValidateWorkflowGraph compiles the workflow's graph to collect its
// validation errors; a plan built from a valid graph is discarded and
// nothing is executed.
func (s *Service) ValidateWorkflowGraph(ctx context.Context, workflowID uuid.UUID) (*ValidationResult, error) {
	nodes, err := s.store.GetWorkflowNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	edges, err := s.store.GetWorkflowEdges(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if _, merr := compiler.Compile(nodes, edges, s.registry); merr != nil {
		return &ValidationResult{Valid: false, Errors: merr.Errors}, nil
	}
	return &ValidationResult{Valid: true}, nil
}
