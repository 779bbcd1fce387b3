package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lybpyn/yaak/internal/domain"
)

// MemoryStore is an in-process Store: one mutex, one map per entity
// type. Nodes and edges additionally keep an insertion-order index.
// Plan reproducibility and parallel result collation both depend on
// edges coming back in persisted insertion order, which a bare Go map
// cannot provide.
type MemoryStore struct {
	changeNotifier

	mu sync.RWMutex

	workflows       map[uuid.UUID]*domain.Workflow
	nodes           map[uuid.UUID]*domain.Node
	nodesOrder      []uuid.UUID
	edges           map[uuid.UUID]*domain.Edge
	edgesOrder      []uuid.UUID
	viewports       map[uuid.UUID]*domain.Viewport // keyed by WorkflowID
	executions      map[uuid.UUID]*domain.WorkflowExecution
	executionsOrder []uuid.UUID
	nodeExecutions  map[uuid.UUID][]*domain.NodeExecution // keyed by WorkflowExecutionID
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:      make(map[uuid.UUID]*domain.Workflow),
		nodes:          make(map[uuid.UUID]*domain.Node),
		edges:          make(map[uuid.UUID]*domain.Edge),
		viewports:      make(map[uuid.UUID]*domain.Viewport),
		executions:     make(map[uuid.UUID]*domain.WorkflowExecution),
		nodeExecutions: make(map[uuid.UUID][]*domain.NodeExecution),
	}
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) UpsertWorkflow(ctx context.Context, workflow *domain.Workflow, source Source) error {
	s.mu.Lock()
	s.workflows[workflow.ID()] = workflow
	s.mu.Unlock()
	s.notify(ChangeUpsert, workflow)
	return nil
}

func (s *MemoryStore) GetViewport(ctx context.Context, workflowID uuid.UUID) (*domain.Viewport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.viewports[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) UpsertViewport(ctx context.Context, viewport *domain.Viewport, source Source) error {
	s.mu.Lock()
	s.viewports[viewport.WorkflowID()] = viewport
	s.mu.Unlock()
	s.notify(ChangeUpsert, viewport)
	return nil
}

func (s *MemoryStore) GetWorkflowNodes(ctx context.Context, workflowID uuid.UUID) ([]*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Node
	for _, id := range s.nodesOrder {
		if n, ok := s.nodes[id]; ok && n.WorkflowID() == workflowID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetWorkflowEdges(ctx context.Context, workflowID uuid.UUID) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Edge
	for _, id := range s.edgesOrder {
		if e, ok := s.edges[id]; ok && e.WorkflowID() == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertNode(ctx context.Context, node *domain.Node, source Source) error {
	s.mu.Lock()
	if _, exists := s.nodes[node.ID()]; !exists {
		s.nodesOrder = append(s.nodesOrder, node.ID())
	}
	s.nodes[node.ID()] = node
	s.mu.Unlock()
	s.notify(ChangeUpsert, node)
	return nil
}

// UpsertEdge enforces the fan-in invariant: (target_node_id,
// target_anchor) must be claimed by at most one edge per workflow.
func (s *MemoryStore) UpsertEdge(ctx context.Context, edge *domain.Edge, source Source) error {
	s.mu.Lock()
	for _, existing := range s.edges {
		if existing.ID() != edge.ID() &&
			existing.WorkflowID() == edge.WorkflowID() &&
			existing.TargetNodeID() == edge.TargetNodeID() &&
			existing.TargetAnchor() == edge.TargetAnchor() {
			s.mu.Unlock()
			return domain.NewDomainError(domain.ErrCodeAlreadyExists,
				fmt.Sprintf("edge %s already claims target (%s, %q)", existing.ID(), edge.TargetNodeID(), edge.TargetAnchor()), nil)
		}
	}
	if _, exists := s.edges[edge.ID()]; !exists {
		s.edgesOrder = append(s.edgesOrder, edge.ID())
	}
	s.edges[edge.ID()] = edge
	s.mu.Unlock()
	s.notify(ChangeUpsert, edge)
	return nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	delete(s.nodes, id)
	s.mu.Unlock()
	if ok {
		s.notify(ChangeDelete, n)
	}
	return nil
}

func (s *MemoryStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.edges[id]
	delete(s.edges, id)
	s.mu.Unlock()
	if ok {
		s.notify(ChangeDelete, e)
	}
	return nil
}

func (s *MemoryStore) SaveExecution(ctx context.Context, exec *domain.WorkflowExecution) error {
	s.mu.Lock()
	if _, exists := s.executions[exec.ID()]; !exists {
		s.executionsOrder = append(s.executionsOrder, exec.ID())
	}
	s.executions[exec.ID()] = exec
	s.mu.Unlock()
	s.notify(ChangeUpsert, exec)
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// ListExecutions returns a workflow's executions newest-first,
// applying limit/offset over that ordering.
func (s *MemoryStore) ListExecutions(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.WorkflowExecution
	for i := len(s.executionsOrder) - 1; i >= 0; i-- {
		e := s.executions[s.executionsOrder[i]]
		if e.WorkflowID() == workflowID {
			matched = append(matched, e)
		}
	}

	if offset > len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) SaveNodeExecution(ctx context.Context, ne *domain.NodeExecution) error {
	s.mu.Lock()
	list := s.nodeExecutions[ne.WorkflowExecutionID()]
	replaced := false
	for i, existing := range list {
		if existing.ID() == ne.ID() {
			list[i] = ne
			s.nodeExecutions[ne.WorkflowExecutionID()] = list
			replaced = true
			break
		}
	}
	if !replaced {
		s.nodeExecutions[ne.WorkflowExecutionID()] = append(list, ne)
	}
	s.mu.Unlock()
	s.notify(ChangeUpsert, ne)
	return nil
}

func (s *MemoryStore) ListNodeExecutions(ctx context.Context, executionID uuid.UUID) ([]*domain.NodeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.NodeExecution, len(s.nodeExecutions[executionID]))
	copy(out, s.nodeExecutions[executionID])
	return out, nil
}

// PruneExecutions keeps the `keep` most recent executions for workflowID
// (by insertion order) and deletes the rest along with their
// NodeExecution rows.
func (s *MemoryStore) PruneExecutions(ctx context.Context, workflowID uuid.UUID, keep int) error {
	s.mu.Lock()

	var matched []uuid.UUID
	for _, id := range s.executionsOrder {
		if e, ok := s.executions[id]; ok && e.WorkflowID() == workflowID {
			matched = append(matched, id)
		}
	}
	if keep < 0 {
		keep = 0
	}
	if len(matched) <= keep {
		s.mu.Unlock()
		return nil
	}
	toDrop := matched[:len(matched)-keep]
	dropSet := make(map[uuid.UUID]bool, len(toDrop))
	var dropped []*domain.WorkflowExecution
	for _, id := range toDrop {
		dropSet[id] = true
		dropped = append(dropped, s.executions[id])
		delete(s.executions, id)
		delete(s.nodeExecutions, id)
	}

	kept := s.executionsOrder[:0]
	for _, id := range s.executionsOrder {
		if !dropSet[id] {
			kept = append(kept, id)
		}
	}
	s.executionsOrder = kept
	s.mu.Unlock()

	for _, e := range dropped {
		s.notify(ChangeDelete, e)
	}
	return nil
}
