package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/lybpyn/yaak/internal/domain"
)

// BunStore is a Postgres-backed Store. Rows have no child collections
// to maintain, so each Save is a single conflict-upsert rather than a
// multi-statement transaction.
type BunStore struct {
	changeNotifier

	db *bun.DB
}

// NewBunStore opens a connection pool against dsn. The connection is
// lazy: no I/O happens until the first query.
func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

// InitSchema creates every table this store needs if they do not already
// exist.
func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []any{
		(*WorkflowModel)(nil),
		(*NodeModel)(nil),
		(*EdgeModel)(nil),
		(*ViewportModel)(nil),
		(*ExecutionModel)(nil),
		(*NodeExecutionModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	model := new(WorkflowModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) UpsertWorkflow(ctx context.Context, workflow *domain.Workflow, source Source) error {
	model := NewWorkflowModel(workflow)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	if err == nil {
		s.notify(ChangeUpsert, workflow)
	}
	return err
}

func (s *BunStore) GetViewport(ctx context.Context, workflowID uuid.UUID) (*domain.Viewport, error) {
	model := new(ViewportModel)
	err := s.db.NewSelect().Model(model).Where("workflow_id = ?", workflowID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) UpsertViewport(ctx context.Context, viewport *domain.Viewport, source Source) error {
	model := NewViewportModel(viewport)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	if err == nil {
		s.notify(ChangeUpsert, viewport)
	}
	return err
}

func (s *BunStore) GetWorkflowNodes(ctx context.Context, workflowID uuid.UUID) ([]*domain.Node, error) {
	var models []*NodeModel
	if err := s.db.NewSelect().Model(&models).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Node, len(models))
	for i, m := range models {
		out[i] = m.ToDomain()
	}
	return out, nil
}

func (s *BunStore) GetWorkflowEdges(ctx context.Context, workflowID uuid.UUID) ([]*domain.Edge, error) {
	var models []*EdgeModel
	if err := s.db.NewSelect().Model(&models).Where("workflow_id = ?", workflowID).Order("position ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Edge, len(models))
	for i, m := range models {
		out[i] = m.ToDomain()
	}
	return out, nil
}

// UpsertNode writes node unconditionally; source only distinguishes
// timestamp semantics in stores that track created/updated timestamps,
// which this minimal schema does not carry on nodes/edges.
func (s *BunStore) UpsertNode(ctx context.Context, node *domain.Node, source Source) error {
	model := NewNodeModel(node)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	if err == nil {
		s.notify(ChangeUpsert, node)
	}
	return err
}

// UpsertEdge enforces the fan-in invariant: (target_node_id,
// target_anchor) must be claimed by at most one edge per workflow.
func (s *BunStore) UpsertEdge(ctx context.Context, edge *domain.Edge, source Source) error {
	conflicts, err := s.db.NewSelect().
		Model((*EdgeModel)(nil)).
		Where("workflow_id = ?", edge.WorkflowID()).
		Where("target_node_id = ?", edge.TargetNodeID()).
		Where("target_anchor = ?", edge.TargetAnchor()).
		Where("id != ?", edge.ID()).
		Count(ctx)
	if err != nil {
		return err
	}
	if conflicts > 0 {
		return domain.NewDomainError(domain.ErrCodeAlreadyExists,
			fmt.Sprintf("another edge already claims target (%s, %q)", edge.TargetNodeID(), edge.TargetAnchor()), nil)
	}

	model := NewEdgeModel(edge)
	_, err = s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	if err == nil {
		s.notify(ChangeUpsert, edge)
	}
	return err
}

func (s *BunStore) DeleteNode(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewDelete().Model((*NodeModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err == nil {
		s.notify(ChangeDelete, id)
	}
	return err
}

func (s *BunStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewDelete().Model((*EdgeModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err == nil {
		s.notify(ChangeDelete, id)
	}
	return err
}

func (s *BunStore) SaveExecution(ctx context.Context, exec *domain.WorkflowExecution) error {
	model := NewExecutionModel(exec)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	if err == nil {
		s.notify(ChangeUpsert, exec)
	}
	return err
}

func (s *BunStore) GetExecution(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	model := new(ExecutionModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListExecutions(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*domain.WorkflowExecution, error) {
	var models []*ExecutionModel
	q := s.db.NewSelect().Model(&models).Where("workflow_id = ?", workflowID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.WorkflowExecution, len(models))
	for i, m := range models {
		out[i] = m.ToDomain()
	}
	return out, nil
}

func (s *BunStore) SaveNodeExecution(ctx context.Context, ne *domain.NodeExecution) error {
	model := NewNodeExecutionModel(ne)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	if err == nil {
		s.notify(ChangeUpsert, ne)
	}
	return err
}

func (s *BunStore) ListNodeExecutions(ctx context.Context, executionID uuid.UUID) ([]*domain.NodeExecution, error) {
	var models []*NodeExecutionModel
	if err := s.db.NewSelect().Model(&models).Where("workflow_execution_id = ?", executionID).Order("started_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.NodeExecution, len(models))
	for i, m := range models {
		out[i] = m.ToDomain()
	}
	return out, nil
}

// PruneExecutions deletes a workflow's executions past its `keep` most
// recent (by started_at), cascading to their NodeExecution rows within a
// transaction.
func (s *BunStore) PruneExecutions(ctx context.Context, workflowID uuid.UUID, keep int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var staleIDs []uuid.UUID
		err := tx.NewSelect().
			Model((*ExecutionModel)(nil)).
			Column("id").
			Where("workflow_id = ?", workflowID).
			Order("started_at DESC").
			Offset(keep).
			Scan(ctx, &staleIDs)
		if err != nil {
			return err
		}
		if len(staleIDs) == 0 {
			return nil
		}

		if _, err := tx.NewDelete().
			Model((*NodeExecutionModel)(nil)).
			Where("workflow_execution_id IN (?)", bun.In(staleIDs)).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*ExecutionModel)(nil)).
			Where("id IN (?)", bun.In(staleIDs)).
			Exec(ctx)
		return err
	})
}
