package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/lybpyn/yaak/internal/domain"
)

// WorkflowModel is the bun row shape for domain.Workflow.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID            uuid.UUID  `bun:"id,pk"`
	WorkspaceID   uuid.UUID  `bun:"workspace_id"`
	Name          string     `bun:"name"`
	Description   string     `bun:"description"`
	EnvironmentID *uuid.UUID `bun:"environment_id"`
	SortPriority  int        `bun:"sort_priority"`
}

func NewWorkflowModel(w *domain.Workflow) *WorkflowModel {
	return &WorkflowModel{
		ID:            w.ID(),
		WorkspaceID:   w.WorkspaceID(),
		Name:          w.Name(),
		Description:   w.Description(),
		EnvironmentID: w.EnvironmentID(),
		SortPriority:  w.SortPriority(),
	}
}

func (m *WorkflowModel) ToDomain() *domain.Workflow {
	return domain.NewWorkflow(m.ID, m.WorkspaceID, m.Name, m.Description, m.EnvironmentID, m.SortPriority)
}

// ViewportModel is the bun row shape for domain.Viewport.
type ViewportModel struct {
	bun.BaseModel `bun:"table:workflow_viewports,alias:vp"`

	ID         uuid.UUID `bun:"id,pk"`
	WorkflowID uuid.UUID `bun:"workflow_id"`
	PanX       float64   `bun:"pan_x"`
	PanY       float64   `bun:"pan_y"`
	Zoom       float64   `bun:"zoom"`
}

func NewViewportModel(v *domain.Viewport) *ViewportModel {
	return &ViewportModel{ID: v.ID(), WorkflowID: v.WorkflowID(), PanX: v.PanX(), PanY: v.PanY(), Zoom: v.Zoom()}
}

func (m *ViewportModel) ToDomain() *domain.Viewport {
	return domain.NewViewport(m.ID, m.WorkflowID, m.PanX, m.PanY, m.Zoom)
}

// NodeModel is the bun row shape for domain.Node.
type NodeModel struct {
	bun.BaseModel `bun:"table:workflow_nodes,alias:n"`

	ID         uuid.UUID      `bun:"id,pk"`
	WorkflowID uuid.UUID      `bun:"workflow_id"`
	NodeType   string         `bun:"node_type"`
	Subtype    string         `bun:"node_subtype"`
	Config     map[string]any `bun:"config,type:jsonb"`
	Enabled    bool           `bun:"enabled"`
	PositionX  float64        `bun:"position_x"`
	PositionY  float64        `bun:"position_y"`
	Width      float64        `bun:"width"`
	Height     float64        `bun:"height"`
}

func NewNodeModel(n *domain.Node) *NodeModel {
	x, y := n.Position()
	w, h := n.Size()
	return &NodeModel{
		ID:         n.ID(),
		WorkflowID: n.WorkflowID(),
		NodeType:   n.Type().String(),
		Subtype:    n.Subtype().String(),
		Config:     n.Config(),
		Enabled:    n.Enabled(),
		PositionX:  x,
		PositionY:  y,
		Width:      w,
		Height:     h,
	}
}

func (m *NodeModel) ToDomain() *domain.Node {
	n := domain.NewNode(m.ID, m.WorkflowID, domain.NodeType(m.NodeType), domain.NodeSubtype(m.Subtype), m.Config, m.Enabled)
	n.SetPosition(m.PositionX, m.PositionY, m.Width, m.Height)
	return n
}

// EdgeModel is the bun row shape for domain.Edge.
type EdgeModel struct {
	bun.BaseModel `bun:"table:workflow_edges,alias:e"`

	ID           uuid.UUID `bun:"id,pk"`
	WorkflowID   uuid.UUID `bun:"workflow_id"`
	SourceNodeID uuid.UUID `bun:"source_node_id"`
	TargetNodeID uuid.UUID `bun:"target_node_id"`
	SourceAnchor string    `bun:"source_anchor"`
	TargetAnchor string    `bun:"target_anchor"`
	EdgeType     string    `bun:"edge_type"`
	Position     int       `bun:"position"`
}

func NewEdgeModel(e *domain.Edge) *EdgeModel {
	return &EdgeModel{
		ID:           e.ID(),
		WorkflowID:   e.WorkflowID(),
		SourceNodeID: e.SourceNodeID(),
		TargetNodeID: e.TargetNodeID(),
		SourceAnchor: e.SourceAnchor(),
		TargetAnchor: e.TargetAnchor(),
		EdgeType:     e.Type().String(),
		Position:     e.Position(),
	}
}

func (m *EdgeModel) ToDomain() *domain.Edge {
	return domain.NewEdge(m.ID, m.WorkflowID, m.SourceNodeID, m.TargetNodeID, m.SourceAnchor, m.TargetAnchor, domain.EdgeType(m.EdgeType), m.Position)
}

// ExecutionModel is the bun row shape for domain.WorkflowExecution.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:workflow_executions,alias:we"`

	ID            uuid.UUID  `bun:"id,pk"`
	WorkflowID    uuid.UUID  `bun:"workflow_id"`
	WorkspaceID   uuid.UUID  `bun:"workspace_id"`
	EnvironmentID *uuid.UUID `bun:"environment_id"`
	State         string     `bun:"state"`
	ElapsedMS     int64      `bun:"elapsed_ms"`
	Error         string     `bun:"error"`
	StartedAt     time.Time  `bun:"started_at"`
}

func NewExecutionModel(e *domain.WorkflowExecution) *ExecutionModel {
	return &ExecutionModel{
		ID:            e.ID(),
		WorkflowID:    e.WorkflowID(),
		WorkspaceID:   e.WorkspaceID(),
		EnvironmentID: e.EnvironmentID(),
		State:         e.State().String(),
		ElapsedMS:     e.ElapsedMS(),
		Error:         e.Error(),
		StartedAt:     e.StartedAt(),
	}
}

func (m *ExecutionModel) ToDomain() *domain.WorkflowExecution {
	return domain.ReconstructWorkflowExecution(m.ID, m.WorkflowID, m.WorkspaceID, m.EnvironmentID, domain.ExecutionState(m.State), m.ElapsedMS, m.Error, m.StartedAt)
}

// NodeExecutionModel is the bun row shape for domain.NodeExecution.
type NodeExecutionModel struct {
	bun.BaseModel `bun:"table:node_executions,alias:ne"`

	ID                  uuid.UUID `bun:"id,pk"`
	WorkflowExecutionID uuid.UUID `bun:"workflow_execution_id"`
	WorkflowNodeID      uuid.UUID `bun:"workflow_node_id"`
	LoopIteration       *int      `bun:"loop_iteration"`
	State               string    `bun:"state"`
	ElapsedMS           int64     `bun:"elapsed_ms"`
	Error               string    `bun:"error"`
	Result              any       `bun:"result,type:jsonb"`
	StartedAt           time.Time `bun:"started_at"`
}

func NewNodeExecutionModel(n *domain.NodeExecution) *NodeExecutionModel {
	return &NodeExecutionModel{
		ID:                  n.ID(),
		WorkflowExecutionID: n.WorkflowExecutionID(),
		WorkflowNodeID:      n.WorkflowNodeID(),
		LoopIteration:       n.LoopIteration(),
		State:               n.State().String(),
		ElapsedMS:           n.ElapsedMS(),
		Error:               n.Error(),
		Result:              n.Result(),
		StartedAt:           n.StartedAt(),
	}
}

func (m *NodeExecutionModel) ToDomain() *domain.NodeExecution {
	return domain.ReconstructNodeExecution(m.ID, m.WorkflowExecutionID, m.WorkflowNodeID, m.LoopIteration, domain.NodeExecState(m.State), m.ElapsedMS, m.Error, m.Result, m.StartedAt)
}
