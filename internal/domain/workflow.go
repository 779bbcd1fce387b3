package domain

import "github.com/google/uuid"

// Workflow is the top-level entity a graph (nodes + edges) belongs to.
// It does not own or validate its nodes/edges directly; the compiler
// and store own those concerns, so Workflow is a flat record of the
// metadata fields the import/export format and control commands need.
type Workflow struct {
	id            uuid.UUID
	workspaceID   uuid.UUID
	name          string
	description   string
	environmentID *uuid.UUID
	sortPriority  int
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(id, workspaceID uuid.UUID, name, description string, environmentID *uuid.UUID, sortPriority int) *Workflow {
	return &Workflow{
		id:            id,
		workspaceID:   workspaceID,
		name:          name,
		description:   description,
		environmentID: environmentID,
		sortPriority:  sortPriority,
	}
}

func (w *Workflow) ID() uuid.UUID            { return w.id }
func (w *Workflow) WorkspaceID() uuid.UUID   { return w.workspaceID }
func (w *Workflow) Name() string             { return w.name }
func (w *Workflow) Description() string      { return w.description }
func (w *Workflow) EnvironmentID() *uuid.UUID { return w.environmentID }
func (w *Workflow) SortPriority() int        { return w.sortPriority }

// Viewport is the persisted canvas pan/zoom state for a workflow's
// editor view. The core never reads it; it exists only so import/export
// is lossless.
type Viewport struct {
	id         uuid.UUID
	workflowID uuid.UUID
	panX       float64
	panY       float64
	zoom       float64
}

func NewViewport(id, workflowID uuid.UUID, panX, panY, zoom float64) *Viewport {
	return &Viewport{id: id, workflowID: workflowID, panX: panX, panY: panY, zoom: zoom}
}

func (v *Viewport) ID() uuid.UUID         { return v.id }
func (v *Viewport) WorkflowID() uuid.UUID { return v.workflowID }
func (v *Viewport) PanX() float64         { return v.panX }
func (v *Viewport) PanY() float64         { return v.panY }
func (v *Viewport) Zoom() float64         { return v.zoom }
