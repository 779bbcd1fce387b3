package domain

import "github.com/google/uuid"

// Edge is a directed connection between two nodes.
type Edge struct {
	id           uuid.UUID
	workflowID   uuid.UUID
	sourceNodeID uuid.UUID
	targetNodeID uuid.UUID
	sourceAnchor string
	targetAnchor string
	edgeType     EdgeType

	// position is this edge's index in the persisted insertion order for
	// its workflow; fan-out expansion and parallel result collation both
	// follow it.
	position int
}

// NewEdge constructs an Edge. position is the edge's persisted insertion
// index within its workflow (see Position).
func NewEdge(id, workflowID, sourceNodeID, targetNodeID uuid.UUID, sourceAnchor, targetAnchor string, edgeType EdgeType, position int) *Edge {
	return &Edge{
		id:           id,
		workflowID:   workflowID,
		sourceNodeID: sourceNodeID,
		targetNodeID: targetNodeID,
		sourceAnchor: sourceAnchor,
		targetAnchor: targetAnchor,
		edgeType:     edgeType,
		position:     position,
	}
}

func (e *Edge) ID() uuid.UUID           { return e.id }
func (e *Edge) WorkflowID() uuid.UUID   { return e.workflowID }
func (e *Edge) SourceNodeID() uuid.UUID { return e.sourceNodeID }
func (e *Edge) TargetNodeID() uuid.UUID { return e.targetNodeID }
func (e *Edge) SourceAnchor() string    { return e.sourceAnchor }
func (e *Edge) TargetAnchor() string    { return e.targetAnchor }
func (e *Edge) Type() EdgeType          { return e.edgeType }
func (e *Edge) Position() int           { return e.position }
