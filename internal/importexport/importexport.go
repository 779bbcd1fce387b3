// Package importexport implements the JSON workflow interchange
// format: a single document carrying a workflow's metadata, nodes,
// edges, and optional viewport. There is no database at this layer.
package importexport

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lybpyn/yaak/internal/domain"
)

// CurrentVersion is the only accepted import/export format version,
// compared literally; no forward-compat path is defined.
const CurrentVersion = "1.0"

// UnsupportedVersionError is returned by Import when the document's
// version field is anything other than CurrentVersion.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported import version %q, expected %q", e.Version, CurrentVersion)
}

type workflowDoc struct {
	ID            uuid.UUID  `json:"id"`
	WorkspaceID   uuid.UUID  `json:"workspaceId"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	EnvironmentID *uuid.UUID `json:"environmentId,omitempty"`
	SortPriority  int        `json:"sortPriority"`
}

type nodeDoc struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  uuid.UUID      `json:"workflowId"`
	NodeType    string         `json:"nodeType"`
	NodeSubtype string         `json:"nodeSubtype"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	PositionX   float64        `json:"positionX"`
	PositionY   float64        `json:"positionY"`
	Width       float64        `json:"width"`
	Height      float64        `json:"height"`
	Config      map[string]any `json:"config"`
	Enabled     bool           `json:"enabled"`
}

type edgeDoc struct {
	ID           uuid.UUID `json:"id"`
	WorkflowID   uuid.UUID `json:"workflowId"`
	SourceNodeID uuid.UUID `json:"sourceNodeId"`
	SourceAnchor string    `json:"sourceAnchor"`
	TargetNodeID uuid.UUID `json:"targetNodeId"`
	TargetAnchor string    `json:"targetAnchor"`
	EdgeType     string    `json:"edgeType"`
}

type viewportDoc struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflowId"`
	PanX       float64   `json:"panX"`
	PanY       float64   `json:"panY"`
	Zoom       float64   `json:"zoom"`
}

type document struct {
	Version  string       `json:"version"`
	Workflow workflowDoc  `json:"workflow"`
	Nodes    []nodeDoc    `json:"nodes"`
	Edges    []edgeDoc    `json:"edges"`
	Viewport *viewportDoc `json:"viewport"`
}

// Bundle is the in-memory, already-materialized form of one document: a
// workflow plus its nodes, edges, and optional viewport. Names and node
// Position/Size round-trip through this type even though the core
// orchestrator never reads them; node Enabled flags round-trip too.
type Bundle struct {
	Workflow *domain.Workflow
	Nodes    []*domain.Node
	NodeMeta map[uuid.UUID]NodeMeta // keyed by node id, carries name/description
	Edges    []*domain.Edge
	Viewport *domain.Viewport
}

// NodeMeta carries the display-only fields of a node (name/description)
// that domain.Node itself does not model, since the core never reads
// them.
type NodeMeta struct {
	Name        string
	Description string
}

// Export serializes b into the versioned JSON document shape.
func Export(b *Bundle) ([]byte, error) {
	doc := document{
		Version: CurrentVersion,
		Workflow: workflowDoc{
			ID:            b.Workflow.ID(),
			WorkspaceID:   b.Workflow.WorkspaceID(),
			Name:          b.Workflow.Name(),
			Description:   b.Workflow.Description(),
			EnvironmentID: b.Workflow.EnvironmentID(),
			SortPriority:  b.Workflow.SortPriority(),
		},
	}

	for _, n := range b.Nodes {
		x, y := n.Position()
		w, h := n.Size()
		meta := b.NodeMeta[n.ID()]
		doc.Nodes = append(doc.Nodes, nodeDoc{
			ID:          n.ID(),
			WorkflowID:  n.WorkflowID(),
			NodeType:    n.Type().String(),
			NodeSubtype: n.Subtype().String(),
			Name:        meta.Name,
			Description: meta.Description,
			PositionX:   x,
			PositionY:   y,
			Width:       w,
			Height:      h,
			Config:      n.Config(),
			Enabled:     n.Enabled(),
		})
	}

	for _, e := range b.Edges {
		doc.Edges = append(doc.Edges, edgeDoc{
			ID:           e.ID(),
			WorkflowID:   e.WorkflowID(),
			SourceNodeID: e.SourceNodeID(),
			SourceAnchor: e.SourceAnchor(),
			TargetNodeID: e.TargetNodeID(),
			TargetAnchor: e.TargetAnchor(),
			EdgeType:     e.Type().String(),
		})
	}

	if b.Viewport != nil {
		doc.Viewport = &viewportDoc{
			ID:         b.Viewport.ID(),
			WorkflowID: b.Viewport.WorkflowID(),
			PanX:       b.Viewport.PanX(),
			PanY:       b.Viewport.PanY(),
			Zoom:       b.Viewport.Zoom(),
		}
	}

	return json.Marshal(doc)
}

// Import parses raw into a Bundle, regenerating every id (workflow, nodes,
// edges, viewport) and remapping edge endpoints through the resulting
// old-id to new-id map. workspaceID pins the imported workflow to
// the importing workspace regardless of what the document's own
// workspaceId says.
func Import(raw []byte, workspaceID uuid.UUID) (*Bundle, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid import document: %w", err)
	}
	if doc.Version != CurrentVersion {
		return nil, &UnsupportedVersionError{Version: doc.Version}
	}

	idMap := make(map[uuid.UUID]uuid.UUID)
	remap := func(old uuid.UUID) uuid.UUID {
		if old == uuid.Nil {
			return uuid.Nil
		}
		if n, ok := idMap[old]; ok {
			return n
		}
		n := uuid.New()
		idMap[old] = n
		return n
	}

	newWorkflowID := remap(doc.Workflow.ID)
	workflow := domain.NewWorkflow(newWorkflowID, workspaceID, doc.Workflow.Name, doc.Workflow.Description, doc.Workflow.EnvironmentID, doc.Workflow.SortPriority)

	bundle := &Bundle{
		Workflow: workflow,
		NodeMeta: make(map[uuid.UUID]NodeMeta, len(doc.Nodes)),
	}

	for _, nd := range doc.Nodes {
		newID := remap(nd.ID)
		node := domain.NewNode(newID, newWorkflowID, domain.NodeType(nd.NodeType), domain.NodeSubtype(nd.NodeSubtype), nd.Config, nd.Enabled)
		node.SetPosition(nd.PositionX, nd.PositionY, nd.Width, nd.Height)
		bundle.Nodes = append(bundle.Nodes, node)
		bundle.NodeMeta[newID] = NodeMeta{Name: nd.Name, Description: nd.Description}
	}

	for i, ed := range doc.Edges {
		newID := remap(ed.ID)
		srcID, targetKnown := idMap[ed.SourceNodeID]
		if !targetKnown {
			return nil, fmt.Errorf("edge %s references unknown source node %s", ed.ID, ed.SourceNodeID)
		}
		dstID, ok := idMap[ed.TargetNodeID]
		if !ok {
			return nil, fmt.Errorf("edge %s references unknown target node %s", ed.ID, ed.TargetNodeID)
		}
		edge := domain.NewEdge(newID, newWorkflowID, srcID, dstID, ed.SourceAnchor, ed.TargetAnchor, domain.EdgeType(ed.EdgeType), i)
		bundle.Edges = append(bundle.Edges, edge)
	}

	if doc.Viewport != nil {
		bundle.Viewport = domain.NewViewport(remap(doc.Viewport.ID), newWorkflowID, doc.Viewport.PanX, doc.Viewport.PanY, doc.Viewport.Zoom)
	}

	return bundle, nil
}
