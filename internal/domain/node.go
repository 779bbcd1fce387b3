package domain

import "github.com/google/uuid"

// Node is an atom of execution in a workflow graph.
type Node struct {
	id         uuid.UUID
	workflowID uuid.UUID
	nodeType   NodeType
	subtype    NodeSubtype
	config     map[string]any
	enabled    bool

	// PositionX/PositionY/Width/Height are visual-canvas attributes the core
	// never reads; kept only so the import/export round-trip is lossless.
	positionX, positionY, width, height float64
}

// NewNode constructs a Node. config may be nil, in which case it is treated
// as an empty object.
func NewNode(id, workflowID uuid.UUID, nodeType NodeType, subtype NodeSubtype, config map[string]any, enabled bool) *Node {
	if config == nil {
		config = map[string]any{}
	}
	return &Node{
		id:         id,
		workflowID: workflowID,
		nodeType:   nodeType,
		subtype:    subtype,
		config:     config,
		enabled:    enabled,
	}
}

func (n *Node) ID() uuid.UUID           { return n.id }
func (n *Node) WorkflowID() uuid.UUID   { return n.workflowID }
func (n *Node) Type() NodeType          { return n.nodeType }
func (n *Node) Subtype() NodeSubtype    { return n.subtype }
func (n *Node) Config() map[string]any  { return n.config }
func (n *Node) Enabled() bool           { return n.enabled }
func (n *Node) Position() (x, y float64) { return n.positionX, n.positionY }
func (n *Node) Size() (w, h float64)     { return n.width, n.height }

// SetPosition records the visual canvas position (not read by the core).
func (n *Node) SetPosition(x, y, w, h float64) {
	n.positionX, n.positionY, n.width, n.height = x, y, w, h
}

// IsTrigger reports whether this node's category is Trigger.
func (n *Node) IsTrigger() bool { return n.nodeType == NodeTypeTrigger }

// WithConfig returns a shallow copy of the node carrying a different config,
// used by the orchestrator to execute against a template-rendered config
// without mutating the persisted node.
func (n *Node) WithConfig(config map[string]any) *Node {
	clone := *n
	clone.config = config
	return &clone
}
