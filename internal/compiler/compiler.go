package compiler

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lybpyn/yaak/internal/domain"
)

// CompileErrorKind discriminates the compile failure modes.
type CompileErrorKind int

const (
	ErrNoNodes CompileErrorKind = iota
	ErrNoEnabledNodes
	ErrNoStartTrigger
	ErrMultipleStartTriggers
	ErrDanglingEdge
	ErrCycle
	ErrUnknownNodeType
	ErrSchemaViolation
)

// CompileError is one validation failure. Multiple CompileErrors are
// aggregated into a MultiError; the validation pass collects all
// violations rather than stopping at the first.
type CompileError struct {
	Kind    CompileErrorKind
	Message string

	// NodeIDs carries the candidate ids for ErrMultipleStartTriggers.
	NodeIDs []uuid.UUID
	// EdgeID/MissingNodeID are set for ErrDanglingEdge.
	EdgeID        uuid.UUID
	MissingNodeID uuid.UUID
	// NodeID/FieldPath are set for ErrSchemaViolation/ErrUnknownNodeType.
	NodeID    uuid.UUID
	FieldPath string
}

func (e *CompileError) Error() string { return e.Message }

// MultiError aggregates every CompileError found during validation.
type MultiError struct {
	Errors []*CompileError
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

func (m *MultiError) add(kind CompileErrorKind, format string, args ...any) {
	m.Errors = append(m.Errors, &CompileError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Compile converts a workflow's persisted nodes/edges into an
// ExecutionPlan, or a MultiError describing every violation found. It
// is deterministic and pure with respect to its inputs.
func Compile(nodes []*domain.Node, edges []*domain.Edge, registry *Registry) (*ExecutionPlan, *MultiError) {
	merr := &MultiError{}

	if len(nodes) == 0 {
		merr.add(ErrNoNodes, "workflow has no nodes")
		return nil, merr
	}

	g := newGraph()
	nodeByID := make(map[uuid.UUID]*domain.Node, len(nodes))
	for _, n := range nodes {
		g.addNode(n.ID())
		nodeByID[n.ID()] = n
	}

	anyEnabled := false
	for _, n := range nodes {
		if n.Enabled() {
			anyEnabled = true
			break
		}
	}
	if !anyEnabled {
		merr.add(ErrNoEnabledNodes, "workflow has no enabled nodes")
	}

	// Dangling-edge check must happen before building the adjacency index
	// used by every later pass, since a dangling edge cannot be indexed
	// against a missing node.
	validEdges := make([]*domain.Edge, 0, len(edges))
	for _, e := range edges {
		if !g.hasNode(e.SourceNodeID()) {
			merr.add(ErrDanglingEdge, "edge %s references missing source node %s", e.ID(), e.SourceNodeID())
			continue
		}
		if !g.hasNode(e.TargetNodeID()) {
			merr.add(ErrDanglingEdge, "edge %s references missing target node %s", e.ID(), e.TargetNodeID())
			continue
		}
		validEdges = append(validEdges, e)
	}

	for i, e := range validEdges {
		g.addEdge(&edgeRef{
			id:           e.ID(),
			sourceNodeID: e.SourceNodeID(),
			targetNodeID: e.TargetNodeID(),
			sourceAnchor: e.SourceAnchor(),
			targetAnchor: e.TargetAnchor(),
			edgeType:     edgeTypeTag(e.Type().String()),
			position:     i,
		})
	}

	// Exactly one start trigger: Trigger type, zero incoming edges.
	var startCandidates []uuid.UUID
	for _, n := range nodes {
		if n.Type() == domain.NodeTypeTrigger && len(g.inEdges(n.ID())) == 0 {
			startCandidates = append(startCandidates, n.ID())
		}
	}
	switch len(startCandidates) {
	case 0:
		merr.add(ErrNoStartTrigger, "workflow has no start trigger (a Trigger node with no incoming edges)")
	case 1:
		// fine
	default:
		ce := &CompileError{
			Kind:    ErrMultipleStartTriggers,
			Message: fmt.Sprintf("workflow has multiple start triggers: %v", startCandidates),
			NodeIDs: startCandidates,
		}
		merr.Errors = append(merr.Errors, ce)
	}

	if g.hasCycle() {
		merr.add(ErrCycle, "Cycle detected in workflow graph (excluding loop edges)")
	}

	for _, n := range nodes {
		_, fieldErrs := registry.ValidateConfig(n)
		for _, fe := range fieldErrs {
			if fe.FieldPath == "" {
				merr.Errors = append(merr.Errors, &CompileError{
					Kind:    ErrUnknownNodeType,
					Message: fe.Message,
					NodeID:  n.ID(),
				})
				continue
			}
			merr.Errors = append(merr.Errors, &CompileError{
				Kind:      ErrSchemaViolation,
				Message:   fe.Message,
				NodeID:    n.ID(),
				FieldPath: fe.FieldPath,
			})
		}
	}

	if len(merr.Errors) > 0 {
		return nil, merr
	}

	startID := startCandidates[0]
	p := &ExecutionPlan{
		Nodes:       make(map[uuid.UUID]*NodeView, len(nodes)),
		StartNodeID: startID,
	}
	for _, n := range nodes {
		p.Nodes[n.ID()] = &NodeView{
			ID:      n.ID(),
			Type:    n.Type().String(),
			Subtype: n.Subtype().String(),
			Config:  n.Config(),
			Enabled: n.Enabled(),
		}
	}
	for i, e := range validEdges {
		p.Edges = append(p.Edges, &EdgeView{
			ID:           e.ID(),
			SourceNodeID: e.SourceNodeID(),
			TargetNodeID: e.TargetNodeID(),
			SourceAnchor: e.SourceAnchor(),
			TargetAnchor: e.TargetAnchor(),
			EdgeType:     e.Type().String(),
			Position:     i,
		})
	}

	visited := make(map[uuid.UUID]bool)
	p.ExecutionOrder = planFrom(g, nodeByID, startID, visited)

	return p, nil
}

// planFrom performs the planning-pass DFS, dispatching on each node's
// subtype: build from the adjacency map, dedupe with a visited set.
func planFrom(g *graph, nodeByID map[uuid.UUID]*domain.Node, startID uuid.UUID, visited map[uuid.UUID]bool) []*ExecutionStep {
	var steps []*ExecutionStep
	id := startID
	for {
		if visited[id] {
			break
		}
		visited[id] = true
		n := nodeByID[id]

		switch n.Subtype() {
		case domain.SubtypeConditional:
			trueEdges, falseEdges := conditionalBranches(g, id)
			step := &ExecutionStep{Kind: StepConditional, NodeID: id}
			step.TrueBranch = expandTargets(g, nodeByID, trueEdges, visited)
			step.FalseBranch = expandTargets(g, nodeByID, falseEdges, visited)
			steps = append(steps, step)
			return steps

		case domain.SubtypeLoop:
			bodyEdges := g.outEdges(id, edgeLoop)
			step := &ExecutionStep{Kind: StepLoop, NodeID: id}
			step.Body = expandTargets(g, nodeByID, bodyEdges, visited)
			steps = append(steps, step)
			return steps

		case domain.SubtypeParallel:
			parEdges := g.outEdges(id, edgeParallel)
			nodeIDs := make([]uuid.UUID, 0, len(parEdges))
			for _, e := range parEdges {
				nodeIDs = append(nodeIDs, e.targetNodeID)
				visited[e.targetNodeID] = true
			}
			steps = append(steps, &ExecutionStep{Kind: StepParallel, NodeID: id, NodeIDs: nodeIDs})
			return steps

		default:
			steps = append(steps, &ExecutionStep{Kind: StepSequential, NodeID: id})
			seqEdges := g.outEdges(id, edgeSequential)
			if len(seqEdges) == 0 {
				return steps
			}
			// Sequential fan-out targets are expanded depth-first in
			// persisted edge insertion order: every target but the last
			// as its own nested chain, the last as this loop's tail.
			last := len(seqEdges) - 1
			for _, e := range seqEdges[:last] {
				if !visited[e.targetNodeID] {
					steps = append(steps, planFrom(g, nodeByID, e.targetNodeID, visited)...)
				}
			}
			next := seqEdges[last].targetNodeID
			if visited[next] {
				return steps
			}
			id = next
		}
	}
	return steps
}

// conditionalBranches classifies a conditional node's outgoing edges:
// the source_anchor is authoritative, and the edge_type==Conditional
// check is only a fallback when no anchor is set.
func conditionalBranches(g *graph, nodeID uuid.UUID) (trueEdges, falseEdges []*edgeRef) {
	for _, e := range g.outEdges(nodeID, "") {
		switch e.sourceAnchor {
		case "true":
			trueEdges = append(trueEdges, e)
		case "false":
			falseEdges = append(falseEdges, e)
		default:
			if e.edgeType == edgeConditional {
				trueEdges = append(trueEdges, e)
			}
		}
	}
	return trueEdges, falseEdges
}

func expandTargets(g *graph, nodeByID map[uuid.UUID]*domain.Node, edges []*edgeRef, visited map[uuid.UUID]bool) []*ExecutionStep {
	var steps []*ExecutionStep
	for _, e := range edges {
		if visited[e.targetNodeID] {
			continue
		}
		steps = append(steps, planFrom(g, nodeByID, e.targetNodeID, visited)...)
	}
	return steps
}
