package compiler

import "github.com/google/uuid"

// graph is the adjacency-indexed view of a workflow's nodes and edges
// used by both the validation and planning passes. It is purely
// structural: compile time has no variable bindings to evaluate
// conditions against.
type graph struct {
	nodes map[uuid.UUID]*nodeRef
	// out and in index edges per node in persisted insertion order, so
	// fan-out expansion is reproducible.
	out map[uuid.UUID][]*edgeRef
	in  map[uuid.UUID][]*edgeRef
}

type nodeRef struct {
	id uuid.UUID
}

type edgeRef struct {
	id           uuid.UUID
	sourceNodeID uuid.UUID
	targetNodeID uuid.UUID
	sourceAnchor string
	targetAnchor string
	edgeType     edgeTypeTag
	position     int
}

// edgeTypeTag mirrors domain.EdgeType locally so this file does not need
// to import domain just for string comparisons in the hot path; built from
// domain.EdgeType at graph-construction time.
type edgeTypeTag string

const (
	edgeSequential  edgeTypeTag = "sequential"
	edgeConditional edgeTypeTag = "conditional"
	edgeParallel    edgeTypeTag = "parallel"
	edgeLoop        edgeTypeTag = "loop"
)

func newGraph() *graph {
	return &graph{
		nodes: make(map[uuid.UUID]*nodeRef),
		out:   make(map[uuid.UUID][]*edgeRef),
		in:    make(map[uuid.UUID][]*edgeRef),
	}
}

func (g *graph) addNode(id uuid.UUID) {
	g.nodes[id] = &nodeRef{id: id}
}

func (g *graph) addEdge(e *edgeRef) {
	g.out[e.sourceNodeID] = append(g.out[e.sourceNodeID], e)
	g.in[e.targetNodeID] = append(g.in[e.targetNodeID], e)
}

func (g *graph) hasNode(id uuid.UUID) bool {
	_, ok := g.nodes[id]
	return ok
}

// outEdges returns a node's outgoing edges in insertion order, optionally
// filtered by edge type (pass "" for all).
func (g *graph) outEdges(id uuid.UUID, edgeType edgeTypeTag) []*edgeRef {
	var out []*edgeRef
	for _, e := range g.out[id] {
		if edgeType == "" || e.edgeType == edgeType {
			out = append(out, e)
		}
	}
	return out
}

func (g *graph) inEdges(id uuid.UUID) []*edgeRef {
	return g.in[id]
}

// hasCycle reports whether the subgraph of non-Loop edges contains a
// cycle, via DFS with recursion-stack tracking. Loop edges are excluded
// so a loop's back-edge does not count as a cycle.
func (g *graph) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uuid.UUID]int, len(g.nodes))
	for id := range g.nodes {
		color[id] = white
	}

	var visit func(id uuid.UUID) bool
	visit = func(id uuid.UUID) bool {
		color[id] = gray
		for _, e := range g.out[id] {
			if e.edgeType == edgeLoop {
				continue
			}
			switch color[e.targetNodeID] {
			case gray:
				return true
			case white:
				if visit(e.targetNodeID) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for id := range g.nodes {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
