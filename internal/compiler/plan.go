package compiler

import "github.com/google/uuid"

// StepKind tags the variant of an ExecutionStep. Go has no native sum
// type, so the variants share one struct carrying only the fields its
// Kind uses.
type StepKind int

const (
	StepSequential StepKind = iota
	StepParallel
	StepConditional
	StepLoop
)

// ExecutionStep is one element of a compiled plan. Depending on Kind:
//   - StepSequential: NodeID set; the single node to run next.
//   - StepParallel:   NodeIDs set; each runs standalone, concurrently.
//   - StepConditional: NodeID is the conditional node; TrueBranch/
//     FalseBranch are the nested steps for each outcome.
//   - StepLoop: NodeID is the loop node; Body is the nested steps run
//     once per iteration.
type ExecutionStep struct {
	Kind StepKind

	NodeID  uuid.UUID
	NodeIDs []uuid.UUID

	TrueBranch  []*ExecutionStep
	FalseBranch []*ExecutionStep
	Body        []*ExecutionStep
}

// ExecutionPlan is the compiled, in-memory output of Compile. Plans are
// ephemeral and are never persisted.
type ExecutionPlan struct {
	Nodes          map[uuid.UUID]*NodeView
	Edges          []*EdgeView
	StartNodeID    uuid.UUID
	ExecutionOrder []*ExecutionStep
}

// NodeView and EdgeView are the plan's read-only projections of the
// persisted graph, decoupled from internal/domain so the compiler package
// need not leak its graph/registry internals to callers walking the plan.
type NodeView struct {
	ID      uuid.UUID
	Type    string
	Subtype string
	Config  map[string]any
	Enabled bool
}

type EdgeView struct {
	ID           uuid.UUID
	SourceNodeID uuid.UUID
	TargetNodeID uuid.UUID
	SourceAnchor string
	TargetAnchor string
	EdgeType     string
	Position     int
}
