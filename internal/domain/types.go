// Package domain defines the core data model of the workflow engine: nodes,
// edges, executions, and the variable/result state threaded through a run.
package domain

// NodeType is the broad category of a node.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeAction  NodeType = "action"
	NodeTypeLogic   NodeType = "logic"
)

// IsValid reports whether nt is one of the known node type categories.
func (nt NodeType) IsValid() bool {
	switch nt {
	case NodeTypeTrigger, NodeTypeAction, NodeTypeLogic:
		return true
	default:
		return false
	}
}

func (nt NodeType) String() string { return string(nt) }

// NodeSubtype tags the concrete kind of a node within its NodeType category.
type NodeSubtype string

const (
	SubtypeManualTrigger  NodeSubtype = "manual_trigger"
	SubtypeWebhookTrigger NodeSubtype = "webhook_trigger"
	SubtypeTimerTrigger   NodeSubtype = "timer_trigger"

	SubtypeHTTPRequest   NodeSubtype = "http_request"
	SubtypeGRPCRequest   NodeSubtype = "grpc_request"
	SubtypeSMTPSend      NodeSubtype = "smtp_send"
	SubtypeSQLQuery      NodeSubtype = "sql_query"
	SubtypeWebSocketSend NodeSubtype = "websocket_send"

	SubtypeConditional NodeSubtype = "conditional"
	SubtypeLoop        NodeSubtype = "loop"
	SubtypeParallel    NodeSubtype = "parallel"
)

func (st NodeSubtype) String() string { return string(st) }

// EdgeType determines how the orchestrator reads an edge at run time.
type EdgeType string

const (
	EdgeTypeSequential  EdgeType = "sequential"
	EdgeTypeConditional EdgeType = "conditional"
	EdgeTypeParallel    EdgeType = "parallel"
	EdgeTypeLoop        EdgeType = "loop"
)

// IsValid reports whether et is a known edge type.
func (et EdgeType) IsValid() bool {
	switch et {
	case EdgeTypeSequential, EdgeTypeConditional, EdgeTypeParallel, EdgeTypeLoop:
		return true
	default:
		return false
	}
}

func (et EdgeType) String() string { return string(et) }

// ExecutionState is the lifecycle state of a WorkflowExecution.
type ExecutionState string

const (
	ExecutionInitialized ExecutionState = "initialized"
	ExecutionRunning     ExecutionState = "running"
	ExecutionCompleted   ExecutionState = "completed"
	ExecutionFailed      ExecutionState = "failed"
	ExecutionCancelled   ExecutionState = "cancelled"
)

// IsTerminal reports whether the state is absorbing.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

func (s ExecutionState) String() string { return string(s) }

// NodeExecState is the lifecycle state of a single NodeExecution row.
type NodeExecState string

const (
	NodeExecPending   NodeExecState = "pending"
	NodeExecRunning   NodeExecState = "running"
	NodeExecCompleted NodeExecState = "completed"
	NodeExecFailed    NodeExecState = "failed"
	NodeExecSkipped   NodeExecState = "skipped"
)

func (s NodeExecState) IsTerminal() bool {
	switch s {
	case NodeExecCompleted, NodeExecFailed, NodeExecSkipped:
		return true
	default:
		return false
	}
}

func (s NodeExecState) String() string { return string(s) }

// Common domain error codes, mirrored across the engine's DomainError values.
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeCyclicDependency = "CYCLIC_DEPENDENCY"
	ErrCodeInvalidType      = "INVALID_TYPE"
)
