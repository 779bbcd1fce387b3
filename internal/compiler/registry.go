// Package compiler converts a persisted node/edge set into a statically
// structured ExecutionPlan, validating graph invariants in the process.
package compiler

import (
	"fmt"

	"github.com/lybpyn/yaak/internal/domain"
)

// FieldKind is the lightweight type tag used by config field
// validation.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBool
	KindObject
	KindArray
)

// FieldSpec describes one required or optional config field.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// NodeDefinition is a registered (node_type, node_subtype) pair and the
// config shape it demands.
type NodeDefinition struct {
	Type    domain.NodeType
	Subtype domain.NodeSubtype
	Fields  []FieldSpec
}

// Registry is the set of known node definitions, keyed by subtype (a
// subtype uniquely determines its type in this engine).
type Registry struct {
	defs map[domain.NodeSubtype]NodeDefinition
}

// DefaultRegistry returns the registry of built-in node definitions.
func DefaultRegistry() *Registry {
	r := &Registry{defs: make(map[domain.NodeSubtype]NodeDefinition)}
	for _, d := range []NodeDefinition{
		{Type: domain.NodeTypeTrigger, Subtype: domain.SubtypeManualTrigger},
		{Type: domain.NodeTypeTrigger, Subtype: domain.SubtypeWebhookTrigger},
		{Type: domain.NodeTypeTrigger, Subtype: domain.SubtypeTimerTrigger,
			Fields: []FieldSpec{{Name: "schedule", Kind: KindString, Required: true}}},
		{Type: domain.NodeTypeAction, Subtype: domain.SubtypeHTTPRequest,
			Fields: []FieldSpec{
				{Name: "url", Kind: KindString, Required: true},
				{Name: "method", Kind: KindString, Required: true},
			}},
		{Type: domain.NodeTypeAction, Subtype: domain.SubtypeGRPCRequest,
			Fields: []FieldSpec{
				{Name: "target", Kind: KindString, Required: true},
				{Name: "method", Kind: KindString, Required: true},
			}},
		{Type: domain.NodeTypeAction, Subtype: domain.SubtypeSMTPSend,
			Fields: []FieldSpec{
				{Name: "to", Kind: KindString, Required: true},
				{Name: "subject", Kind: KindString, Required: true},
			}},
		{Type: domain.NodeTypeAction, Subtype: domain.SubtypeSQLQuery,
			Fields: []FieldSpec{{Name: "query", Kind: KindString, Required: true}}},
		{Type: domain.NodeTypeAction, Subtype: domain.SubtypeWebSocketSend,
			Fields: []FieldSpec{{Name: "url", Kind: KindString, Required: true}}},
		{Type: domain.NodeTypeLogic, Subtype: domain.SubtypeConditional,
			Fields: []FieldSpec{{Name: "condition", Kind: KindString, Required: true}}},
		{Type: domain.NodeTypeLogic, Subtype: domain.SubtypeLoop,
			Fields: []FieldSpec{{Name: "loop_type", Kind: KindString, Required: true}}},
		{Type: domain.NodeTypeLogic, Subtype: domain.SubtypeParallel},
	} {
		r.defs[d.Subtype] = d
	}
	return r
}

// Lookup returns the registered definition for (nodeType, subtype).
func (r *Registry) Lookup(nodeType domain.NodeType, subtype domain.NodeSubtype) (NodeDefinition, bool) {
	d, ok := r.defs[subtype]
	if !ok || d.Type != nodeType {
		return NodeDefinition{}, false
	}
	return d, true
}

// FieldError is one config-validation failure on a single node.
type FieldError struct {
	NodeID    string
	FieldPath string
	Message   string
}

// ValidateConfig checks node.Config() against its registered
// definition's field list. It does not evaluate expression
// fields (e.g. the loop's count or conditional's condition); those are
// rendered and coerced at run time by the template renderer and
// orchestrator, not at compile time.
func (r *Registry) ValidateConfig(node *domain.Node) (*NodeDefinition, []FieldError) {
	def, ok := r.Lookup(node.Type(), node.Subtype())
	if !ok {
		return nil, []FieldError{{
			NodeID:  node.ID().String(),
			Message: fmt.Sprintf("unknown node type/subtype: %s/%s", node.Type(), node.Subtype()),
		}}
	}

	var errs []FieldError
	cfg := node.Config()
	for _, f := range def.Fields {
		v, present := cfg[f.Name]
		if !present {
			if f.Required {
				errs = append(errs, FieldError{
					NodeID:    node.ID().String(),
					FieldPath: f.Name,
					Message:   fmt.Sprintf("missing required field %q", f.Name),
				})
			}
			continue
		}
		if !kindMatches(v, f.Kind) {
			errs = append(errs, FieldError{
				NodeID:    node.ID().String(),
				FieldPath: f.Name,
				Message:   fmt.Sprintf("field %q has wrong type", f.Name),
			})
		}
	}
	return &def, errs
}

func kindMatches(v any, kind FieldKind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}
