package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lybpyn/yaak/internal/domain"
)

// WorkflowContext is the run-time state the template renderer consults
// to resolve the workflow-extended identifier space:
// workflow.step[N].*, loop.*, and conditional.branch.
type WorkflowContext struct {
	// Steps holds each executed step's StepResponse, indexed by the order
	// in which that step ran (step N = the Nth step of the current
	// execution to receive a StepResponse adapter).
	Steps []*domain.StepResponse
	// Loop is the innermost active LoopContext, or nil outside any loop.
	Loop *domain.LoopContext
	// Branch is the currently active conditional branch tag.
	Branch string
}

// StepNotExecutedError reports a reference to a step index with no
// recorded response yet.
type StepNotExecutedError struct{ Step int }

func (e *StepNotExecutedError) Error() string {
	return fmt.Sprintf("step %d has not executed", e.Step)
}

// FieldNotFoundError reports a dotted-path lookup into a step's response
// body that did not resolve.
type FieldNotFoundError struct {
	Path string
	Step int
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found in step %d response body", e.Path, e.Step)
}

// HeaderNotFoundError reports a missing response header lookup.
type HeaderNotFoundError struct {
	Name string
	Step int
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("header %q not found in step %d response", e.Name, e.Step)
}

// InvalidSyntaxError reports a malformed workflow-extended identifier.
type InvalidSyntaxError struct{ Msg string }

func (e *InvalidSyntaxError) Error() string { return e.Msg }

var (
	stepPattern = regexp.MustCompile(`^workflow\.step\[(\d+)\]\.response\.(.+)$`)
	loopItem    = regexp.MustCompile(`^loop\.item(?:\.(.+))?$`)
)

// IsWorkflowIdentifier reports whether identifier belongs to the
// workflow-extended namespace (workflow.*, loop.*, conditional.*) rather
// than a plain variable reference.
func IsWorkflowIdentifier(identifier string) bool {
	return strings.HasPrefix(identifier, "workflow.") ||
		strings.HasPrefix(identifier, "loop.") ||
		strings.HasPrefix(identifier, "conditional.")
}

// ResolveWorkflowIdentifier resolves one workflow-extended identifier
// against wc. Called only when IsWorkflowIdentifier(identifier) is true.
func ResolveWorkflowIdentifier(wc *WorkflowContext, identifier string) (any, error) {
	switch {
	case strings.HasPrefix(identifier, "workflow.step["):
		return resolveStep(wc, identifier)
	case identifier == "loop.index":
		if wc.Loop == nil {
			return nil, &InvalidSyntaxError{Msg: "loop.index referenced outside any loop"}
		}
		return wc.Loop.Index, nil
	case identifier == "loop.total":
		if wc.Loop == nil {
			return nil, &InvalidSyntaxError{Msg: "loop.total referenced outside any loop"}
		}
		return wc.Loop.Total, nil
	case loopItem.MatchString(identifier):
		if wc.Loop == nil {
			return nil, &InvalidSyntaxError{Msg: "loop.item referenced outside any loop"}
		}
		m := loopItem.FindStringSubmatch(identifier)
		if m[1] == "" {
			return wc.Loop.Item, nil
		}
		return navigatePath(wc.Loop.Item, strings.Split(m[1], "."))
	case identifier == "conditional.branch":
		return wc.Branch, nil
	default:
		return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("unrecognized workflow identifier %q", identifier)}
	}
}

func resolveStep(wc *WorkflowContext, identifier string) (any, error) {
	m := stepPattern.FindStringSubmatch(identifier)
	if m == nil {
		return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("malformed step identifier %q", identifier)}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("malformed step index in %q", identifier)}
	}
	if n < 0 || n >= len(wc.Steps) || wc.Steps[n] == nil {
		return nil, &StepNotExecutedError{Step: n}
	}
	resp := wc.Steps[n]

	rest := m[2]
	switch {
	case rest == "status":
		return resp.Status, nil
	case rest == "elapsed":
		return resp.ElapsedMS, nil
	case rest == "url":
		return resp.URL, nil
	case rest == "body":
		return resp.Body, nil
	case strings.HasPrefix(rest, "headers."):
		name := strings.TrimPrefix(rest, "headers.")
		v, ok := resp.Headers[name]
		if !ok {
			return nil, &HeaderNotFoundError{Name: name, Step: n}
		}
		return v, nil
	case strings.HasPrefix(rest, "body."):
		path := strings.TrimPrefix(rest, "body.")
		v, err := navigatePath(resp.Body, strings.Split(path, "."))
		if err != nil {
			return nil, &FieldNotFoundError{Path: path, Step: n}
		}
		return v, nil
	default:
		return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("unrecognized step field %q", rest)}
	}
}

// navigatePath walks v through a dotted path; numeric segments index
// arrays.
func navigatePath(v any, path []string) (any, error) {
	cur := v
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("path segment %q not found", seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("path segment %q is not a valid array index", seg)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into non-container at segment %q", seg)
		}
	}
	return cur, nil
}
