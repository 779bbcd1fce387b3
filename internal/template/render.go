package template

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lybpyn/yaak/internal/domain"
)

// Policy controls how a failed identifier/callback resolution is
// surfaced: Throw propagates the typed error; ReturnEmpty suppresses it
// to an empty string.
type Policy int

const (
	PolicyThrow Policy = iota
	PolicyReturnEmpty
)

// maxRenderDepth bounds self-referential re-expansion.
const maxRenderDepth = 50

// RenderStackExceededError is returned when a template expands more than
// maxRenderDepth times without stabilizing.
type RenderStackExceededError struct{}

func (e *RenderStackExceededError) Error() string {
	return fmt.Sprintf("template exceeded max render depth (%d)", maxRenderDepth)
}

// VariableNotFoundError reports a plain-identifier lookup miss.
type VariableNotFoundError struct{ Name string }

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable %q not found", e.Name)
}

// CallbackError wraps a failure from a registered callback function.
type CallbackError struct {
	Name string
	Err  error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %q failed: %v", e.Name, e.Err)
}
func (e *CallbackError) Unwrap() error { return e.Err }

// Callback is a registered function-call handler, invoked for tags of the
// form identifier(arg1=value, arg2=value, …).
type Callback func(args map[string]any) (any, error)

// tagPattern matches one ${[ expr ]} tag and captures its inner expr
// text.
var tagPattern = regexp.MustCompile(`\$\{\[(.*?)\]\}`)

// Renderer evaluates ${[ … ]} tags against a variable set, an optional
// WorkflowContext, and a registry of callbacks.
type Renderer struct {
	Variables *domain.VariableSet
	Workflow  *WorkflowContext
	Callbacks map[string]Callback
	Policy    Policy
}

// NewRenderer constructs a Renderer. workflow may be nil when no workflow
// context is in scope (e.g. rendering outside an execution).
func NewRenderer(vars *domain.VariableSet, workflow *WorkflowContext, callbacks map[string]Callback, policy Policy) *Renderer {
	if callbacks == nil {
		callbacks = map[string]Callback{}
	}
	return &Renderer{Variables: vars, Workflow: workflow, Callbacks: callbacks, Policy: policy}
}

// RenderString resolves every tag in text, re-expanding the result up to
// maxRenderDepth times to support self-referential variable chains.
func (r *Renderer) RenderString(text string) (string, error) {
	return r.renderDepth(text, 0)
}

func (r *Renderer) renderDepth(text string, depth int) (string, error) {
	if !tagPattern.MatchString(text) {
		return text, nil
	}
	if depth >= maxRenderDepth {
		return "", &RenderStackExceededError{}
	}

	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(text[last:m[0]])
		inner := strings.TrimSpace(text[m[2]:m[3]])
		val, err := r.evaluate(inner)
		if err != nil {
			if r.Policy == PolicyReturnEmpty {
				log.Debug().Str("expr", inner).Err(err).Msg("suppressing template error")
				val = ""
			} else {
				return "", err
			}
		}
		sb.WriteString(stringifyValue(val))
		last = m[1]
	}
	sb.WriteString(text[last:])

	return r.renderDepth(sb.String(), depth+1)
}

// RenderValue applies RenderString to every string found in v,
// recursing into maps and slices.
func (r *Renderer) RenderValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.RenderString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			rendered, err := r.RenderValue(sub)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			rendered, err := r.RenderValue(sub)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// evaluate resolves one tag's inner expr: a string (optionally b64)
// literal, a boolean/null literal, a function call, or an identifier.
func (r *Renderer) evaluate(inner string) (any, error) {
	switch {
	case inner == "true":
		return true, nil
	case inner == "false":
		return false, nil
	case inner == "null":
		return nil, nil
	case strings.HasPrefix(inner, "b64'") && strings.HasSuffix(inner, "'"):
		raw := inner[4 : len(inner)-1]
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("invalid base64 literal: %v", err)}
		}
		return string(decoded), nil
	case strings.HasPrefix(inner, "'") && strings.HasSuffix(inner, "'") && len(inner) >= 2:
		return inner[1 : len(inner)-1], nil
	}

	if name, argStr, ok := parseCall(inner); ok {
		return r.evaluateCall(name, argStr)
	}

	return r.resolveIdentifier(inner)
}

var callPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\((.*)\)$`)

func parseCall(inner string) (name, argStr string, ok bool) {
	m := callPattern.FindStringSubmatch(inner)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func (r *Renderer) evaluateCall(name, argStr string) (any, error) {
	cb, ok := r.Callbacks[name]
	if !ok {
		return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("unregistered callback %q", name)}
	}
	args, err := parseCallArgs(argStr)
	if err != nil {
		return nil, err
	}
	val, err := cb(args)
	if err != nil {
		return nil, &CallbackError{Name: name, Err: err}
	}
	return val, nil
}

// parseCallArgs parses "arg1=value1, arg2=value2" into a map. The grammar
// restricts values to literals, so a simple top-level comma split
// (arguments never nest parens or quoted commas in practice here) is
// sufficient.
func parseCallArgs(argStr string) (map[string]any, error) {
	args := map[string]any{}
	argStr = strings.TrimSpace(argStr)
	if argStr == "" {
		return args, nil
	}
	for _, part := range strings.Split(argStr, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("malformed callback argument %q", part)}
		}
		key := strings.TrimSpace(kv[0])
		valStr := strings.TrimSpace(kv[1])
		args[key] = parseLiteralValue(valStr)
	}
	return args, nil
}

func parseLiteralValue(s string) any {
	switch {
	case s == "true":
		return true
	case s == "false":
		return false
	case s == "null":
		return nil
	case strings.HasPrefix(s, "b64'") && strings.HasSuffix(s, "'"):
		decoded, err := base64.StdEncoding.DecodeString(s[4 : len(s)-1])
		if err != nil {
			return s
		}
		return string(decoded)
	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2:
		return s[1 : len(s)-1]
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// resolveIdentifier resolves a plain or workflow-extended identifier
// reference against the renderer's variable set / WorkflowContext.
func (r *Renderer) resolveIdentifier(identifier string) (any, error) {
	if IsWorkflowIdentifier(identifier) {
		if r.Workflow == nil {
			return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("%q referenced with no workflow context in scope", identifier)}
		}
		return ResolveWorkflowIdentifier(r.Workflow, identifier)
	}

	segs := strings.Split(identifier, ".")
	if _, ok := r.Variables.Get(segs[0]); !ok {
		return nil, &VariableNotFoundError{Name: segs[0]}
	}

	// Dotted/indexed access beyond the root variable is delegated to
	// expr-lang rather than hand-rolled, so `items[2].name`-style paths
	// get the same evaluation engine conditions use.
	env := r.Variables.All()
	program, err := compileExpr(identifier, env)
	if err != nil {
		return nil, &InvalidSyntaxError{Msg: fmt.Sprintf("invalid identifier expression %q: %v", identifier, err)}
	}
	v, err := runExpr(program, env)
	if err != nil {
		return nil, &VariableNotFoundError{Name: identifier}
	}
	return v, nil
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
