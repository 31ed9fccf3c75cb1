// Package skill implements the skill router and skill executor: the
// intent classifier, the steps/agent execution modes, the
// restricted template-variable language, and the tool dispatch layer that
// binds to the remote tool invoker (internal/remotetool) and the retrieval
// service (internal/retrieval) for kb_search.
package skill

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mindatlas/backend/internal/model"
)

// maxFieldLen caps each rendered variable to bound prompt size.
const maxFieldLen = 8000

// NodeKind distinguishes the two AST node types a template parses into.
type NodeKind int

const (
	NodeLiteral NodeKind = iota
	NodeVar
)

// Node is one piece of a parsed template: either literal text or a
// variable reference.
type Node struct {
	Kind NodeKind
	Text string // literal text, or the variable name for NodeVar
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Parse tokenizes tpl into a Literal/Var node sequence without evaluating
// or validating variable names.
func Parse(tpl string) []Node {
	var nodes []Node
	last := 0
	for _, loc := range varPattern.FindAllStringSubmatchIndex(tpl, -1) {
		if loc[0] > last {
			nodes = append(nodes, Node{Kind: NodeLiteral, Text: tpl[last:loc[0]]})
		}
		name := tpl[loc[2]:loc[3]]
		nodes = append(nodes, Node{Kind: NodeVar, Text: name})
		last = loc[1]
	}
	if last < len(tpl) {
		nodes = append(nodes, Node{Kind: NodeLiteral, Text: tpl[last:]})
	}
	return nodes
}

// VarKind classifies a variable name against the whitelist: user_input,
// history, last_step_result, last_step_result_raw, stepN_result,
// stepN_result_raw, stepN_<field>.
type VarKind int

const (
	VarUnknown VarKind = iota
	VarUserInput
	VarHistory
	VarLastStepResult
	VarLastStepResultRaw
	VarStepResult
	VarStepResultRaw
	VarStepField
)

// ParsedVar is a variable name decomposed into its kind plus, for
// step-scoped variables, the referenced step index and (for VarStepField)
// field name.
type ParsedVar struct {
	Kind  VarKind
	Step  int
	Field string
}

var stepVarPattern = regexp.MustCompile(`^step(\d+)_(result_raw|result|[a-zA-Z_][a-zA-Z0-9_]*)$`)

// ParseVarName classifies a raw variable name. Unknown names return
// VarUnknown, not an error — callers decide whether that's fatal.
func ParseVarName(name string) ParsedVar {
	switch name {
	case "user_input":
		return ParsedVar{Kind: VarUserInput}
	case "history":
		return ParsedVar{Kind: VarHistory}
	case "last_step_result":
		return ParsedVar{Kind: VarLastStepResult}
	case "last_step_result_raw":
		return ParsedVar{Kind: VarLastStepResultRaw}
	}
	if m := stepVarPattern.FindStringSubmatch(name); m != nil {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return ParsedVar{Kind: VarUnknown}
		}
		switch m[2] {
		case "result":
			return ParsedVar{Kind: VarStepResult, Step: idx}
		case "result_raw":
			return ParsedVar{Kind: VarStepResultRaw, Step: idx}
		default:
			return ParsedVar{Kind: VarStepField, Step: idx, Field: m[2]}
		}
	}
	return ParsedVar{Kind: VarUnknown}
}

// ValidateOpts scopes what a template may reference.
type ValidateOpts struct {
	// IsAnalysis forbids user_input/history and restricts step references
	// to STRICTLY prior steps.
	IsAnalysis bool
	// CurrentStep is the 1-based step_order of the step being rendered.
	CurrentStep int
	// AllowedFields maps a prior step's order to the json field names it
	// exposed (only populated for output_mode=json steps).
	AllowedFields map[int]map[string]bool
	// JSONSteps marks which step indices ran with output_mode=json; a
	// stepN_<field> reference to a non-json step is always a hard error.
	JSONSteps map[int]bool
}

// Validate rejects any node whose variable reference is unknown,
// out-of-scope for the current step, or (for analysis instructions)
// disallowed outright.
func Validate(nodes []Node, opts ValidateOpts) error {
	for _, n := range nodes {
		if n.Kind != NodeVar {
			continue
		}
		pv := ParseVarName(n.Text)
		if err := validateOne(n.Text, pv, opts); err != nil {
			return err
		}
	}
	return nil
}

func validateOne(raw string, pv ParsedVar, opts ValidateOpts) error {
	switch pv.Kind {
	case VarUnknown:
		return model.NewValidationError("template", fmt.Sprintf("unknown or disallowed variable %q", raw))
	case VarUserInput, VarHistory:
		if opts.IsAnalysis {
			return model.NewValidationError("template", fmt.Sprintf("analysis instructions may not reference %q", raw))
		}
		return nil
	case VarLastStepResult, VarLastStepResultRaw:
		if opts.CurrentStep <= 1 {
			return model.NewValidationError("template", fmt.Sprintf("%q has no prior step to reference", raw))
		}
		return nil
	case VarStepResult, VarStepResultRaw:
		return validateStepRef(raw, pv.Step, opts)
	case VarStepField:
		if err := validateStepRef(raw, pv.Step, opts); err != nil {
			return err
		}
		if !opts.JSONSteps[pv.Step] {
			return model.NewValidationError("template", fmt.Sprintf("%q references a non-json step field", raw))
		}
		if opts.AllowedFields != nil {
			allowed := opts.AllowedFields[pv.Step]
			if allowed != nil && !allowed[pv.Field] {
				return model.NewValidationError("template", fmt.Sprintf("%q is not in step %d's allowed output fields", raw, pv.Step))
			}
		}
		return nil
	}
	return nil
}

func validateStepRef(raw string, step int, opts ValidateOpts) error {
	if opts.IsAnalysis && step >= opts.CurrentStep {
		return model.NewValidationError("template", fmt.Sprintf("%q must reference a strictly prior step", raw))
	}
	if !opts.IsAnalysis && step >= opts.CurrentStep {
		return model.NewValidationError("template", fmt.Sprintf("%q references a step that has not run yet", raw))
	}
	return nil
}

// Lookup resolves a variable name to its rendered string value. Returns
// ok=false for anything the context doesn't have (Validate should already
// have rejected unresolvable references before Render is called).
type Lookup func(name string) (string, bool)

// RenderText substitutes every Var node via lookup, capping each
// substituted value to maxFieldLen. When jsonEscape is set, values are
// JSON-string-escaped so the template can sit inside quoted JSON positions.
func RenderText(nodes []Node, lookup Lookup, jsonEscape bool) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		if n.Kind == NodeLiteral {
			b.WriteString(n.Text)
			continue
		}
		val, ok := lookup(n.Text)
		if !ok {
			return "", model.NewValidationError("template", fmt.Sprintf("no value available for %q", n.Text))
		}
		if len(val) > maxFieldLen {
			val = val[:maxFieldLen]
		}
		if jsonEscape {
			esc, err := json.Marshal(val)
			if err != nil {
				return "", err
			}
			b.WriteString(string(esc[1 : len(esc)-1]))
		} else {
			b.WriteString(val)
		}
	}
	return b.String(), nil
}

// RenderJSONObject renders tpl (a JSON document with {{var}} placeholders
// in quoted positions) and requires the result to parse as a JSON object.
func RenderJSONObject(nodes []Node, lookup Lookup) (map[string]any, error) {
	rendered, err := RenderText(nodes, lookup, true)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(rendered), &obj); err != nil || obj == nil {
		return nil, model.NewValidationError("args_template", "rendered template is not a JSON object")
	}
	return obj, nil
}

// FilterFields keeps only the keys named in allowed (when allowed is
// non-empty); used for analysis output_fields (tool-schema argument
// filtering is done by filterBySchema).
func FilterFields(m map[string]any, allowed []string) map[string]any {
	if len(allowed) == 0 {
		return m
	}
	set := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		set[f] = true
	}
	out := make(map[string]any, len(allowed))
	for k, v := range m {
		if set[k] {
			out[k] = v
		}
	}
	return out
}

// StripCodeFences removes a leading/trailing ```json or ``` fence so a
// model's fenced JSON reply can be parsed directly.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```JSON")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
