package skill

import (
	"context"
	"encoding/json"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/remotetool"
)

// KBSearchTool is the internal-only tool name: never advertised to the
// model, never storable as a user-configurable AssistantTool row, but
// always resolvable by the executor.
const KBSearchTool = "kb_search"

// LocalToolFunc is a built-in tool's Go implementation.
type LocalToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// ResolvedTool is what the step/agent executors actually call, after the
// registry has layered DB overrides onto the compile-time local catalogue.
type ResolvedTool struct {
	Name        string
	Description string
	Schema      map[string]any
	Call        LocalToolFunc
}

// Registry layers operator-configured remote tools (from the DB) onto a
// compile-time catalogue of local Go functions. kb_search is reserved: it
// is never present in the DB catalogue and is always resolvable directly.
type Registry struct {
	local   map[string]LocalToolFunc
	descs   map[string]string
	schemas map[string]map[string]any

	kbSearch LocalToolFunc
	invoker  *remotetool.Invoker
}

func NewRegistry(invoker *remotetool.Invoker) *Registry {
	return &Registry{
		local:   make(map[string]LocalToolFunc),
		descs:   make(map[string]string),
		schemas: make(map[string]map[string]any),
		invoker: invoker,
	}
}

// RegisterLocal adds a built-in tool to the compile-time catalogue.
func (r *Registry) RegisterLocal(name, description string, schema map[string]any, fn LocalToolFunc) {
	r.local[name] = fn
	r.descs[name] = description
	r.schemas[name] = schema
}

// RegisterKBSearch wires the reserved kb_search tool.
func (r *Registry) RegisterKBSearch(fn LocalToolFunc) { r.kbSearch = fn }

// Resolve maps a tool_name to a callable ResolvedTool. A DB row for the
// same name wins: a remote row becomes an SSRF-guarded HTTP call, and a
// disabled DB row hides the tool entirely (including a same-named local
// tool), per the registry's override semantics.
func (r *Registry) Resolve(name string, dbTools map[string]model.AssistantTool) (ResolvedTool, bool) {
	if name == KBSearchTool {
		if r.kbSearch == nil {
			return ResolvedTool{}, false
		}
		return ResolvedTool{Name: name, Description: "internal knowledge-base search", Call: r.kbSearch}, true
	}

	if dt, ok := dbTools[name]; ok {
		if !dt.Enabled {
			return ResolvedTool{}, false
		}
		if dt.Kind == model.ToolKindRemote && dt.Remote != nil {
			cfg := *dt.Remote
			return ResolvedTool{
				Name:        name,
				Description: dt.Description,
				Call: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					raw, err := r.invoker.Invoke(ctx, cfg, args)
					if err != nil {
						return nil, err
					}
					return decodeToolResult(raw)
				},
			}, true
		}
	}

	if fn, ok := r.local[name]; ok {
		return ResolvedTool{Name: name, Description: r.descs[name], Schema: r.schemas[name], Call: fn}, true
	}
	return ResolvedTool{}, false
}

// VisibleNames lists the tool names a skill/agent may advertise to the
// model: its bound tool list, filtered to what actually resolves, with
// kb_search always excluded from advertisement.
func (r *Registry) VisibleNames(skillTools []string, dbTools map[string]model.AssistantTool) []string {
	var out []string
	for _, name := range skillTools {
		if name == KBSearchTool {
			continue
		}
		if _, ok := r.Resolve(name, dbTools); ok {
			out = append(out, name)
		}
	}
	return out
}

func decodeToolResult(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m, nil
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return map[string]any{"result": arr}, nil
	}
	return map[string]any{"raw": string(raw)}, nil
}

// IndexToolsByName is a small helper the executor wiring uses to turn the
// AssistantRepo's tool list into the map Resolve expects.
func IndexToolsByName(tools []model.AssistantTool) map[string]model.AssistantTool {
	out := make(map[string]model.AssistantTool, len(tools))
	for _, t := range tools {
		out[t.Name] = t
	}
	return out
}
