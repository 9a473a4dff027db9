// Package translate converts tool declarations between the caller's
// OpenAI shapes and the runtime's input_schema shape, and maps runtime
// tool calls back to caller-visible tool_calls records.
package translate

import (
	"encoding/json"
	"fmt"

	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

// Declaration is the shape-independent form of one declared tool. Both
// the nested "tools" shape and the legacy flat "functions" shape reduce
// to this.
type Declaration struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// RuntimeTool is a tool declaration in the runtime's wire shape.
type RuntimeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// permissiveSchema accepts any object input. Used when a caller schema
// contains constructs the runtime cannot express.
var permissiveSchema = json.RawMessage(`{"type":"object"}`)

// Normalize merges both declaration shapes into one name-keyed list,
// preserving declaration order. Duplicate names across or within shapes
// are rejected before anything reaches the runtime.
func Normalize(tools []oai.Tool, functions []oai.Function) ([]Declaration, error) {
	decls := make([]Declaration, 0, len(tools)+len(functions))
	seen := make(map[string]bool, len(tools)+len(functions))

	add := func(fn oai.Function) error {
		if fn.Name == "" {
			return types.NewError(types.KindValidation, "tool declared without a name")
		}
		if seen[fn.Name] {
			return types.NewError(types.KindValidation, "duplicate tool name %q", fn.Name)
		}
		seen[fn.Name] = true
		decls = append(decls, Declaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		})
		return nil
	}

	for _, t := range tools {
		if err := add(t.Function); err != nil {
			return nil, err
		}
	}
	for _, fn := range functions {
		if err := add(fn); err != nil {
			return nil, err
		}
	}
	return decls, nil
}

// Translator maps declared tool names to runtime schemas and back. A nil
// Translator behaves as "no tools declared".
type Translator struct {
	order []string
	decls map[string]Declaration
}

// NewTranslator builds a Translator over a normalized declaration list.
func NewTranslator(decls []Declaration) *Translator {
	tr := &Translator{decls: make(map[string]Declaration, len(decls))}
	for _, d := range decls {
		tr.order = append(tr.order, d.Name)
		tr.decls[d.Name] = d
	}
	return tr
}

// Empty reports whether no tools were declared.
func (tr *Translator) Empty() bool {
	return tr == nil || len(tr.order) == 0
}

// RuntimeTools returns the declarations in the runtime's shape, in the
// order they were declared.
func (tr *Translator) RuntimeTools() []RuntimeTool {
	if tr.Empty() {
		return nil
	}
	out := make([]RuntimeTool, 0, len(tr.order))
	for _, name := range tr.order {
		d := tr.decls[name]
		out = append(out, RuntimeTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: sanitizeSchema(d.Parameters),
		})
	}
	return out
}

// TranslateCall maps a runtime tool call back to the caller's tool_calls
// shape. A call naming an undeclared tool reports unknown_tool; the
// assembler turns that into a synthesized error result rather than
// forwarding or dropping the call.
func (tr *Translator) TranslateCall(name string, args json.RawMessage) (oai.ToolCall, error) {
	if tr == nil || tr.decls[name].Name == "" {
		return oai.ToolCall{}, types.NewError(types.KindUnknownTool, "runtime called undeclared tool %q", name)
	}
	arguments := "{}"
	if len(args) > 0 {
		arguments = string(args)
	}
	return oai.ToolCall{
		ID:   string(types.NewToolCallID()),
		Type: "function",
		Function: oai.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}, nil
}

// UnknownToolResult synthesizes the error result recorded when the
// runtime calls a tool the caller never declared.
func UnknownToolResult(name string) types.ToolResult {
	return types.ToolResult{
		CallID:  string(types.NewToolCallID()),
		Name:    name,
		Content: fmt.Sprintf("error: unknown tool %q", name),
		Error:   true,
	}
}

// schemaFields are the JSON Schema keywords carried through to the
// runtime. Anything else is dropped field by field.
var schemaFields = []string{"type", "description", "properties", "required", "items", "enum"}

// unsupportedFields force the whole subtree down to the permissive
// schema, since the runtime has no equivalent construct.
var unsupportedFields = []string{"oneOf", "anyOf", "allOf", "not"}

// sanitizeSchema converts a caller parameter schema to the runtime's
// schema dialect. Missing or malformed schemas and unsupported constructs
// flatten to a permissive object schema instead of failing the request.
func sanitizeSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return permissiveSchema
	}

	var node map[string]json.RawMessage
	if err := json.Unmarshal(schema, &node); err != nil {
		return permissiveSchema
	}

	for _, field := range unsupportedFields {
		if _, ok := node[field]; ok {
			return permissiveSchema
		}
	}

	out := make(map[string]json.RawMessage, len(node))
	for _, field := range schemaFields {
		raw, ok := node[field]
		if !ok {
			continue
		}
		switch field {
		case "properties":
			out[field] = sanitizeProperties(raw)
		case "items":
			out[field] = sanitizeSchema(raw)
		default:
			out[field] = raw
		}
	}

	if _, ok := out["type"]; !ok {
		out["type"] = json.RawMessage(`"object"`)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return permissiveSchema
	}
	return data
}

// sanitizeProperties recurses into each property schema.
func sanitizeProperties(raw json.RawMessage) json.RawMessage {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(raw, &props); err != nil {
		return json.RawMessage(`{}`)
	}
	out := make(map[string]json.RawMessage, len(props))
	for name, sub := range props {
		out[name] = sanitizeSchema(sub)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
