package toolbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes a tool with decoded, alias-canonicalized, validated
// arguments. The per-request user identifier is available via
// UserFromContext. Returning an error never fails the request: the
// Executor classifies it and feeds a structured result back to the model.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Param declares one tool parameter. The declaration is the single source
// of truth: the schema advertised to the model and the validation applied
// to incoming arguments are both derived from it, so they cannot drift.
type Param struct {
	Name        string
	Type        string // JSON Schema type: "string", "integer", "number", "boolean", "array", "object"
	Description string
	Required    bool
	// Aliases are alternative argument names models commonly produce
	// (e.g. "document_id", "doc_id", "uuid" for "id"). They are folded
	// into Name before validation and are not advertised in the schema.
	Aliases []string
	Enum    []string
	// Example is the value shown in corrective error messages.
	Example string
}

// ToolDef declares one executable tool.
type ToolDef struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
	// Timeout overrides the executor's default execution timeout when > 0.
	Timeout time.Duration
}

// Definition is the schema descriptor advertised to the model backend for
// one registered tool. It is produced from the same compiled declaration
// the Executor validates against.
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// registeredTool is a ToolDef compiled at registration time.
type registeredTool struct {
	def      ToolDef
	schema   map[string]any
	resolved *jsonschema.Resolved
	aliases  map[string]string // alias -> canonical name
	example  string            // rendered usage example for error messages
}

// compileTool validates a declaration and derives its schema, validator,
// alias index, and usage example.
func compileTool(def ToolDef) (*registeredTool, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("tool name must not be empty")
	}
	if def.Handler == nil {
		return nil, fmt.Errorf("tool %q: handler must not be nil", def.Name)
	}
	aliases := make(map[string]string)
	for _, p := range def.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("tool %q: parameter name must not be empty", def.Name)
		}
		for _, a := range p.Aliases {
			if prev, dup := aliases[a]; dup && prev != p.Name {
				return nil, fmt.Errorf("tool %q: alias %q claimed by both %q and %q", def.Name, a, prev, p.Name)
			}
			aliases[a] = p.Name
		}
	}
	schema := buildParamSchema(def.Params)
	resolved, err := compileRawSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %q: compile schema: %w", def.Name, err)
	}
	return &registeredTool{
		def:      def,
		schema:   schema,
		resolved: resolved,
		aliases:  aliases,
		example:  renderUsageExample(def.Params),
	}, nil
}

// buildParamSchema produces the JSON Schema object for a parameter list.
func buildParamSchema(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	var required []any
	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// renderUsageExample builds a concrete call example like {"query":"golang"}
// shown to the model in corrective error messages.
func renderUsageExample(params []Param) string {
	example := make(map[string]any, len(params))
	for _, p := range params {
		if !p.Required {
			continue
		}
		example[p.Name] = exampleValue(p)
	}
	if len(example) == 0 {
		return "{}"
	}
	b, err := json.Marshal(example)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func exampleValue(p Param) any {
	if p.Example != "" {
		return p.Example
	}
	if len(p.Enum) > 0 {
		return p.Enum[0]
	}
	switch p.Type {
	case "integer":
		return 1
	case "number":
		return 1.5
	case "boolean":
		return true
	case "array":
		return []any{"value"}
	case "object":
		return map[string]any{}
	default:
		return "value"
	}
}

// compileRawSchema compiles a raw JSON Schema map into a resolved validator.
// The map is not mutated.
func compileRawSchema(schemaMap map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

// validateAgainstSchema runs the compiled-schema guard on already-parsed
// arguments. Violations come back as ClientError so the message can be
// passed to the model for self-correction.
func validateAgainstSchema(resolved *jsonschema.Resolved, v any) error {
	if err := resolved.Validate(v); err != nil {
		return &ClientError{Kind: ErrKindInvalidArguments, Reason: err.Error(), Err: ErrValidation}
	}
	return nil
}
