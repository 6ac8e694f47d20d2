// Package agent implements the §4.J agent/tool layer: a fixed set of tools,
// each advertising a JSON-schema input description and validated before its
// handler runs. Handlers read only the read-only views named in §9's
// cyclic-ownership note (the metadata store, the analytics reader, the
// health registry) and never the chat orchestrator.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Spec describes one tool for advertisement over both the chat
// orchestrator's tool dispatch and the MCP tools/list method.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]any // a JSON Schema object
}

// Tool is one advertised capability.
type Tool interface {
	Describe() Spec
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry holds the fixed tool set and validates arguments against each
// tool's declared schema before invoking it.
type Registry struct {
	tools   map[string]Tool
	order   []string
	schemas map[string]*jsonschema.Schema
}

// NewRegistry builds a registry and pre-compiles every tool's input schema,
// so a malformed Parameters map fails at startup rather than on first call.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		spec := t.Describe()
		if _, exists := r.tools[spec.Name]; exists {
			return nil, fmt.Errorf("agent: duplicate tool name %q", spec.Name)
		}
		schema, err := compileSchema(spec.Name, spec.Parameters)
		if err != nil {
			return nil, err
		}
		r.tools[spec.Name] = t
		r.order = append(r.order, spec.Name)
		r.schemas[spec.Name] = schema
	}
	return r, nil
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, params); err != nil {
		return nil, fmt.Errorf("agent: add schema resource for %q: %w", name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("agent: compile schema for %q: %w", name, err)
	}
	return schema, nil
}

// Specs returns every registered tool's Spec, in registration order, for
// tools/list and for the chat orchestrator's tool-set advertisement to a
// provider.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Describe())
	}
	return out
}

// Call validates args against the named tool's schema then invokes it.
// Unknown tool names and schema violations are both reported as plain
// errors; the caller (chat orchestrator or MCP transport) maps them to the
// surface-appropriate error shape.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("agent: unknown tool %q", name)
	}

	var doc any
	if len(args) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(args, &doc); err != nil {
		return nil, fmt.Errorf("agent: invalid arguments for %q: %w", name, err)
	}
	if err := r.schemas[name].Validate(doc); err != nil {
		return nil, fmt.Errorf("agent: arguments for %q failed schema validation: %w", name, err)
	}

	return tool.Execute(ctx, args)
}
