package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolContext is passed to tool handlers. Session, tracing, and
// cancellation travel on the embedded Context.
type ToolContext struct {
	context.Context
	// Name is the tool name as requested by the model.
	Name string
	// Ref is the provider-issued correlation id for this request.
	Ref string
}

// Interrupt returns the error a handler must return to halt the generation
// loop and hand control back to the caller instead of completing the tool
// call. Use it as a non-local exit:
//
//	return out, tc.Interrupt(map[string]any{"reason": "needs approval"})
//
// The returned *ToolInterruptError is part of the public contract: the loop
// recognizes it with errors.As and treats it as a normal terminal outcome,
// not a failure.
func (tc *ToolContext) Interrupt(metadata map[string]any) error {
	return &ToolInterruptError{Metadata: metadata}
}

// ToolInterruptError signals a tool-initiated halt. It is not a failure;
// the in-flight response is returned to the caller with the interrupting
// request part marked with interrupt metadata.
type ToolInterruptError struct {
	Metadata map[string]any
}

func (e *ToolInterruptError) Error() string { return "tool execution interrupted" }

// Tool is a capability the model may invoke during generation.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	// RunRaw decodes input, validates it against the tool's input schema,
	// and invokes the handler.
	RunRaw(tc *ToolContext, input json.RawMessage) (any, error)
}

// toolFunc adapts a typed Go function into a Tool. The input schema is
// derived from In via reflection.
type toolFunc[In, Out any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	fn          func(*ToolContext, In) (Out, error)
}

// NewTool creates a Tool from a typed handler. The input JSON Schema is
// derived from In (jsonschema struct tags apply) and inputs are validated
// against it before the handler runs. Panics on schema derivation failure,
// which is a construction-time programming error.
func NewTool[In, Out any](name, description string, fn func(*ToolContext, In) (Out, error)) Tool {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("strand: derive input schema for tool %q: %v", name, err))
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("strand: resolve input schema for tool %q: %v", name, err))
	}
	return &toolFunc[In, Out]{
		name:        name,
		description: description,
		schema:      schema,
		resolved:    resolved,
		fn:          fn,
	}
}

func (t *toolFunc[In, Out]) Name() string { return t.name }

func (t *toolFunc[In, Out]) Definition() ToolDefinition {
	return ToolDefinition{Name: t.name, Description: t.description, InputSchema: t.schema}
}

func (t *toolFunc[In, Out]) RunRaw(tc *ToolContext, input json.RawMessage) (any, error) {
	var in In
	if len(input) > 0 && string(input) != "null" {
		var instance any
		if err := json.Unmarshal(input, &instance); err != nil {
			return nil, fmt.Errorf("tool %q: decode input: %w", t.name, err)
		}
		if err := t.resolved.Validate(instance); err != nil {
			return nil, fmt.Errorf("tool %q: invalid input: %w", t.name, err)
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("tool %q: decode input: %w", t.name, err)
		}
	}
	return t.fn(tc, in)
}

// toolMap indexes tools by name for exact-match lookup during resolution.
func toolMap(tools []Tool) map[string]Tool {
	if len(tools) == 0 {
		return nil
	}
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return m
}

// toolDefinitions returns the wire definitions for the given tools.
func toolDefinitions(tools []Tool) []ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition()
	}
	return defs
}

// resolveToolRequest looks up and invokes the tool named by a toolRequest
// part. Returns exactly one of:
//   - a toolResponse part carrying the handler's output (same name and ref),
//   - a *ToolInterruptError when the handler interrupted,
//   - an error: *ToolNotFoundError for unknown names (fatal, not retried)
//     or the handler's own failure, propagated unchanged.
func resolveToolRequest(ctx context.Context, tools map[string]Tool, p *Part) (*Part, *ToolInterruptError, error) {
	req := p.ToolRequest
	tool, ok := tools[req.Name]
	if !ok {
		return nil, nil, &ToolNotFoundError{Tool: req.Name}
	}
	tc := &ToolContext{Context: ctx, Name: req.Name, Ref: req.Ref}
	out, err := tool.RunRaw(tc, req.Input)
	if err != nil {
		var interrupt *ToolInterruptError
		if errors.As(err, &interrupt) {
			return nil, interrupt, nil
		}
		return nil, nil, err
	}
	return NewToolResponsePart(req.Name, req.Ref, out), nil, nil
}
