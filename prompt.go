package strand

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// RenderedPrompt is the output of a prompt's render step: the messages,
// config, and tools to generate with. Rendering itself (templating) is a
// black box supplied by the caller.
type RenderedPrompt struct {
	Messages []*Message
	Config   *GenerationConfig
	Tools    []Tool
	Output   *OutputConfig
}

// RenderFunc produces a RenderedPrompt from an arbitrary input value.
type RenderFunc func(ctx context.Context, input any) (*RenderedPrompt, error)

// ExecutablePrompt binds a render function to a model adapter. It can be
// executed directly, passed as a tool (AsTool), or delegated to as a nested
// agent (Chat.AgentTool).
type ExecutablePrompt struct {
	name        string
	description string
	adapter     ModelAdapter
	render      RenderFunc
}

// NewPrompt creates an executable prompt.
func NewPrompt(name, description string, adapter ModelAdapter, render RenderFunc) *ExecutablePrompt {
	return &ExecutablePrompt{name: name, description: description, adapter: adapter, render: render}
}

// Name returns the prompt name.
func (p *ExecutablePrompt) Name() string { return p.name }

// Description returns the prompt description, used as the tool description
// when the prompt is passed as a tool.
func (p *ExecutablePrompt) Description() string { return p.description }

// Render runs the prompt's render step.
func (p *ExecutablePrompt) Render(ctx context.Context, input any) (*RenderedPrompt, error) {
	if p.render == nil {
		return nil, fmt.Errorf("prompt %q has no render function", p.name)
	}
	rendered, err := p.render(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("render prompt %q: %w", p.name, err)
	}
	return rendered, nil
}

// Execute renders the prompt and runs the generation loop on the result.
func (p *ExecutablePrompt) Execute(ctx context.Context, input any, opts ...GenerateOption) (*ModelResponse, error) {
	rendered, err := p.Render(ctx, input)
	if err != nil {
		return nil, err
	}
	req := &ModelRequest{
		Messages: rendered.Messages,
		Config:   rendered.Config,
		Output:   rendered.Output,
	}
	opts = append([]GenerateOption{WithTools(rendered.Tools...)}, opts...)
	return Generate(ctx, p.adapter, req, opts...)
}

// AsTool converts the prompt into a callable tool: invoking it renders the
// prompt with the model-supplied input and runs its own generation, and the
// final text becomes the tool output.
func (p *ExecutablePrompt) AsTool() Tool {
	return &promptTool{prompt: p}
}

// promptTool adapts an ExecutablePrompt to the Tool interface. The input
// schema is an open object: the render step owns input interpretation.
type promptTool struct {
	prompt *ExecutablePrompt
}

func (t *promptTool) Name() string { return t.prompt.name }

func (t *promptTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.prompt.name,
		Description: t.prompt.description,
		InputSchema: &jsonschema.Schema{Type: "object"},
	}
}

func (t *promptTool) RunRaw(tc *ToolContext, input json.RawMessage) (any, error) {
	var in any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("prompt tool %q: decode input: %w", t.prompt.name, err)
		}
	}
	resp, err := t.prompt.Execute(tc.Context, in)
	if err != nil {
		return nil, err
	}
	return resp.Text(), nil
}
