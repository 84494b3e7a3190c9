package openaicompat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strandkit/strand"
)

// BuildBody converts a strand ModelRequest and a model name into an
// OpenAI-format ChatRequest. System messages are kept in the messages array
// as role:"system"; the model role maps to "assistant". Options configure
// generation parameters (temperature, top_p, etc.).
func BuildBody(req *strand.ModelRequest, model string, opts ...Option) ChatRequest {
	var msgs []Message
	for _, m := range req.Messages {
		msgs = append(msgs, buildMessages(m)...)
	}

	out := ChatRequest{
		Model:    model,
		Messages: msgs,
	}

	if len(req.Tools) > 0 {
		out.Tools = BuildToolDefs(req.Tools)
	}

	if cfg := req.Config; cfg != nil {
		out.Temperature = cfg.Temperature
		out.TopP = cfg.TopP
		out.MaxTokens = cfg.MaxOutputTokens
		out.Stop = cfg.StopSequences
	}

	// Structured output: enforce JSON matching the schema when one is set,
	// plain JSON mode otherwise.
	if o := req.Output; o != nil && o.Format == strand.OutputFormatJSON {
		if o.Schema != nil {
			raw, err := json.Marshal(o.Schema)
			if err == nil {
				name := o.Name
				if name == "" {
					name = "output"
				}
				out.ResponseFormat = &ResponseFormat{
					Type: "json_schema",
					JSONSchema: &JSONSchema{
						Name:   name,
						Schema: raw,
						Strict: true,
					},
				}
			}
		} else {
			out.ResponseFormat = &ResponseFormat{Type: "json_object"}
		}
	}

	for _, opt := range opts {
		opt(&out)
	}

	return out
}

// buildMessages converts one strand message into its OpenAI wire form. Tool
// messages fan out: the protocol wants one role:"tool" message per tool call
// id, while strand carries all results of a turn in a single message.
func buildMessages(m *strand.Message) []Message {
	switch m.Role {
	case strand.RoleSystem:
		return []Message{{Role: "system", Content: m.Text()}}

	case strand.RoleTool:
		var out []Message
		for _, p := range m.ToolResponseParts() {
			out = append(out, Message{
				Role:       "tool",
				Content:    toolOutputString(p.ToolResponse.Output),
				ToolCallID: p.ToolResponse.Ref,
				Name:       p.ToolResponse.Name,
			})
		}
		return out

	case strand.RoleModel:
		msg := Message{Role: "assistant"}
		for _, p := range m.Content {
			switch p.Kind {
			case strand.PartText:
				if s, ok := msg.Content.(string); ok {
					msg.Content = s + p.Text
				} else {
					msg.Content = p.Text
				}
			case strand.PartToolRequest:
				msg.ToolCalls = append(msg.ToolCalls, ToolCallRequest{
					ID:   p.ToolRequest.Ref,
					Type: "function",
					Function: FunctionCall{
						Name:      p.ToolRequest.Name,
						Arguments: argumentsString(p.ToolRequest.Input),
					},
				})
			}
			// Reasoning parts are never echoed back to the provider.
		}
		return []Message{msg}

	default: // user
		var blocks []ContentBlock
		var text strings.Builder
		hasMedia := false
		for _, p := range m.Content {
			switch p.Kind {
			case strand.PartText:
				text.WriteString(p.Text)
			case strand.PartMedia:
				hasMedia = true
			case strand.PartData:
				text.WriteString(string(p.Data))
			}
		}
		if !hasMedia {
			return []Message{{Role: "user", Content: text.String()}}
		}
		if text.Len() > 0 {
			blocks = append(blocks, ContentBlock{Type: "text", Text: text.String()})
		}
		for _, p := range m.Content {
			if p.Kind != strand.PartMedia {
				continue
			}
			if strings.HasPrefix(p.Media.ContentType, "image/") || p.Media.ContentType == "" {
				blocks = append(blocks, ContentBlock{Type: "image_url", ImageURL: &ImageURL{URL: p.Media.URL}})
			} else {
				blocks = append(blocks, ContentBlock{Type: "file", File: &FileData{URL: p.Media.URL}})
			}
		}
		return []Message{{Role: "user", Content: blocks}}
	}
}

// toolOutputString renders a tool response output for the wire. Strings pass
// through; everything else is marshaled to JSON.
func toolOutputString(out any) string {
	if s, ok := out.(string); ok {
		return s
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(raw)
}

// argumentsString renders tool call input for the wire arguments field.
func argumentsString(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	return string(input)
}

// BuildToolDefs converts strand ToolDefinitions to the OpenAI tool format.
func BuildToolDefs(tools []strand.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := json.RawMessage(`{}`)
		if t.InputSchema != nil {
			if raw, err := json.Marshal(t.InputSchema); err == nil {
				params = raw
			}
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
