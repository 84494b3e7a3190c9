package openaicompat

import (
	"encoding/json"

	"github.com/strandkit/strand"
)

// ParseResponse converts an OpenAI-format ChatResponse to a strand
// ModelResponse, reading choices[0]. A response with no choices yields a nil
// Message and an unknown finish reason; the generation loop treats that as a
// degenerate terminal turn.
func ParseResponse(resp ChatResponse) (*strand.ModelResponse, error) {
	out := &strand.ModelResponse{FinishReason: strand.FinishReasonUnknown}

	if resp.Usage != nil {
		out.Usage = strand.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	out.FinishReason = ParseFinishReason(choice.FinishReason)
	if choice.Message != nil {
		out.Message = parseMessage(choice.Message)
	}
	return out, nil
}

// parseMessage builds a model-role message from a choice message: reasoning
// first, then text, then tool requests, mirroring the order reasoning models
// produce them.
func parseMessage(cm *ChoiceMessage) *strand.Message {
	var parts []*strand.Part
	if cm.ReasoningContent != "" {
		parts = append(parts, strand.NewReasoningPart(cm.ReasoningContent))
	}
	if cm.Content != "" {
		parts = append(parts, strand.NewTextPart(cm.Content))
	}
	parts = append(parts, ParseToolCalls(cm.ToolCalls)...)
	return &strand.Message{Role: strand.RoleModel, Content: parts}
}

// ParseFinishReason maps an OpenAI finish_reason string onto the strand
// taxonomy. tool_calls maps to stop: the turn ended normally and the loop
// decides what happens next from the message content.
func ParseFinishReason(s string) strand.FinishReason {
	switch s {
	case "stop", "tool_calls", "function_call":
		return strand.FinishReasonStop
	case "length":
		return strand.FinishReasonLength
	case "content_filter":
		return strand.FinishReasonBlocked
	case "":
		return strand.FinishReasonUnknown
	default:
		return strand.FinishReasonOther
	}
}

// ParseToolCalls converts OpenAI tool call requests to toolRequest parts.
// OpenAI returns function.arguments as a JSON string; invalid fragments are
// replaced with an empty object rather than failing the whole turn.
func ParseToolCalls(tcs []ToolCallRequest) []*strand.Part {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]*strand.Part, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, strand.NewToolRequestPart(tc.Function.Name, tc.ID, args))
	}
	return out
}
