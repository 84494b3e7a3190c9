package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/strandkit/strand"
)

// StreamSSE reads an SSE stream from body, forwards text and reasoning deltas
// to cb as model-role chunks, and returns the fully accumulated response
// (content + tool calls + usage + finish reason). cb may be nil, in which
// case the stream is consumed and only the final response is returned.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, cb strand.StreamCallback) (*strand.ModelResponse, error) {
	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var fullContent, fullReasoning strings.Builder
	var usage strand.Usage
	finish := strand.FinishReasonUnknown
	index := 0

	// Accumulate tool calls across chunks. OpenAI streams tool calls
	// incrementally: each chunk has an index, and arguments arrive as string fragments.
	type partialToolCall struct {
		ID   string
		Name string
		Args strings.Builder
	}
	var toolCalls []*partialToolCall

	emit := func(p *strand.Part) error {
		if cb == nil {
			return nil
		}
		chunk := &strand.ModelResponseChunk{
			Index:   index,
			Role:    strand.RoleModel,
			Content: []*strand.Part{p},
		}
		index++
		return cb(ctx, chunk)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()

		// SSE lines that carry data start with "data: ".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk ChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		// Extract usage from chunks that include it (some providers send a
		// final usage-only chunk with no choices).
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finish = ParseFinishReason(choice.FinishReason)
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}

		if delta.ReasoningContent != "" {
			fullReasoning.WriteString(delta.ReasoningContent)
			if err := emit(strand.NewReasoningPart(delta.ReasoningContent)); err != nil {
				return nil, err
			}
		}
		if delta.Content != "" {
			fullContent.WriteString(delta.Content)
			if err := emit(strand.NewTextPart(delta.Content)); err != nil {
				return nil, err
			}
		}

		// Accumulate tool calls.
		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, &partialToolCall{})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args.WriteString(tc.Function.Arguments)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Build the final message from everything accumulated.
	var parts []*strand.Part
	if fullReasoning.Len() > 0 {
		parts = append(parts, strand.NewReasoningPart(fullReasoning.String()))
	}
	if fullContent.Len() > 0 {
		parts = append(parts, strand.NewTextPart(fullContent.String()))
	}
	for _, tc := range toolCalls {
		args := json.RawMessage(tc.Args.String())
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		parts = append(parts, strand.NewToolRequestPart(tc.Name, tc.ID, args))
	}

	resp := &strand.ModelResponse{FinishReason: finish, Usage: usage}
	if len(parts) > 0 {
		resp.Message = &strand.Message{Role: strand.RoleModel, Content: parts}
	}
	return resp, nil
}
