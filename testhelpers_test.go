package strand

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// mockAdapter is a scripted ModelAdapter: each Generate call pops the next
// response and records the request it was given. When chunks are scripted
// for a call, they are forwarded to the stream callback before returning.
type mockAdapter struct {
	name      string
	responses []*ModelResponse
	chunks    [][]*ModelResponseChunk
	err       error

	mu       sync.Mutex
	calls    int
	requests []*ModelRequest
}

func (m *mockAdapter) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockAdapter) Generate(ctx context.Context, req *ModelRequest, cb StreamCallback) (*ModelResponse, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if cb != nil && i < len(m.chunks) {
		for _, chunk := range m.chunks[i] {
			if err := cb(ctx, chunk); err != nil {
				return nil, err
			}
		}
	}
	if i >= len(m.responses) {
		return &ModelResponse{Message: NewModelTextMessage("exhausted"), FinishReason: FinishReasonStop}, nil
	}
	return m.responses[i], nil
}

// callCount returns how many times Generate ran.
func (m *mockAdapter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// request returns the i-th recorded request.
func (m *mockAdapter) request(i int) *ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

// echoAdapter answers every request with "Echo: <user text>; config: <json>",
// making it easy to assert what the loop actually sent.
type echoAdapter struct{}

func (echoAdapter) Name() string { return "echo" }

func (echoAdapter) Generate(ctx context.Context, req *ModelRequest, cb StreamCallback) (*ModelResponse, error) {
	var b strings.Builder
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			b.WriteString(m.Text())
		}
	}
	cfg := "{}"
	if req.Config != nil {
		raw, err := json.Marshal(req.Config)
		if err != nil {
			return nil, err
		}
		cfg = string(raw)
	}
	text := "Echo: " + b.String() + "; config: " + cfg
	if cb != nil {
		chunk := &ModelResponseChunk{Role: RoleModel, Content: []*Part{NewTextPart(text)}}
		if err := cb(ctx, chunk); err != nil {
			return nil, err
		}
	}
	return &ModelResponse{
		Message:      NewModelTextMessage(text),
		FinishReason: FinishReasonStop,
		Usage:        Usage{InputTokens: 1, OutputTokens: 1},
	}, nil
}

// textResponse builds a terminal text response.
func textResponse(text string) *ModelResponse {
	return &ModelResponse{
		Message:      NewModelTextMessage(text),
		FinishReason: FinishReasonStop,
		Usage:        Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// toolCallResponse builds a model turn requesting the given tool calls.
func toolCallResponse(calls ...*Part) *ModelResponse {
	return &ModelResponse{
		Message:      &Message{Role: RoleModel, Content: calls},
		FinishReason: FinishReasonStop,
		Usage:        Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// noArgs is an input type for tools that take no meaningful arguments.
type noArgs struct{}

// namedTool returns a tool that records invocations and replies with a fixed
// output.
func namedTool(name, output string, invoked *int) Tool {
	return NewTool(name, "test tool", func(_ *ToolContext, _ noArgs) (string, error) {
		if invoked != nil {
			*invoked++
		}
		return output, nil
	})
}
