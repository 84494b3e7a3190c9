package strand

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestGenerateSimpleText(t *testing.T) {
	resp, err := Generate(context.Background(), echoAdapter{}, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := resp.Text(), "Echo: hi; config: {}"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	if resp.FinishReason != FinishReasonStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, FinishReasonStop)
	}
}

func TestGenerateConfigPassthrough(t *testing.T) {
	temp := 0.7
	resp, err := Generate(context.Background(), echoAdapter{}, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("hi")},
		Config:   &GenerationConfig{Temperature: &temp},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text(), `"temperature":0.7`) {
		t.Errorf("config not forwarded to adapter: %q", resp.Text())
	}
}

func TestGenerateToolLoop(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("lookup", "call-1", json.RawMessage(`{}`))),
		textResponse("done"),
	}}
	var invoked int
	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(namedTool("lookup", "tool called", &invoked)))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "done" {
		t.Errorf("Text() = %q, want %q", resp.Text(), "done")
	}
	if invoked != 1 {
		t.Errorf("tool invoked %d times, want 1", invoked)
	}
	if adapter.callCount() != 2 {
		t.Fatalf("adapter called %d times, want 2", adapter.callCount())
	}

	// Second invocation must see the model's tool request turn followed by
	// one tool message carrying the response part with matching name and ref.
	second := adapter.request(1)
	if len(second.Messages) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(second.Messages))
	}
	toolMsg := second.Messages[2]
	if toolMsg.Role != RoleTool {
		t.Fatalf("final message role = %q, want %q", toolMsg.Role, RoleTool)
	}
	parts := toolMsg.ToolResponseParts()
	if len(parts) != 1 {
		t.Fatalf("tool message has %d response parts, want 1", len(parts))
	}
	tr := parts[0].ToolResponse
	if tr.Name != "lookup" || tr.Ref != "call-1" {
		t.Errorf("tool response name/ref = %q/%q, want lookup/call-1", tr.Name, tr.Ref)
	}
	if tr.Output != "tool called" {
		t.Errorf("tool response output = %v, want %q", tr.Output, "tool called")
	}
}

func TestGenerateMultipleToolsInOrder(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(
			NewToolRequestPart("first", "c1", json.RawMessage(`{}`)),
			NewToolRequestPart("second", "c2", json.RawMessage(`{}`)),
		),
		textResponse("done"),
	}}

	var order []string
	mk := func(name string) Tool {
		return NewTool(name, "ordered", func(_ *ToolContext, _ noArgs) (string, error) {
			order = append(order, name)
			return name + " out", nil
		})
	}

	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(mk("first"), mk("second")))
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("execution order = %v, want [first second]", order)
	}

	// Responses are folded back in request order.
	parts := adapter.request(1).Messages[2].ToolResponseParts()
	if len(parts) != 2 || parts[0].ToolResponse.Ref != "c1" || parts[1].ToolResponse.Ref != "c2" {
		t.Errorf("response parts out of order: %+v", parts)
	}
}

func TestGenerateMaxTurnsExceeded(t *testing.T) {
	// Every turn requests another tool call, so turn cap 2 permits exactly
	// two invocations before failing.
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("loop", "c1", json.RawMessage(`{}`))),
		toolCallResponse(NewToolRequestPart("loop", "c2", json.RawMessage(`{}`))),
		toolCallResponse(NewToolRequestPart("loop", "c3", json.RawMessage(`{}`))),
	}}
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(namedTool("loop", "again", nil)), WithMaxTurns(2))

	var mte *MaxTurnsError
	if !errors.As(err, &mte) {
		t.Fatalf("err = %v, want MaxTurnsError", err)
	}
	if mte.Limit != 2 {
		t.Errorf("Limit = %d, want 2", mte.Limit)
	}
	if adapter.callCount() != 2 {
		t.Errorf("adapter called %d times, want 2", adapter.callCount())
	}
}

func TestGenerateMaxTurnsBoundary(t *testing.T) {
	// One tool turn plus the terminal turn fits exactly in a cap of 2.
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("loop", "c1", json.RawMessage(`{}`))),
		textResponse("done"),
	}}
	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(namedTool("loop", "out", nil)), WithMaxTurns(2))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "done" {
		t.Errorf("Text() = %q, want %q", resp.Text(), "done")
	}
}

func TestGenerateToolNotFound(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("missing", "c1", json.RawMessage(`{}`))),
	}}
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(namedTool("present", "out", nil)))

	var tnf *ToolNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("err = %v, want ToolNotFoundError", err)
	}
	if tnf.Tool != "missing" {
		t.Errorf("Tool = %q, want %q", tnf.Tool, "missing")
	}
}

func TestGenerateToolErrorPropagates(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("fail", "c1", json.RawMessage(`{}`))),
	}}
	boom := errors.New("tool broken")
	failing := NewTool("fail", "always fails", func(_ *ToolContext, _ noArgs) (string, error) {
		return "", boom
	})
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(failing))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestGenerateInterrupt(t *testing.T) {
	reqParts := []*Part{
		NewToolRequestPart("resolver", "c1", json.RawMessage(`{}`)),
		NewToolRequestPart("approver", "c2", json.RawMessage(`{}`)),
	}
	adapter := &mockAdapter{responses: []*ModelResponse{toolCallResponse(reqParts...)}}

	resolver := namedTool("resolver", "resolved value", nil)
	approver := NewTool("approver", "needs approval", func(tc *ToolContext, _ noArgs) (string, error) {
		return "", tc.Interrupt(map[string]any{"reason": "needs approval"})
	})

	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(resolver, approver))
	if err != nil {
		t.Fatal(err)
	}
	if adapter.callCount() != 1 {
		t.Errorf("adapter called %d times after interrupt, want 1", adapter.callCount())
	}

	// The interrupting request carries the interrupt metadata; the request
	// that did resolve keeps its output as pendingOutput.
	md, ok := reqParts[1].Interrupted()
	if !ok {
		t.Fatal("interrupting part not marked")
	}
	m, ok := md.(map[string]any)
	if !ok || m["reason"] != "needs approval" {
		t.Errorf("interrupt metadata = %v", md)
	}
	out, ok := reqParts[0].PendingOutput()
	if !ok {
		t.Fatal("resolved part missing pendingOutput")
	}
	if out != "resolved value" {
		t.Errorf("pendingOutput = %v, want %q", out, "resolved value")
	}
	if resp.Message == nil {
		t.Fatal("interrupted response has no message")
	}
}

func TestGenerateInterruptFirstWins(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(
			NewToolRequestPart("stopper", "c1", json.RawMessage(`{}`)),
			NewToolRequestPart("after", "c2", json.RawMessage(`{}`)),
		),
	}}

	stopper := NewTool("stopper", "interrupts", func(tc *ToolContext, _ noArgs) (string, error) {
		return "", tc.Interrupt(nil)
	})
	var afterInvoked int
	after := namedTool("after", "out", &afterInvoked)

	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(stopper, after))
	if err != nil {
		t.Fatal(err)
	}
	if afterInvoked != 0 {
		t.Errorf("tool after the interrupt ran %d times, want 0", afterInvoked)
	}

	// Nil interrupt metadata is recorded as a bare true marker.
	md, ok := resp.Message.Content[0].Interrupted()
	if !ok {
		t.Fatal("interrupting part not marked")
	}
	if md != true {
		t.Errorf("interrupt marker = %v, want true", md)
	}
}

func TestGenerateInterruptPersistsHistory(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("stopper", "c1", json.RawMessage(`{}`))),
	}}
	stopper := NewTool("stopper", "interrupts", func(tc *ToolContext, _ noArgs) (string, error) {
		return "", tc.Interrupt(nil)
	})

	var saved []*Message
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(stopper), withOnFinish(func(_ context.Context, history []*Message, _ *ModelResponse) error {
		saved = history
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(saved))
	}
	if _, ok := saved[1].Content[0].Interrupted(); !ok {
		t.Error("persisted model message missing interrupt marker")
	}
}

func TestGenerateSkipsResolvedRequests(t *testing.T) {
	// A request part carrying pendingOutput or interrupt metadata is already
	// settled and must not be re-invoked.
	settled := NewToolRequestPart("lookup", "c1", json.RawMessage(`{}`))
	settled.SetMetadata(MetadataPendingOutput, "prior output")
	halted := NewToolRequestPart("lookup", "c2", json.RawMessage(`{}`))
	halted.SetMetadata(MetadataInterrupt, true)

	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(settled, halted),
	}}
	var invoked int
	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(namedTool("lookup", "out", &invoked)))
	if err != nil {
		t.Fatal(err)
	}
	if invoked != 0 {
		t.Errorf("settled requests re-invoked %d times, want 0", invoked)
	}
	if adapter.callCount() != 1 {
		t.Errorf("adapter called %d times, want 1", adapter.callCount())
	}
	if resp.Message == nil {
		t.Error("terminal response missing message")
	}
}

func TestGenerateBlockedIsTerminal(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{{
		Message:      NewModelTextMessage(""),
		FinishReason: FinishReasonBlocked,
	}}}
	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.FinishReason != FinishReasonBlocked {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, FinishReasonBlocked)
	}
}

func TestGenerateNilMessageIsTerminal(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{{FinishReason: FinishReasonUnknown}}}
	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != nil {
		t.Errorf("Message = %v, want nil", resp.Message)
	}
	if resp.Text() != "" {
		t.Errorf("Text() = %q, want empty", resp.Text())
	}
}

func TestGenerateOutputValidation(t *testing.T) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"name": {Type: "string"}},
		Required:   []string{"name"},
	}

	t.Run("valid", func(t *testing.T) {
		adapter := &mockAdapter{responses: []*ModelResponse{textResponse(`{"name":"Ada"}`)}}
		resp, err := Generate(context.Background(), adapter, &ModelRequest{
			Messages: []*Message{NewUserTextMessage("go")},
			Output:   &OutputConfig{Format: OutputFormatJSON, Schema: schema},
		})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Text() != `{"name":"Ada"}` {
			t.Errorf("Text() = %q", resp.Text())
		}
	})

	t.Run("not json", func(t *testing.T) {
		adapter := &mockAdapter{responses: []*ModelResponse{textResponse("not json")}}
		_, err := Generate(context.Background(), adapter, &ModelRequest{
			Messages: []*Message{NewUserTextMessage("go")},
			Output:   &OutputConfig{Format: OutputFormatJSON, Schema: schema},
		})
		if err == nil {
			t.Fatal("want error for non-JSON output")
		}
	})

	t.Run("schema mismatch", func(t *testing.T) {
		adapter := &mockAdapter{responses: []*ModelResponse{textResponse(`{"name":42}`)}}
		_, err := Generate(context.Background(), adapter, &ModelRequest{
			Messages: []*Message{NewUserTextMessage("go")},
			Output:   &OutputConfig{Format: OutputFormatJSON, Schema: schema},
		})
		if err == nil {
			t.Fatal("want error for schema mismatch")
		}
	})

	t.Run("blocked exempt", func(t *testing.T) {
		adapter := &mockAdapter{responses: []*ModelResponse{{
			Message:      NewModelTextMessage(""),
			FinishReason: FinishReasonBlocked,
		}}}
		if _, err := Generate(context.Background(), adapter, &ModelRequest{
			Messages: []*Message{NewUserTextMessage("go")},
			Output:   &OutputConfig{Format: OutputFormatJSON, Schema: schema},
		}); err != nil {
			t.Fatalf("blocked response should skip validation: %v", err)
		}
	})
}

func TestGenerateUsageAccumulates(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("lookup", "c1", json.RawMessage(`{}`))),
		textResponse("done"),
	}}
	resp, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, WithTools(namedTool("lookup", "out", nil)))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 10 {
		t.Errorf("Usage = %+v, want totals across both turns", resp.Usage)
	}
}

func TestGenerateStreamToolActivity(t *testing.T) {
	adapter := &mockAdapter{
		responses: []*ModelResponse{
			toolCallResponse(NewToolRequestPart("lookup", "c1", json.RawMessage(`{}`))),
			textResponse("done"),
		},
		chunks: [][]*ModelResponseChunk{
			nil,
			{{Role: RoleModel, Content: []*Part{NewTextPart("done")}}},
		},
	}

	var chunks []*ModelResponseChunk
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	},
		WithTools(namedTool("lookup", "out", nil)),
		WithStreamCallback(func(_ context.Context, c *ModelResponseChunk) error {
			chunks = append(chunks, c)
			return nil
		}))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("received %d chunks, want 2", len(chunks))
	}
	if chunks[0].Role != RoleTool {
		t.Errorf("first chunk role = %q, want %q", chunks[0].Role, RoleTool)
	}
	if len(chunks[0].Content) != 1 || chunks[0].Content[0].Kind != PartToolResponse {
		t.Errorf("tool chunk content = %+v", chunks[0].Content)
	}
	if chunks[1].Text() != "done" {
		t.Errorf("final chunk text = %q, want %q", chunks[1].Text(), "done")
	}
}

func TestGenerateOnFinishHistory(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{
		toolCallResponse(NewToolRequestPart("lookup", "c1", json.RawMessage(`{}`))),
		textResponse("done"),
	}}

	var saved []*Message
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	},
		WithTools(namedTool("lookup", "out", nil)),
		withOnFinish(func(_ context.Context, history []*Message, resp *ModelResponse) error {
			saved = history
			if resp.Text() != "done" {
				t.Errorf("resp text in hook = %q", resp.Text())
			}
			return nil
		}))
	if err != nil {
		t.Fatal(err)
	}
	// user, model tool request, tool results, final model answer
	if len(saved) != 4 {
		t.Fatalf("history has %d messages, want 4", len(saved))
	}
	wantRoles := []Role{RoleUser, RoleModel, RoleTool, RoleModel}
	for i, m := range saved {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
	}
}

func TestGenerateOnFinishErrorPropagates(t *testing.T) {
	adapter := &mockAdapter{responses: []*ModelResponse{textResponse("done")}}
	boom := errors.New("store down")
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	}, withOnFinish(func(context.Context, []*Message, *ModelResponse) error {
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestGenerateAdapterErrorPropagates(t *testing.T) {
	boom := errors.New("upstream down")
	adapter := &mockAdapter{err: boom}
	_, err := Generate(context.Background(), adapter, &ModelRequest{
		Messages: []*Message{NewUserTextMessage("go")},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
