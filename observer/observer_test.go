package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/strandkit/strand"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockAdapter for observer tests.
type mockAdapter struct {
	name   string
	resp   *strand.ModelResponse
	chunks []*strand.ModelResponseChunk
	err    error
}

func (m *mockAdapter) Name() string { return m.name }
func (m *mockAdapter) Generate(ctx context.Context, _ *strand.ModelRequest, cb strand.StreamCallback) (*strand.ModelResponse, error) {
	if cb != nil {
		for _, c := range m.chunks {
			if err := cb(ctx, c); err != nil {
				return nil, err
			}
		}
	}
	return m.resp, m.err
}

// mockTool for observer tests.
type mockTool struct {
	name   string
	out    any
	err    error
	gotRef string
}

func (m *mockTool) Name() string { return m.name }
func (m *mockTool) Definition() strand.ToolDefinition {
	return strand.ToolDefinition{Name: m.name, Description: "mock tool"}
}
func (m *mockTool) RunRaw(tc *strand.ToolContext, _ json.RawMessage) (any, error) {
	m.gotRef = tc.Ref
	return m.out, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

// ---------------------------------------------------------------------------
// ObservedAdapter tests
// ---------------------------------------------------------------------------

func TestObservedAdapterName(t *testing.T) {
	inner := &mockAdapter{name: "test-provider"}
	oa := WrapAdapter(inner, "test-model", testInstruments(t))

	if got := oa.Name(); got != "test-provider" {
		t.Errorf("Name() = %q, want %q", got, "test-provider")
	}
}

func TestObservedAdapterGenerate(t *testing.T) {
	want := &strand.ModelResponse{
		Message:      strand.NewModelTextMessage("hello from LLM"),
		FinishReason: strand.FinishReasonStop,
		Usage:        strand.Usage{InputTokens: 10, OutputTokens: 5},
	}
	inner := &mockAdapter{name: "p", resp: want}
	oa := WrapAdapter(inner, "m", testInstruments(t))

	got, err := oa.Generate(context.Background(), &strand.ModelRequest{}, nil)
	if err != nil {
		t.Fatalf("Generate returned unexpected error: %v", err)
	}
	if got.Text() != "hello from LLM" {
		t.Errorf("Text() = %q", got.Text())
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
}

func TestObservedAdapterGenerateError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	inner := &mockAdapter{name: "p", err: wantErr}
	oa := WrapAdapter(inner, "m", testInstruments(t))

	_, err := oa.Generate(context.Background(), &strand.ModelRequest{}, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Generate error = %v, want %v", err, wantErr)
	}
}

func TestObservedAdapterStreamForwardsChunks(t *testing.T) {
	inner := &mockAdapter{
		name: "p",
		resp: &strand.ModelResponse{
			Message:      strand.NewModelTextMessage("hello world"),
			FinishReason: strand.FinishReasonStop,
		},
		chunks: []*strand.ModelResponseChunk{
			{Role: strand.RoleModel, Content: []*strand.Part{strand.NewTextPart("hello")}},
			{Role: strand.RoleModel, Content: []*strand.Part{strand.NewTextPart(" world")}},
		},
	}
	oa := WrapAdapter(inner, "m", testInstruments(t))

	var tokens []string
	resp, err := oa.Generate(context.Background(), &strand.ModelRequest{}, func(_ context.Context, c *strand.ModelResponseChunk) error {
		tokens = append(tokens, c.Text())
		return nil
	})
	if err != nil {
		t.Fatalf("Generate returned unexpected error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "hello" || tokens[1] != " world" {
		t.Errorf("tokens = %v, want [hello, ' world']", tokens)
	}
	if resp.Text() != "hello world" {
		t.Errorf("Text() = %q", resp.Text())
	}
}

// ---------------------------------------------------------------------------
// ObservedTool tests
// ---------------------------------------------------------------------------

func TestObservedToolDefinition(t *testing.T) {
	inner := &mockTool{name: "search"}
	ot := WrapTool(inner, testInstruments(t))

	if got := ot.Name(); got != "search" {
		t.Errorf("Name() = %q, want %q", got, "search")
	}
	def := ot.Definition()
	if def.Name != "search" || def.Description != "mock tool" {
		t.Errorf("Definition() = %+v", def)
	}
}

func TestObservedToolRunRaw(t *testing.T) {
	inner := &mockTool{name: "search", out: "result data"}
	ot := WrapTool(inner, testInstruments(t))

	tc := &strand.ToolContext{Context: context.Background(), Name: "search", Ref: "c1"}
	got, err := ot.RunRaw(tc, json.RawMessage(`{"q":"test"}`))
	if err != nil {
		t.Fatalf("RunRaw returned unexpected error: %v", err)
	}
	if got != "result data" {
		t.Errorf("output = %v, want %q", got, "result data")
	}
	if inner.gotRef != "c1" {
		t.Errorf("inner tool saw ref %q, want %q", inner.gotRef, "c1")
	}
}

func TestObservedToolRunRawError(t *testing.T) {
	wantErr := errors.New("tool broken")
	inner := &mockTool{name: "search", err: wantErr}
	ot := WrapTool(inner, testInstruments(t))

	tc := &strand.ToolContext{Context: context.Background(), Name: "search"}
	_, err := ot.RunRaw(tc, json.RawMessage(`{}`))
	if !errors.Is(err, wantErr) {
		t.Errorf("RunRaw error = %v, want %v", err, wantErr)
	}
}

func TestObservedToolInterruptPassesThrough(t *testing.T) {
	wantErr := &strand.ToolInterruptError{Metadata: map[string]any{"reason": "confirm"}}
	inner := &mockTool{name: "transfer", err: wantErr}
	ot := WrapTool(inner, testInstruments(t))

	tc := &strand.ToolContext{Context: context.Background(), Name: "transfer"}
	_, err := ot.RunRaw(tc, json.RawMessage(`{}`))

	var interrupt *strand.ToolInterruptError
	if !errors.As(err, &interrupt) {
		t.Fatalf("RunRaw error = %v, want ToolInterruptError", err)
	}
	if interrupt.Metadata["reason"] != "confirm" {
		t.Errorf("interrupt metadata = %v", interrupt.Metadata)
	}
}

// ---------------------------------------------------------------------------
// Tracer tests
// ---------------------------------------------------------------------------

func TestNewTracerNoOp(t *testing.T) {
	// Without Init the global provider is a no-op; spans must still be usable.
	tr := NewTracer()
	ctx, span := tr.Start(context.Background(), "test.span",
		strand.StringAttr("k", "v"), strand.IntAttr("n", 3))
	if ctx == nil {
		t.Fatal("Start returned nil context")
	}
	span.SetAttr(strand.BoolAttr("done", true), strand.Float64Attr("score", 0.5))
	span.Event("checkpoint")
	span.Error(errors.New("boom"))
	span.End()
}
