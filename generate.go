package strand

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DefaultMaxTurns is the default cap on tool-calling turns per Generate call.
const DefaultMaxTurns = 5

// generateConfig holds everything the generation loop needs to run.
type generateConfig struct {
	maxTurns int
	tools    []Tool
	stream   StreamCallback
	onFinish finishFunc
	tracer   Tracer
	logger   *slog.Logger
}

// finishFunc is invoked on terminal return with the full updated message
// history (request messages plus the final model message). Chat uses it to
// persist the owning thread.
type finishFunc func(ctx context.Context, history []*Message, resp *ModelResponse) error

// GenerateOption configures a Generate call.
type GenerateOption func(*generateConfig)

// WithMaxTurns sets the maximum number of tool-calling turns. The loop fails
// with a MaxTurnsError rather than issuing invocation n+1. Default 5.
func WithMaxTurns(n int) GenerateOption {
	return func(c *generateConfig) { c.maxTurns = n }
}

// WithTools declares the tools available to the model for this call. To pass
// an executable prompt as a tool, convert it first with
// ExecutablePrompt.AsTool.
func WithTools(tools ...Tool) GenerateOption {
	return func(c *generateConfig) { c.tools = append(c.tools, tools...) }
}

// WithStreamCallback enables streaming: chunks are forwarded to cb as the
// provider emits them, and tool activity during the loop is surfaced as
// tool-role chunks. The loop's control flow is unchanged.
func WithStreamCallback(cb StreamCallback) GenerateOption {
	return func(c *generateConfig) { c.stream = cb }
}

// WithGenerateTracer sets the tracer for per-turn spans.
func WithGenerateTracer(t Tracer) GenerateOption {
	return func(c *generateConfig) { c.tracer = t }
}

// WithGenerateLogger sets the structured logger. If not set, a no-op logger
// is used (no output).
func WithGenerateLogger(l *slog.Logger) GenerateOption {
	return func(c *generateConfig) { c.logger = l }
}

// withOnFinish installs the terminal persistence hook. Chat-internal.
func withOnFinish(fn finishFunc) GenerateOption {
	return func(c *generateConfig) { c.onFinish = fn }
}

// resolvedCall pairs a toolRequest part with the toolResponse part produced
// for it, preserving content-array order.
type resolvedCall struct {
	request  *Part
	response *Part
}

// Generate drives repeated model invocation until a terminal response is
// produced, folding tool results back into the conversation between turns.
//
// Each turn: invoke the adapter, scan the response for unresolved toolRequest
// parts, resolve them in content-array order, append the model message plus
// one tool message carrying all results, and re-invoke. The loop terminates
// when a turn carries no unresolved tool requests, when a tool interrupts,
// or with a MaxTurnsError when the turn cap would be exceeded.
//
// A single ctx threads through every turn; cancelling it aborts the in-flight
// provider call and no history is persisted for that turn.
func Generate(ctx context.Context, adapter ModelAdapter, req *ModelRequest, opts ...GenerateOption) (*ModelResponse, error) {
	cfg := generateConfig{maxTurns: DefaultMaxTurns, logger: nopLogger}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxTurns <= 0 {
		cfg.maxTurns = DefaultMaxTurns
	}

	tools := toolMap(cfg.tools)
	reqTools := req.Tools
	if len(reqTools) == 0 {
		reqTools = toolDefinitions(cfg.tools)
	}

	messages := copyMessages(req.Messages)
	var total Usage

	for turn := 0; ; turn++ {
		if turn == cfg.maxTurns {
			cfg.logger.Warn("tool call turn cap reached",
				"adapter", adapter.Name(), "limit", cfg.maxTurns)
			return nil, &MaxTurnsError{Limit: cfg.maxTurns}
		}

		turnCtx := ctx
		var span Span
		if cfg.tracer != nil {
			turnCtx, span = cfg.tracer.Start(ctx, "generate.turn",
				IntAttr("turn", turn),
				BoolAttr("has_tools", len(reqTools) > 0))
		}
		endTurn := func() {
			if span != nil {
				span.End()
			}
		}

		resp, err := adapter.Generate(turnCtx, &ModelRequest{
			Messages: messages,
			Tools:    reqTools,
			Config:   req.Config,
			Output:   req.Output,
		}, cfg.stream)
		if err != nil {
			if span != nil {
				span.Error(err)
			}
			endTurn()
			return nil, err
		}
		total.Add(resp.Usage)
		resp.Usage = total

		// Degenerate response: no usable choice. Terminal, nothing to persist.
		if resp.Message == nil {
			endTurn()
			return resp, nil
		}

		pending := unresolvedToolRequests(resp.Message)

		// No unresolved tool requests: terminal. A blocked finish reason
		// lands here too and is a normal response, not an error.
		if len(pending) == 0 {
			endTurn()
			if err := validateOutput(req.Output, resp); err != nil {
				return nil, err
			}
			history := append(copyMessages(messages), resp.Message)
			if cfg.onFinish != nil {
				if err := cfg.onFinish(ctx, history, resp); err != nil {
					return nil, err
				}
			}
			return resp, nil
		}

		if span != nil {
			span.SetAttr(IntAttr("tool_count", len(pending)))
		}

		// Resolve strictly in content-array order. The first interrupt wins:
		// later requests in the same turn are not invoked.
		resolved := make([]resolvedCall, 0, len(pending))
		var interrupted bool
		for _, p := range pending {
			respPart, interrupt, err := resolveToolRequest(turnCtx, tools, p)
			if err != nil {
				if span != nil {
					span.Error(err)
				}
				endTurn()
				return nil, err
			}
			if interrupt != nil {
				var payload any = true
				if interrupt.Metadata != nil {
					payload = interrupt.Metadata
				}
				p.SetMetadata(MetadataInterrupt, payload)
				// Same-turn requests that did resolve keep their output
				// visible without committing it as a tool message.
				for _, rc := range resolved {
					rc.request.SetMetadata(MetadataPendingOutput, rc.response.ToolResponse.Output)
				}
				interrupted = true
				break
			}
			resolved = append(resolved, resolvedCall{request: p, response: respPart})
		}

		if interrupted {
			endTurn()
			history := append(copyMessages(messages), resp.Message)
			if cfg.onFinish != nil {
				if err := cfg.onFinish(ctx, history, resp); err != nil {
					return nil, err
				}
			}
			return resp, nil
		}

		// Surface tool activity on the stream before re-invoking.
		responseParts := make([]*Part, len(resolved))
		for i, rc := range resolved {
			responseParts[i] = rc.response
		}
		if cfg.stream != nil {
			chunk := &ModelResponseChunk{Role: RoleTool, Content: responseParts}
			if err := cfg.stream(ctx, chunk); err != nil {
				endTurn()
				return nil, err
			}
		}

		messages = append(messages, resp.Message, NewToolMessage(responseParts...))
		endTurn()
	}
}

// unresolvedToolRequests returns the toolRequest parts that still need
// resolution: those carrying neither a pendingOutput marker (already
// resolved in an interrupted turn) nor an interrupt marker.
func unresolvedToolRequests(m *Message) []*Part {
	var out []*Part
	for _, p := range m.Content {
		if p.Kind != PartToolRequest {
			continue
		}
		if _, ok := p.PendingOutput(); ok {
			continue
		}
		if _, ok := p.Interrupted(); ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// validateOutput checks a terminal response against the request's output
// schema, when one was set. Blocked and degenerate turns are exempt:
// safety-filtered output is a valid terminal response with nothing to parse.
func validateOutput(out *OutputConfig, resp *ModelResponse) error {
	if out == nil || out.Schema == nil || resp.FinishReason != FinishReasonStop {
		return nil
	}
	resolved, err := out.Schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve output schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal([]byte(resp.Text()), &instance); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}

// nopLogger discards all output. Used when no logger option is set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
