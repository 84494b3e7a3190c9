package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand"
)

// ObservedAdapter wraps a strand.ModelAdapter with OTEL instrumentation.
type ObservedAdapter struct {
	inner strand.ModelAdapter
	inst  *Instruments
	model string
}

var _ strand.ModelAdapter = (*ObservedAdapter)(nil)

// WrapAdapter returns an instrumented adapter that emits traces, metrics, and logs.
func WrapAdapter(inner strand.ModelAdapter, model string, inst *Instruments) *ObservedAdapter {
	return &ObservedAdapter{inner: inner, inst: inst, model: model}
}

func (o *ObservedAdapter) Name() string { return o.inner.Name() }

func (o *ObservedAdapter) Generate(ctx context.Context, req *strand.ModelRequest, cb strand.StreamCallback) (*strand.ModelResponse, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(
			AttrLLMModel.String(o.model),
			AttrLLMProvider.String(o.inner.Name()),
		),
	}
	spanName := "llm.generate"
	method := "generate"
	if cb != nil {
		spanName = "llm.generate_stream"
		method = "generate_stream"
	}
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
	}

	ctx, span := o.inst.Tracer.Start(ctx, spanName, spanAttrs...)
	defer span.End()
	start := time.Now()

	// Wrap the callback to count streamed chunks.
	chunks := 0
	wrapped := cb
	if cb != nil {
		wrapped = func(ctx context.Context, chunk *strand.ModelResponseChunk) error {
			chunks++
			return cb(ctx, chunk)
		}
	}

	resp, err := o.inner.Generate(ctx, req, wrapped)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	var usage strand.Usage
	if resp != nil {
		usage = resp.Usage
		span.SetAttributes(AttrFinishReason.String(string(resp.FinishReason)))
	}
	if cb != nil {
		span.SetAttributes(AttrStreamChunks.Int(chunks))
	}

	o.record(ctx, span, method, status, durationMs, usage)
	return resp, err
}

func (o *ObservedAdapter) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, usage strand.Usage) {
	cost := o.inst.Cost.Calculate(o.model, usage.InputTokens, usage.OutputTokens)

	attrs := metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
		AttrCostUSD.Float64(cost),
	)

	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.CostTotal.Add(ctx, cost, attrs)
	o.inst.ModelRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.ModelDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.cost_usd", cost),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}
