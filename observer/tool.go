package observer

import (
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand"
)

// ObservedTool wraps a strand.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner strand.Tool
	inst  *Instruments
}

var _ strand.Tool = (*ObservedTool)(nil)

// WrapTool returns an instrumented tool.
func WrapTool(inner strand.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Name() string { return o.inner.Name() }

func (o *ObservedTool) Definition() strand.ToolDefinition {
	return o.inner.Definition()
}

func (o *ObservedTool) RunRaw(tc *strand.ToolContext, input json.RawMessage) (any, error) {
	ctx, span := o.inst.Tracer.Start(tc.Context, "tool.execute", trace.WithAttributes(
		AttrToolName.String(o.inner.Name()),
		AttrToolRef.String(tc.Ref),
	))
	defer span.End()
	start := time.Now()

	inner := *tc
	inner.Context = ctx
	out, err := o.inner.RunRaw(&inner, input)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	var interrupt *strand.ToolInterruptError
	if errors.As(err, &interrupt) {
		status = "interrupt"
	} else if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	resultLen := 0
	if s, ok := out.(string); ok {
		resultLen = len(s)
	}
	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(resultLen),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool executed"))
	rec.AddAttributes(
		otellog.String("tool.name", o.inner.Name()),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", resultLen),
		otellog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return out, err
}
