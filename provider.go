package strand

import "context"

// StreamCallback receives incremental chunks during a streamed generation.
// Returning an error aborts the stream and fails the invocation.
type StreamCallback func(ctx context.Context, chunk *ModelResponseChunk) error

// ModelAdapter abstracts the model backend. Implementations translate the
// provider-neutral request into a vendor wire format and back.
//
// Generate must return exactly one message per non-degenerate call. When the
// provider yields zero choices, it returns a response with a nil Message and
// FinishReasonUnknown. When cb is non-nil the adapter streams chunks into it
// before returning the assembled final response; when nil it blocks.
//
// Adapters must honor ctx cancellation by aborting the in-flight HTTP call.
// Timeouts and retries are adapter concerns (see WithRetry); errors surface
// to the generation loop as-is, never swallowed.
type ModelAdapter interface {
	Generate(ctx context.Context, req *ModelRequest, cb StreamCallback) (*ModelResponse, error)
	// Name returns the adapter name (e.g. "openai", "xai", "deepseek").
	Name() string
}
