package strand

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// FinishReason explains why the model stopped producing output.
type FinishReason string

const (
	// FinishReasonStop is a natural completion (including after tool calls).
	FinishReasonStop FinishReason = "stop"
	// FinishReasonLength means the output hit a token limit.
	FinishReasonLength FinishReason = "length"
	// FinishReasonBlocked means provider-side safety filtering withheld the
	// content. This is a successful turn, not an error; callers inspecting
	// only the text may observe empty output.
	FinishReasonBlocked FinishReason = "blocked"
	// FinishReasonOther covers provider-specific reasons with no mapping.
	FinishReasonOther FinishReason = "other"
	// FinishReasonUnknown means the provider reported nothing usable.
	FinishReasonUnknown FinishReason = "unknown"
)

// GenerationConfig holds provider-neutral sampling parameters. Nil pointer
// fields mean "use the provider default".
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// OutputFormat selects the response format requested from the model.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// OutputConfig requests structured output. When Schema is set, providers
// enforce it natively where supported, and the generation loop validates the
// final response against it.
type OutputConfig struct {
	Format OutputFormat       `json:"format,omitempty"`
	Name   string             `json:"name,omitempty"`
	Schema *jsonschema.Schema `json:"schema,omitempty"`
}

// ToolDefinition is the wire-level description of a callable tool.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}

// ModelRequest is the provider-neutral request passed to a ModelAdapter.
// The generation loop rebuilds it each iteration, appending newly resolved
// tool-response messages to Messages.
type ModelRequest struct {
	Messages []*Message        `json:"messages"`
	Tools    []ToolDefinition  `json:"tools,omitempty"`
	Config   *GenerationConfig `json:"config,omitempty"`
	Output   *OutputConfig     `json:"output,omitempty"`
}

// ModelResponse is one model turn. Message is nil only when the provider
// produced no usable choice (FinishReasonUnknown).
type ModelResponse struct {
	Message      *Message     `json:"message,omitempty"`
	FinishReason FinishReason `json:"finishReason"`
	Usage        Usage        `json:"usage"`
}

// Text returns the concatenated text of the response message.
func (r *ModelResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Text()
}

// ModelResponseChunk is an incremental piece of a streamed model turn.
// Chunks arrive in provider emission order; the generation loop forwards
// them unmodified and operates only on the assembled final message. Tool
// activity during the loop is surfaced as chunks whose Content carries
// toolRequest/toolResponse parts.
type ModelResponseChunk struct {
	Index   int     `json:"index"`
	Role    Role    `json:"role,omitempty"`
	Content []*Part `json:"content"`
}

// Text returns the concatenated text of the chunk's text parts.
func (c *ModelResponseChunk) Text() string {
	var sb []byte
	for _, p := range c.Content {
		if p.Kind == PartText {
			sb = append(sb, p.Text...)
		}
	}
	return string(sb)
}
