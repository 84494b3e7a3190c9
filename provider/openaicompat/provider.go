package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/strandkit/strand"
)

// Adapter implements strand.ModelAdapter for any OpenAI-compatible API.
// It uses the shared helpers in this package (BuildBody, StreamSSE,
// ParseResponse) to handle body building, streaming, and response parsing.
//
// Works with OpenAI, xAI, DeepSeek, OpenRouter, Groq, Together, Fireworks,
// Mistral, Ollama, vLLM, LM Studio, Azure OpenAI, and any other provider that
// implements the OpenAI chat completions API.
type Adapter struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
}

// New creates an OpenAI-compatible model adapter.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.x.ai/v1", "http://localhost:11434/v1").
// The /chat/completions path is appended automatically.
//
// Adapter-level options (WithOptions) are applied to every request.
// Per-request options from BuildBody still work for callers using the
// helpers directly.
func New(apiKey, model, baseURL string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the adapter name (default "openai", configurable via WithName).
func (a *Adapter) Name() string { return a.name }

// Model returns the model identifier sent on every request.
func (a *Adapter) Model() string { return a.model }

// Generate sends one chat completions request. When cb is nil the request is
// a plain POST; otherwise server-sent events are consumed and forwarded to cb
// as they arrive. Either way the complete response is returned.
func (a *Adapter) Generate(ctx context.Context, req *strand.ModelRequest, cb strand.StreamCallback) (*strand.ModelResponse, error) {
	body := BuildBody(req, a.model, a.opts...)
	if cb == nil {
		return a.doRequest(ctx, body)
	}

	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := a.sendHTTP(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.httpErr(resp)
	}
	return StreamSSE(ctx, resp.Body, cb)
}

// doRequest sends a non-streaming request and parses the response.
func (a *Adapter) doRequest(ctx context.Context, body ChatRequest) (*strand.ModelResponse, error) {
	resp, err := a.sendHTTP(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &strand.ErrLLM{Provider: a.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return ParseResponse(chatResp)
}

// sendHTTP marshals the request body and sends it to the chat completions endpoint.
func (a *Adapter) sendHTTP(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &strand.ErrLLM{Provider: a.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &strand.ErrLLM{Provider: a.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	return a.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP for retry middleware.
// Parses the Retry-After header when present (429/503 responses).
func (a *Adapter) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &strand.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: strand.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ strand.ModelAdapter = (*Adapter)(nil)
