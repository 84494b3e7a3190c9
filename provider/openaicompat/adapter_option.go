package openaicompat

import "net/http"

// AdapterOption configures an Adapter instance.
type AdapterOption func(*Adapter)

// WithName sets the adapter name returned by Name() (default "openai").
// Use this to distinguish adapters in logs and observability.
func WithName(name string) AdapterOption {
	return func(a *Adapter) { a.name = name }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(a *Adapter) { a.client = c }
}

// WithOptions appends request-level options (temperature, top_p, etc.)
// that are applied to every request made by this adapter.
func WithOptions(opts ...Option) AdapterOption {
	return func(a *Adapter) { a.opts = append(a.opts, opts...) }
}
