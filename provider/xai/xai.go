// Package xai provides a strand.ModelAdapter for the xAI Grok API.
//
// Grok speaks the OpenAI chat completions protocol, so this package is a
// thin preset over provider/openaicompat with the xAI endpoint and name.
package xai

import (
	"github.com/strandkit/strand/provider/openaicompat"
)

// DefaultBaseURL is the xAI API endpoint.
const DefaultBaseURL = "https://api.x.ai/v1"

// New creates a Grok model adapter.
//
//	adapter := xai.New(apiKey, "grok-3")
func New(apiKey, model string, opts ...openaicompat.AdapterOption) *openaicompat.Adapter {
	all := make([]openaicompat.AdapterOption, 0, len(opts)+1)
	all = append(all, openaicompat.WithName("xai"))
	all = append(all, opts...)
	return openaicompat.New(apiKey, model, DefaultBaseURL, all...)
}
