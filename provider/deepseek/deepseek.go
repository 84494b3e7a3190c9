// Package deepseek provides a strand.ModelAdapter for the DeepSeek API.
//
// DeepSeek speaks the OpenAI chat completions protocol and additionally
// returns reasoning_content for its R1 models; openaicompat surfaces that as
// reasoning parts, so this package only presets the endpoint and name.
package deepseek

import (
	"github.com/strandkit/strand/provider/openaicompat"
)

// DefaultBaseURL is the DeepSeek API endpoint.
const DefaultBaseURL = "https://api.deepseek.com"

// New creates a DeepSeek model adapter.
//
//	adapter := deepseek.New(apiKey, "deepseek-chat")
//	reasoner := deepseek.New(apiKey, "deepseek-reasoner")
func New(apiKey, model string, opts ...openaicompat.AdapterOption) *openaicompat.Adapter {
	all := make([]openaicompat.AdapterOption, 0, len(opts)+1)
	all = append(all, openaicompat.WithName("deepseek"))
	all = append(all, opts...)
	return openaicompat.New(apiKey, model, DefaultBaseURL, all...)
}
