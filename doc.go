// Package strand is a generative AI application framework for Go.
//
// It provides modular, interface-driven building blocks: model adapters for
// LLM backends, a multi-turn generation loop with automatic tool resolution
// and interrupts, persistent sessions with named conversation threads, and
// executable prompts that compose into nested agents.
//
// # Quick Start
//
// Create a chat bound to a persistent session:
//
//	adapter := xai.New(apiKey, "grok-3")
//	store := sqlite.New("strand.db")
//
//	session, err := strand.NewSession(ctx,
//		strand.WithSessionStore(store),
//		strand.WithInitialState(map[string]any{"name": "Ada"}),
//	)
//
//	chat := strand.NewChat(session, adapter,
//		strand.WithSystemText("You are a helpful assistant."),
//		strand.WithChatTools(weatherTool),
//	)
//
//	resp, err := chat.Send(ctx, "What's the weather like?")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [ModelAdapter]: LLM backend (generation, tool calling, streaming)
//   - [SessionStore]: session persistence (state plus message threads)
//   - [Tool]: pluggable capability for model function calling, with
//     typed input schemas and interrupt support
//   - [Tracer]: generation span instrumentation
//
// # Included Implementations
//
// Adapters: provider/openaicompat (OpenAI-compatible APIs), provider/xai,
// provider/deepseek, provider/resolve (config-driven construction).
// Stores: store/sqlite (local), store/postgres (pgx pool).
// Observability: observer (OpenTelemetry traces, metrics, logs, cost).
package strand
