package strand

import (
	"context"
	"log/slog"
)

// DefaultThreadName is the thread a chat binds to when none is named.
const DefaultThreadName = "main"

// chatConfig holds a chat's base request options.
type chatConfig struct {
	thread   string
	system   string
	tools    []Tool
	config   *GenerationConfig
	output   *OutputConfig
	maxTurns int
	tracer   Tracer
	logger   *slog.Logger
}

// ChatOption configures NewChat and Chat.Branch.
type ChatOption func(*chatConfig)

// WithThreadName binds the chat to a named thread. Default "main".
func WithThreadName(name string) ChatOption {
	return func(c *chatConfig) { c.thread = name }
}

// WithSystemText sets the system prompt sent ahead of the history on every
// send. It is tagged as preamble and never persisted into the thread.
func WithSystemText(s string) ChatOption {
	return func(c *chatConfig) { c.system = s }
}

// WithChatTools declares the tools available on every send.
func WithChatTools(tools ...Tool) ChatOption {
	return func(c *chatConfig) { c.tools = append(c.tools, tools...) }
}

// WithChatConfig sets the generation config for every send.
func WithChatConfig(cfg *GenerationConfig) ChatOption {
	return func(c *chatConfig) { c.config = cfg }
}

// WithChatOutput requests structured output on every send.
func WithChatOutput(out *OutputConfig) ChatOption {
	return func(c *chatConfig) { c.output = out }
}

// WithChatMaxTurns sets the tool-calling turn cap for every send.
func WithChatMaxTurns(n int) ChatOption {
	return func(c *chatConfig) { c.maxTurns = n }
}

// WithChatTracer sets the tracer for generation spans.
func WithChatTracer(t Tracer) ChatOption {
	return func(c *chatConfig) { c.tracer = t }
}

// WithChatLogger sets the structured logger. If not set, a no-op logger is
// used (no output).
func WithChatLogger(l *slog.Logger) ChatOption {
	return func(c *chatConfig) { c.logger = l }
}

// Chat is an ephemeral, thread-bound conversation handle: a session, a
// thread name, and base request options. It is not persisted itself; only
// the messages it manages are. Multiple handles may reference the same
// thread; concurrent sends race and the last writer wins.
type Chat struct {
	session *Session
	adapter ModelAdapter
	cfg     chatConfig
}

// NewChat binds a session and adapter to a (lazily created) thread.
func NewChat(session *Session, adapter ModelAdapter, opts ...ChatOption) *Chat {
	cfg := chatConfig{thread: DefaultThreadName, logger: nopLogger}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.thread == "" {
		cfg.thread = DefaultThreadName
	}
	return &Chat{session: session, adapter: adapter, cfg: cfg}
}

// Session returns the owning session.
func (c *Chat) Session() *Session { return c.session }

// Thread returns the bound thread name.
func (c *Chat) Thread() string { return c.cfg.thread }

// Send sends user text and blocks until the terminal response. The thread
// history is read before the call and the full updated history (user turn,
// any intermediate tool turns, final model turn) replaces it afterward.
func (c *Chat) Send(ctx context.Context, text string) (*ModelResponse, error) {
	return c.send(ctx, NewUserTextMessage(text), nil)
}

// SendMessage is Send for a caller-constructed message (e.g. multimodal).
func (c *Chat) SendMessage(ctx context.Context, msg *Message) (*ModelResponse, error) {
	return c.send(ctx, msg, nil)
}

// SendStream is Send with incremental chunks forwarded to cb as the provider
// emits them. The returned response is the assembled terminal response.
func (c *Chat) SendStream(ctx context.Context, text string, cb StreamCallback) (*ModelResponse, error) {
	return c.send(ctx, NewUserTextMessage(text), cb)
}

func (c *Chat) send(ctx context.Context, msg *Message, cb StreamCallback) (*ModelResponse, error) {
	ctx = WithSession(ctx, c.session)

	history, err := c.session.Messages(ctx, c.cfg.thread)
	if err != nil {
		return nil, err
	}

	msgs := make([]*Message, 0, len(history)+2)
	if c.cfg.system != "" {
		sys := NewSystemTextMessage(c.cfg.system)
		sys.markPreamble()
		msgs = append(msgs, sys)
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, msg)

	opts := []GenerateOption{
		WithTools(c.cfg.tools...),
		WithMaxTurns(c.cfg.maxTurns),
		WithGenerateLogger(c.cfg.logger),
		withOnFinish(func(ctx context.Context, final []*Message, _ *ModelResponse) error {
			return c.session.UpdateMessages(ctx, c.cfg.thread, stripPreamble(final))
		}),
	}
	if c.cfg.tracer != nil {
		opts = append(opts, WithGenerateTracer(c.cfg.tracer))
	}
	if cb != nil {
		opts = append(opts, WithStreamCallback(cb))
	}

	req := &ModelRequest{Messages: msgs, Config: c.cfg.config, Output: c.cfg.output}
	return Generate(ctx, c.adapter, req, opts...)
}

// Branch creates a chat on another thread of the same session, inheriting
// this chat's base options unless overridden. If the target thread has no
// history yet, it is seeded with a snapshot of this chat's current history;
// an existing thread is left as is.
func (c *Chat) Branch(ctx context.Context, thread string, opts ...ChatOption) (*Chat, error) {
	cfg := c.cfg
	cfg.thread = thread
	cfg.tools = copyTools(c.cfg.tools)
	for _, opt := range opts {
		opt(&cfg)
	}

	existing, err := c.session.Messages(ctx, thread)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		parent, err := c.session.Messages(ctx, c.cfg.thread)
		if err != nil {
			return nil, err
		}
		if len(parent) > 0 {
			if err := c.session.UpdateMessages(ctx, thread, parent); err != nil {
				return nil, err
			}
		}
	}
	return &Chat{session: c.session, adapter: c.adapter, cfg: cfg}, nil
}

// agentToolInput is the input shape the model fills when delegating to a
// nested agent.
type agentToolInput struct {
	Query string `json:"query" jsonschema:"the task to hand to the agent"`
}

// AgentTool exposes an executable prompt as a nested agent: when the model
// calls it, the agent's rendered preamble (tagged metadata.preamble) plus a
// replay of this chat's current history land in a per-agent thread named
// "<thread>_<agent>", the agent runs its own generation there, and its final
// text is returned as the tool output. The agent thread keeps the tagged
// preamble; the parent thread never sees it because preamble messages are
// stripped on parent persistence. State updates from the agent delegate to
// the root-owning session.
func (c *Chat) AgentTool(agent *ExecutablePrompt) Tool {
	return NewTool(agent.Name(), agent.Description(),
		func(tc *ToolContext, in agentToolInput) (string, error) {
			agentThread := c.cfg.thread + "_" + agent.Name()
			child := c.session.Child()
			ctx := WithSession(tc.Context, child)

			rendered, err := agent.Render(ctx, in.Query)
			if err != nil {
				return "", err
			}

			parent, err := c.session.Messages(ctx, c.cfg.thread)
			if err != nil {
				return "", err
			}

			msgs := make([]*Message, 0, len(rendered.Messages)+len(parent)+1)
			for _, m := range rendered.Messages {
				m.markPreamble()
				msgs = append(msgs, m)
			}
			msgs = append(msgs, parent...)
			msgs = append(msgs, NewUserTextMessage(in.Query))

			req := &ModelRequest{
				Messages: msgs,
				Config:   rendered.Config,
				Output:   rendered.Output,
			}
			resp, err := Generate(ctx, agent.adapter, req,
				WithTools(rendered.Tools...),
				WithMaxTurns(c.cfg.maxTurns),
				WithGenerateLogger(c.cfg.logger),
				withOnFinish(func(ctx context.Context, final []*Message, _ *ModelResponse) error {
					return child.UpdateMessages(ctx, agentThread, final)
				}),
			)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		})
}

// copyTools returns a copy of the tool slice header so branched chats can
// append without sharing backing arrays.
func copyTools(tools []Tool) []Tool {
	if tools == nil {
		return nil
	}
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}
