package strand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// SessionData is everything persisted for one session: an arbitrary
// user-defined state value and the named message threads.
type SessionData struct {
	State   any                   `json:"state,omitempty"`
	Threads map[string][]*Message `json:"threads"`
}

// SessionStore persists session data keyed by session id. Save has overwrite
// semantics: calling it repeatedly with the same id replaces the stored data.
// The in-memory implementation is the default; store/sqlite and
// store/postgres provide durable ones.
type SessionStore interface {
	// Get returns the stored data, or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (SessionData, error)
	Save(ctx context.Context, sessionID string, data SessionData) error
}

// MemorySessionStore is the default in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionData
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]SessionData)}
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return SessionData{}, ErrSessionNotFound
	}
	return cloneSessionData(data), nil
}

func (s *MemorySessionStore) Save(_ context.Context, sessionID string, data SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cloneSessionData(data)
	return nil
}

// cloneSessionData copies the threads map and per-thread slice headers so
// callers and the store never share mutable slices. Messages themselves are
// treated as immutable once stored (replace semantics, never in-place edits).
func cloneSessionData(data SessionData) SessionData {
	out := SessionData{State: data.State, Threads: make(map[string][]*Message, len(data.Threads))}
	for name, msgs := range data.Threads {
		out.Threads[name] = copyMessages(msgs)
	}
	return out
}

// Session owns a session id, a user-defined state value, and named message
// threads. It mediates all reads and writes to the store: every mutation
// re-fetches the stored data, applies the change, and saves it back.
//
// Sessions provide no locking across processes or handles. Concurrent writes
// to the same thread race and the last Save wins, silently discarding the
// earlier branch's turn; callers needing isolation must serialize sends on a
// thread themselves.
type Session struct {
	id          string
	store       SessionStore
	parent      *Session // non-nil for nested sessions; state delegates to root
	stateSchema *jsonschema.Resolved
	logger      *slog.Logger

	mu   sync.Mutex
	data SessionData
}

type sessionConfig struct {
	id          string
	store       SessionStore
	state       any
	stateSchema *jsonschema.Schema
	logger      *slog.Logger
}

// SessionOption configures NewSession.
type SessionOption func(*sessionConfig)

// WithSessionID sets the session id. Default: a fresh UUIDv7.
func WithSessionID(id string) SessionOption {
	return func(c *sessionConfig) { c.id = id }
}

// WithSessionStore sets the persistence backend. Default: in-memory.
func WithSessionStore(s SessionStore) SessionOption {
	return func(c *sessionConfig) { c.store = s }
}

// WithInitialState sets the session's initial state value.
func WithInitialState(state any) SessionOption {
	return func(c *sessionConfig) { c.state = state }
}

// WithStateSchema sets a JSON Schema that every state value must satisfy.
// UpdateState validates against it before persisting.
func WithStateSchema(schema *jsonschema.Schema) SessionOption {
	return func(c *sessionConfig) { c.stateSchema = schema }
}

// WithSessionLogger sets the structured logger. If not set, a no-op logger
// is used (no output).
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(c *sessionConfig) { c.logger = l }
}

// NewSession creates a session with an empty thread map and optional initial
// state, and saves it to the store.
func NewSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	var cfg sessionConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = NewID()
	}
	if cfg.store == nil {
		cfg.store = NewMemorySessionStore()
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}

	s := &Session{
		id:     cfg.id,
		store:  cfg.store,
		logger: cfg.logger,
		data:   SessionData{State: cfg.state, Threads: make(map[string][]*Message)},
	}
	if cfg.stateSchema != nil {
		resolved, err := cfg.stateSchema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve state schema: %w", err)
		}
		s.stateSchema = resolved
		if cfg.state != nil {
			if err := resolved.Validate(cfg.state); err != nil {
				return nil, fmt.Errorf("initial state does not match schema: %w", err)
			}
		}
	}
	if err := cfg.store.Save(ctx, s.id, s.data); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug("session created", "session_id", s.id)
	return s, nil
}

// LoadSession reloads a session from the store by id.
func LoadSession(ctx context.Context, id string, store SessionStore, opts ...SessionOption) (*Session, error) {
	var cfg sessionConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	data, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.Threads == nil {
		data.Threads = make(map[string][]*Message)
	}
	s := &Session{id: id, store: store, logger: cfg.logger, data: data}
	if cfg.stateSchema != nil {
		resolved, err := cfg.stateSchema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve state schema: %w", err)
		}
		s.stateSchema = resolved
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Store returns the persistence backend.
func (s *Session) Store() SessionStore { return s.store }

// root walks up nested sessions to the one owning the state.
func (s *Session) root() *Session {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Child creates a nested session sharing this session's id and store. State
// operations on the child delegate to the root-owning session.
func (s *Session) Child() *Session {
	return &Session{
		id:     s.id,
		store:  s.store,
		parent: s,
		logger: s.logger,
	}
}

// State returns the current state value of the root-owning session.
func (s *Session) State() any {
	r := s.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.State
}

// UpdateState replaces the session state. Nested sessions delegate to the
// root-owning session. The value is validated against the state schema when
// one is set, then the stored data is re-fetched, mutated, and saved back.
func (s *Session) UpdateState(ctx context.Context, state any) error {
	r := s.root()
	if r.stateSchema != nil {
		if err := r.stateSchema.Validate(state); err != nil {
			return fmt.Errorf("state does not match schema: %w", err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.fetchLocked(ctx)
	if err != nil {
		return err
	}
	data.State = state
	if err := r.store.Save(ctx, r.id, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	r.data = data
	return nil
}

// UpdateMessages replaces one thread's full history. Replace, not append:
// callers pass the complete desired history, which lets interrupt markers
// and preamble rewrites be layered in without duplicating messages.
func (s *Session) UpdateMessages(ctx context.Context, thread string, msgs []*Message) error {
	r := s.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.fetchLocked(ctx)
	if err != nil {
		return err
	}
	if data.Threads == nil {
		data.Threads = make(map[string][]*Message)
	}
	data.Threads[thread] = copyMessages(msgs)
	if err := r.store.Save(ctx, r.id, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	r.data = data
	r.logger.Debug("thread updated", "session_id", r.id, "thread", thread, "messages", len(msgs))
	return nil
}

// Messages returns the current history of a thread. Unknown thread names
// yield an empty history (threads are created lazily on first write).
func (s *Session) Messages(ctx context.Context, thread string) ([]*Message, error) {
	r := s.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.fetchLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.data = data
	return copyMessages(data.Threads[thread]), nil
}

// fetchLocked re-reads the stored data, falling back to the cached copy when
// the store has no record yet. Callers hold r.mu.
func (s *Session) fetchLocked(ctx context.Context) (SessionData, error) {
	data, err := s.store.Get(ctx, s.id)
	if errors.Is(err, ErrSessionNotFound) {
		return s.data, nil
	}
	if err != nil {
		return SessionData{}, fmt.Errorf("load session: %w", err)
	}
	if data.Threads == nil {
		data.Threads = make(map[string][]*Message)
	}
	return data, nil
}

// sessionCtxKey carries the active session through explicit context passing.
type sessionCtxKey struct{}

// WithSession attaches a session to the context. Tool handlers and nested
// operations retrieve it with SessionFromContext; there is no implicit
// ambient session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext returns the session attached to the context, or
// ErrNoSession when none is present.
func SessionFromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(sessionCtxKey{}).(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
