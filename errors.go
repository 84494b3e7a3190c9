package strand

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ToolNotFoundError is returned when the model requests a tool name absent
// from the request's declared tool list. Fatal: the generation loop stops
// immediately and never retries.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found in request tools", e.Tool)
}

// MaxTurnsError is returned when the tool-calling loop exceeds its turn cap.
type MaxTurnsError struct {
	Limit int
}

func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("exceeded maximum tool call turns (%d); use WithMaxTurns to raise the limit", e.Limit)
}

// ErrNoSession is returned by operations that require an active session in
// context when none has been attached via WithSession.
var ErrNoSession = errors.New("no active session in context")

// ErrSessionNotFound is returned by SessionStore.Get for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrLLM is a provider invocation failure (marshal, transport, decode).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx provider response. RetryAfter is parsed from the
// Retry-After header when present (429/503), for retry middleware.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value: either delay seconds
// ("120") or an HTTP date. Returns 0 for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
