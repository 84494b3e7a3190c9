package strand

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is end-user input.
	RoleUser Role = "user"
	// RoleModel is output produced by the model.
	RoleModel Role = "model"
	// RoleSystem is instruction text injected ahead of the conversation.
	RoleSystem Role = "system"
	// RoleTool carries tool execution results back to the model.
	RoleTool Role = "tool"
)

// PartKind discriminates the Part union.
type PartKind string

const (
	PartText         PartKind = "text"
	PartMedia        PartKind = "media"
	PartToolRequest  PartKind = "toolRequest"
	PartToolResponse PartKind = "toolResponse"
	PartData         PartKind = "data"
	PartReasoning    PartKind = "reasoning"
)

// Metadata keys used by the generation loop and the chat layer.
const (
	// MetadataInterrupt marks a toolRequest part whose handler interrupted
	// instead of returning. The value is the interrupt payload.
	MetadataInterrupt = "interrupt"
	// MetadataPendingOutput marks a toolRequest part that resolved
	// successfully in a turn that was halted by a sibling's interrupt. The
	// value is the resolved output, visible but not yet committed as a
	// tool message.
	MetadataPendingOutput = "pendingOutput"
	// MetadataPreamble marks messages injected at the start of an agent's
	// thread (typically the system prompt) so they can be filtered when the
	// history is replayed elsewhere.
	MetadataPreamble = "preamble"
)

// Media is inline or referenced binary content.
type Media struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// ToolRequest is the model asking for a tool invocation. Ref is an opaque
// correlation id issued by the provider; it must round-trip unchanged onto
// the paired ToolResponse.
type ToolRequest struct {
	Name  string          `json:"name"`
	Ref   string          `json:"ref,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResponse is the result of a tool invocation, paired to its request
// by Ref.
type ToolResponse struct {
	Name   string `json:"name"`
	Ref    string `json:"ref,omitempty"`
	Output any    `json:"output,omitempty"`
}

// Part is one element of a message's content. Exactly one variant field is
// populated, indicated by Kind.
type Part struct {
	Kind         PartKind        `json:"kind"`
	Text         string          `json:"text,omitempty"` // PartText and PartReasoning
	Media        *Media          `json:"media,omitempty"`
	ToolRequest  *ToolRequest    `json:"toolRequest,omitempty"`
	ToolResponse *ToolResponse   `json:"toolResponse,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) *Part {
	return &Part{Kind: PartText, Text: text}
}

// NewReasoningPart creates a reasoning (thinking) part.
func NewReasoningPart(text string) *Part {
	return &Part{Kind: PartReasoning, Text: text}
}

// NewMediaPart creates a media part from a URL (or data URI) and content type.
func NewMediaPart(url, contentType string) *Part {
	return &Part{Kind: PartMedia, Media: &Media{URL: url, ContentType: contentType}}
}

// NewToolRequestPart creates a toolRequest part.
func NewToolRequestPart(name, ref string, input json.RawMessage) *Part {
	return &Part{Kind: PartToolRequest, ToolRequest: &ToolRequest{Name: name, Ref: ref, Input: input}}
}

// NewToolResponsePart creates a toolResponse part. Ref must equal the Ref of
// the request being answered.
func NewToolResponsePart(name, ref string, output any) *Part {
	return &Part{Kind: PartToolResponse, ToolResponse: &ToolResponse{Name: name, Ref: ref, Output: output}}
}

// NewDataPart creates a structured-data part.
func NewDataPart(data json.RawMessage) *Part {
	return &Part{Kind: PartData, Data: data}
}

// SetMetadata sets a metadata key on the part, allocating the map if needed.
func (p *Part) SetMetadata(key string, value any) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any, 1)
	}
	p.Metadata[key] = value
}

// Interrupted returns the interrupt payload and whether the part carries an
// interrupt marker.
func (p *Part) Interrupted() (any, bool) {
	v, ok := p.Metadata[MetadataInterrupt]
	return v, ok
}

// PendingOutput returns the resolved-but-uncommitted output attached to a
// toolRequest part in an interrupted turn.
func (p *Part) PendingOutput() (any, bool) {
	v, ok := p.Metadata[MetadataPendingOutput]
	return v, ok
}

// Message is one conversation turn: a role plus an ordered sequence of
// content parts. Content is non-empty except transiently while a streamed
// message is being accumulated.
type Message struct {
	Role     Role           `json:"role"`
	Content  []*Part        `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewUserTextMessage creates a user message with a single text part.
func NewUserTextMessage(text string) *Message {
	return &Message{Role: RoleUser, Content: []*Part{NewTextPart(text)}}
}

// NewModelTextMessage creates a model message with a single text part.
func NewModelTextMessage(text string) *Message {
	return &Message{Role: RoleModel, Content: []*Part{NewTextPart(text)}}
}

// NewSystemTextMessage creates a system message with a single text part.
func NewSystemTextMessage(text string) *Message {
	return &Message{Role: RoleSystem, Content: []*Part{NewTextPart(text)}}
}

// NewToolMessage creates a tool-role message carrying the given toolResponse
// parts. Tool messages carry only toolResponse parts.
func NewToolMessage(parts ...*Part) *Message {
	return &Message{Role: RoleTool, Content: parts}
}

// Text concatenates the text of all text parts in order.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Reasoning concatenates the text of all reasoning parts in order.
func (m *Message) Reasoning() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Kind == PartReasoning {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ToolResponseParts returns the toolResponse parts in content order.
func (m *Message) ToolResponseParts() []*Part {
	if m == nil {
		return nil
	}
	var out []*Part
	for _, p := range m.Content {
		if p.Kind == PartToolResponse {
			out = append(out, p)
		}
	}
	return out
}

// ToolRequestParts returns the toolRequest parts in content order.
func (m *Message) ToolRequestParts() []*Part {
	if m == nil {
		return nil
	}
	var out []*Part
	for _, p := range m.Content {
		if p.Kind == PartToolRequest {
			out = append(out, p)
		}
	}
	return out
}

// IsPreamble reports whether the message carries the preamble marker.
func (m *Message) IsPreamble() bool {
	v, ok := m.Metadata[MetadataPreamble]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// markPreamble tags the message as preamble, allocating metadata if needed.
func (m *Message) markPreamble() {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any, 1)
	}
	m.Metadata[MetadataPreamble] = true
}

// copyMessages returns a shallow copy of the message slice. Messages
// themselves are shared; callers replace, never mutate, stored histories.
func copyMessages(msgs []*Message) []*Message {
	if msgs == nil {
		return nil
	}
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	return out
}

// stripPreamble returns msgs without preamble-tagged messages.
func stripPreamble(msgs []*Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsPreamble() {
			continue
		}
		out = append(out, m)
	}
	return out
}
