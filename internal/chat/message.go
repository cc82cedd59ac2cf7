// Package chat provides the conversational message model shared across godex packages:
// roles, the message status state machine, ordered content parts, attachments, and the
// snapshot form used for persistence and transport.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Status is the lifecycle state of a message.
// Valid transitions: queued -> streaming -> completed, streaming -> errored,
// and queued -> completed for messages that never stream (user input).
// Completed and errored are terminal.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// Part type tags. These match the persisted JSON shape produced by the
// legacy-content migration, so stored parts and live parts are interchangeable.
const (
	PartText           = "text"
	PartReasoning      = "reasoning"
	PartToolInvocation = "tool-invocation"
)

// ToolInvocation records a tool call request or its result.
// Invariant: state "call" carries Args and no Result; state "result" carries
// Result and no Args.
type ToolInvocation struct {
	ToolName   string                 `json:"toolName"`
	ToolCallID string                 `json:"toolCallId"`
	State      string                 `json:"state"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Result     interface{}            `json:"result,omitempty"`
}

// Part is one tagged fragment of message content.
// Exactly one of the variant fields is populated, selected by Type.
// Renderers must ignore parts with types they do not recognize.
type Part struct {
	Type           string          `json:"type"`
	Text           string          `json:"text,omitempty"`
	Reasoning      string          `json:"reasoning,omitempty"`
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ReasoningPart builds a reasoning part.
func ReasoningPart(reasoning string) Part {
	return Part{Type: PartReasoning, Reasoning: reasoning}
}

// Attachment is an opaque record attached to a message, independent of parts.
type Attachment struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name,omitempty"`
	Type     string                 `json:"type,omitempty"`
	URL      string                 `json:"url,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataEntry is a labeled value surfaced alongside the transcript.
// A conversation holds at most one entry per label.
type MetadataEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Message is the unit the session engine operates on. ID, Role and CreatedAt
// are fixed at construction; parts, attachments, status and the timestamps
// mutate as a turn progresses. IsStreaming is redundant with
// Status == StatusStreaming and must always agree with it.
type Message struct {
	ID          string
	Role        Role
	Parts       []Part
	Attachments []Attachment
	Status      Status
	IsStreaming bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func newMessage(role Role, status Status) *Message {
	now := time.Now()
	return &Message{
		ID:          uuid.NewString(),
		Role:        role,
		Status:      status,
		IsStreaming: status == StatusStreaming,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewUserMessage builds a completed, non-streaming user message with a single
// text part, or no parts when text is empty.
func NewUserMessage(text string) *Message {
	m := newMessage(RoleUser, StatusCompleted)
	if text != "" {
		m.Parts = []Part{TextPart(text)}
	}
	return m
}

// NewAssistantPlaceholder builds the streaming assistant message a turn
// accumulates into. It starts with zero parts.
func NewAssistantPlaceholder() *Message {
	return newMessage(RoleAssistant, StatusStreaming)
}

// Append folds a text delta into the message. Empty deltas are a no-op.
// The delta coalesces into the trailing part when that part is text;
// otherwise a new text part is appended. Status is not touched.
func (m *Message) Append(delta string) {
	if delta == "" {
		return
	}
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == PartText {
		m.Parts[n-1].Text += delta
	} else {
		m.Parts = append(m.Parts, TextPart(delta))
	}
	m.touch()
}

// Complete marks the message completed. When finalText is given, the entire
// part sequence is replaced by a single text part carrying it — a full
// replace, discarding any reasoning or tool parts accumulated so far.
func (m *Message) Complete(finalText ...string) {
	if len(finalText) > 0 {
		m.Parts = []Part{TextPart(finalText[0])}
	}
	m.Status = StatusCompleted
	m.IsStreaming = false
	m.touch()
}

// Fail marks the message errored, leaving its parts untouched.
func (m *Message) Fail() {
	m.Status = StatusErrored
	m.IsStreaming = false
	m.touch()
}

// ReplaceParts swaps in a structured part sequence delivered by the transport.
func (m *Message) ReplaceParts(parts []Part) {
	m.Parts = parts
	m.touch()
}

// Content returns the ordered concatenation of all text-part contents — the
// plain view used for transport history payloads and display fallback.
func (m *Message) Content() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Clone returns a structural copy safe to mutate while the original is read.
func (m *Message) Clone() *Message {
	c := *m
	if m.Parts != nil {
		c.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			c.Parts[i] = p.Clone()
		}
	}
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			c.Attachments[i] = a.Clone()
		}
	}
	return &c
}

func (m *Message) touch() {
	m.UpdatedAt = time.Now()
}

// Snapshot is the serialized form of a message. Content is redundant with
// Parts but included so consumers get the plain view without re-deriving it.
// Timestamps are RFC 3339.
type Snapshot struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Parts       []Part       `json:"parts"`
	Attachments []Attachment `json:"attachments"`
	Content     string       `json:"content"`
	Status      Status       `json:"status"`
	IsStreaming bool         `json:"isStreaming"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

// Serialize produces the snapshot form of the message.
func (m *Message) Serialize() Snapshot {
	return Snapshot{
		ID:          m.ID,
		Role:        m.Role,
		Parts:       m.Parts,
		Attachments: m.Attachments,
		Content:     m.Content(),
		Status:      m.Status,
		IsStreaming: m.IsStreaming,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   m.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// Deserialize rebuilds a message from its snapshot form. The round trip is
// lossless for parts, attachments, status and both timestamps.
func Deserialize(s Snapshot) (*Message, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt %q: %w", s.CreatedAt, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updatedAt %q: %w", s.UpdatedAt, err)
	}
	return &Message{
		ID:          s.ID,
		Role:        s.Role,
		Parts:       s.Parts,
		Attachments: s.Attachments,
		Status:      s.Status,
		IsStreaming: s.IsStreaming,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
