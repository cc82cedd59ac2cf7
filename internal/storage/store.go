// Package storage provides the durable side-channel for godex session state:
// two namespaced JSON keys, one holding the full transcript snapshot and one
// holding the active-stream pointer used to resume an interrupted turn.
//
// Contract: loads return nil for missing or unparsable data, and saves are
// best-effort — failures are logged and swallowed, leaving prior persisted
// state in place. Nothing in this package ever raises a persistence failure
// to its caller.
package storage

import "godex/internal/chat"

// Storage keys. Namespaced to survive sharing a kv table with other tools.
const (
	stateKey        = "godex.chat.state"
	activeStreamKey = "godex.chat.activeStream"
)

// StreamMode identifies how an in-flight turn was being delivered.
type StreamMode string

const (
	// ModeSSE is a live server-push connection.
	ModeSSE StreamMode = "sse"
	// ModeFallback is the locally synthesized preview stream.
	ModeFallback StreamMode = "fallback"
)

// StoredState is the serializable projection of the visible conversation,
// written through after every state change.
type StoredState struct {
	Messages        []chat.Snapshot      `json:"messages"`
	Metadata        []chat.MetadataEntry `json:"metadata"`
	IsStreaming     bool                 `json:"isStreaming"`
	ActiveMessageID string               `json:"activeMessageId,omitempty"`
}

// ActiveStream is the durable pointer describing how to resume an in-flight
// turn. It is created when a turn starts, updated after every delivered
// event, and removed when the turn reaches a terminal status or is stopped.
// Its presence is the sole restart-time signal that a turn was interrupted.
type ActiveStream struct {
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	Mode           StreamMode `json:"mode"`
	// LastEventID is the resumption token for ModeSSE.
	LastEventID string `json:"lastEventId,omitempty"`
	// FallbackIndex is the next script index for ModeFallback.
	FallbackIndex int `json:"fallbackIndex,omitempty"`
}

// Store is the persistence capability injected into the session engine.
type Store interface {
	LoadState() *StoredState
	SaveState(state *StoredState)
	ClearState()
	LoadActiveStream() *ActiveStream
	SaveActiveStream(stream *ActiveStream)
	ClearActiveStream()
}
