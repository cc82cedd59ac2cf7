// Package controller binds user input, the message model, the streaming
// session and the persistence store into one conversation: it creates
// messages, folds stream events into them, enforces the status state machine,
// and writes the full transcript through to storage after every change.
package controller

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"godex/internal/chat"
	"godex/internal/session"
	"godex/internal/storage"
)

// StoppedByUser is the displayable error recorded when a turn is cancelled.
const StoppedByUser = "Generation stopped by user."

// State is the copy-out projection handed to renderers. Unknown part types
// inside Messages must be treated as ignorable.
type State struct {
	Messages        []*chat.Message
	Metadata        []chat.MetadataEntry
	IsStreaming     bool
	Err             string
	ActiveMessageID string
}

// Controller owns the authoritative message and metadata lists. The streaming
// session never mutates messages directly; it only emits events which the
// controller folds in here, one at a time under the mutex.
type Controller struct {
	mu       sync.Mutex
	store    storage.Store
	session  *session.Session
	logger   *zap.Logger
	onChange func(State)

	messages    []*chat.Message
	metadata    []chat.MetadataEntry
	isStreaming bool
	errText     string
	activeID    string
}

// New builds a controller and rehydrates any persisted conversation.
// Snapshots that fail to deserialize are skipped, not fatal.
func New(store storage.Store, sess *session.Session, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{store: store, session: sess, logger: logger}

	if st := store.LoadState(); st != nil {
		for _, snap := range st.Messages {
			m, err := chat.Deserialize(snap)
			if err != nil {
				logger.Warn("Skipping unreadable message snapshot",
					zap.String("id", snap.ID), zap.Error(err))
				continue
			}
			c.messages = append(c.messages, m)
		}
		c.metadata = st.Metadata
		c.isStreaming = st.IsStreaming
		c.activeID = st.ActiveMessageID
	}
	return c
}

// SetOnChange registers a hook invoked after every dispatched state change,
// with a copy of the new state. Used by renderers.
func (c *Controller) SetOnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Send submits user input and starts a new turn. It is a no-op (returning
// false) when the text is blank after trimming or a turn is already active.
func (c *Controller) Send(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	c.mu.Lock()
	if c.isStreaming || c.activeID != "" {
		c.mu.Unlock()
		return false
	}

	user := chat.NewUserMessage(trimmed)
	c.messages = append(c.messages, user)
	c.metadata = nil
	c.errText = ""

	// History for the transport: everything up to and including the new
	// user message, without the placeholder.
	history := make([]*chat.Message, len(c.messages))
	copy(history, c.messages)

	placeholder := chat.NewAssistantPlaceholder()
	c.messages = append(c.messages, placeholder)
	c.activeID = placeholder.ID
	c.isStreaming = true

	c.persistLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)

	c.session.Start(history, placeholder.ID, c.handlers(placeholder.ID))
	return true
}

// ResumeOnLoad resumes an interrupted turn after a restart. When the
// persisted snapshot shows no active stream, or the session has nothing to
// resume, it returns false without touching the persisted status.
func (c *Controller) ResumeOnLoad() bool {
	c.mu.Lock()
	if !c.isStreaming || c.activeID == "" {
		c.mu.Unlock()
		return false
	}
	id := c.activeID
	c.mu.Unlock()

	return c.session.Resume(c.handlers(id))
}

// Stop cancels the active turn: the session tears down its transport and
// clears the active-stream pointer, and the in-flight message is marked
// errored with a standard cancellation message.
func (c *Controller) Stop() {
	c.session.Stop()

	c.mu.Lock()
	if m := c.findLocked(c.activeID); m != nil {
		m.Fail()
		c.errText = StoppedByUser
	}
	c.activeID = ""
	c.isStreaming = false
	c.persistLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)
}

// ClearError dismisses the advisory banner.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.errText = ""
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)
}

// State returns a copy of the current conversation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) handlers(id string) session.Handlers {
	return session.Handlers{
		OnEvent: func(ev chat.Event) { c.handleEvent(id, ev) },
		OnError: func(message string) { c.advise(message) },
		OnClose: func() { c.resetStream() },
	}
}

// handleEvent folds one stream event into the message model and writes the
// new state through to the store. Events addressed to a message already in a
// terminal state are ignored, which makes the handlers idempotent against
// frames delivered after teardown.
func (c *Controller) handleEvent(id string, ev chat.Event) {
	c.mu.Lock()
	switch ev.Type {
	case chat.EventDelta:
		if m := c.findLocked(id); m != nil && !m.Status.Terminal() {
			m.Append(ev.Delta)
		}
	case chat.EventStatus:
		c.transitionLocked(id, ev.Status)
	case chat.EventError:
		c.transitionLocked(id, chat.StatusErrored)
		c.errText = ev.Message
		c.isStreaming = false
		c.activeID = ""
	case chat.EventMetadata:
		c.upsertMetadataLocked(chat.MetadataEntry{Label: ev.Label, Value: ev.Value})
	}
	c.persistLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)
}

// transitionLocked applies a status event to the addressed message.
// Transitions out of a terminal state are refused here, not assumed away by
// trusting the transport.
func (c *Controller) transitionLocked(id string, status chat.Status) {
	m := c.findLocked(id)
	if m == nil || m.Status.Terminal() {
		return
	}
	switch status {
	case chat.StatusCompleted:
		m.Complete()
	case chat.StatusErrored:
		m.Fail()
	default:
		m.Status = status
		m.IsStreaming = status == chat.StatusStreaming
	}
	c.isStreaming = status == chat.StatusStreaming
	if status.Terminal() {
		c.activeID = ""
	}
}

// advise surfaces a non-fatal advisory. The turn keeps running (typically on
// the preview stream), so only the banner text changes.
func (c *Controller) advise(message string) {
	c.logger.Info("Stream advisory", zap.String("message", message))
	c.mu.Lock()
	c.errText = message
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)
}

func (c *Controller) resetStream() {
	c.mu.Lock()
	c.isStreaming = false
	c.activeID = ""
	c.persistLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)
}

func (c *Controller) upsertMetadataLocked(entry chat.MetadataEntry) {
	for i := range c.metadata {
		if c.metadata[i].Label == entry.Label {
			c.metadata = append(c.metadata[:i], c.metadata[i+1:]...)
			break
		}
	}
	c.metadata = append(c.metadata, entry)
}

func (c *Controller) findLocked(id string) *chat.Message {
	if id == "" {
		return nil
	}
	for _, m := range c.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// persistLocked writes the full transcript snapshot through to the store.
// Deliberately synchronous with every dispatch: a crash between render and
// persistence loses at most the final in-memory delta, never the pointer
// needed to resume.
func (c *Controller) persistLocked() {
	snapshots := make([]chat.Snapshot, len(c.messages))
	for i, m := range c.messages {
		snapshots[i] = m.Serialize()
	}
	c.store.SaveState(&storage.StoredState{
		Messages:        snapshots,
		Metadata:        c.metadata,
		IsStreaming:     c.isStreaming,
		ActiveMessageID: c.activeID,
	})
}

func (c *Controller) stateLocked() State {
	msgs := make([]*chat.Message, len(c.messages))
	for i, m := range c.messages {
		msgs[i] = m.Clone()
	}
	meta := make([]chat.MetadataEntry, len(c.metadata))
	copy(meta, c.metadata)
	return State{
		Messages:        msgs,
		Metadata:        meta,
		IsStreaming:     c.isStreaming,
		Err:             c.errText,
		ActiveMessageID: c.activeID,
	}
}

func (c *Controller) notify(state State) {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}
