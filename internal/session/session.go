// Package session implements the godex streaming session: it owns at most one
// live server-push connection or preview timer at a time, translates transport
// frames into domain stream events, and implements reconnect-with-resume plus
// graceful degradation to a locally synthesized preview stream.
package session

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"godex/internal/chat"
	"godex/internal/storage"
)

// DefaultEndpoint is the streaming endpoint used when none is configured.
const DefaultEndpoint = "http://127.0.0.1:8080/api/godex/stream"

// DefaultDelay is the inter-event delay of the preview generator.
const DefaultDelay = 650 * time.Millisecond

// DefaultScript is the canned preview response, one delta per line.
var DefaultScript = []string{
	"Synthesizing mission context and prioritizing blockers…",
	"Queueing environment diagnostics and dependency checks…",
	"Planning execution timeline with parallel validation tracks…",
	"Packaging deliverables and next actions for the team.",
}

// Advisory messages surfaced through Handlers.OnError. None of these are
// fatal; the turn continues on the preview stream.
const (
	noticeConnectFailed   = "Unable to connect to streaming endpoint. Showing preview response."
	noticeConnectionLost  = "Connection lost. Falling back to local preview stream."
	noticeResumeDowngrade = "Connection lost. Showing preview response instead."
)

// Handlers receive the domain events of a turn. For one handler registration
// the session guarantees exactly one streaming status before any delta,
// deltas and metadata in emission order, and exactly one terminal event,
// last. OnError carries user-visible advisories and server-reported errors
// are delivered as events, not through OnError.
type Handlers struct {
	OnEvent func(chat.Event)
	OnError func(message string)
	OnClose func()
}

func (h Handlers) event(ev chat.Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (h Handlers) advise(message string) {
	if h.OnError != nil {
		h.OnError(message)
	}
}

func (h Handlers) close() {
	if h.OnClose != nil {
		h.OnClose()
	}
}

// Options configures a Session. Zero values fall back to the defaults above.
type Options struct {
	Endpoint string
	Client   *http.Client
	Script   []string
	Delay    time.Duration
	Logger   *zap.Logger
}

// Session drives the streaming half of a turn. It holds at most one
// outstanding transport resource; starting a new turn or resuming always
// tears down the previous one first.
type Session struct {
	endpoint string
	client   *http.Client
	store    storage.Store
	logger   *zap.Logger
	script   []string
	delay    time.Duration

	mu             sync.Mutex
	gen            uint64 // bumped on every teardown; stale callbacks check it
	stop           func() // cancels the live read loop, nil when idle
	timer          *time.Timer
	conversationID string
	messageID      string
	lastEventID    string
	eventSeq       int
}

// New creates a streaming session persisting resumption state to store.
func New(store storage.Store, opts Options) *Session {
	s := &Session{
		endpoint: opts.Endpoint,
		client:   opts.Client,
		store:    store,
		logger:   opts.Logger,
		script:   opts.Script,
		delay:    opts.Delay,
	}
	if s.endpoint == "" {
		s.endpoint = DefaultEndpoint
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if len(s.script) == 0 {
		s.script = DefaultScript
	}
	if s.delay <= 0 {
		s.delay = DefaultDelay
	}
	return s
}

// Start establishes a new turn for the given history, accumulating into the
// message identified by messageID. It attempts the live transport first and
// degrades to the preview generator when the connection cannot be built. The
// streaming status event is emitted synchronously, after the active-stream
// pointer is persisted and before any data arrives.
func (s *Session) Start(history []*chat.Message, messageID string, h Handlers) {
	s.mu.Lock()
	s.teardownLocked()
	s.conversationID = uuid.NewString()
	s.messageID = messageID
	s.lastEventID = ""
	s.eventSeq = 0
	conversationID := s.conversationID
	s.mu.Unlock()

	body, err := s.connect(streamURL(s.endpoint, history, conversationID, false, ""))
	if err != nil {
		s.logger.Warn("Live transport unavailable", zap.Error(err))
		h.advise(noticeConnectFailed)
		s.runFallback(0, h)
		return
	}

	s.store.SaveActiveStream(&storage.ActiveStream{
		ConversationID: conversationID,
		MessageID:      messageID,
		Mode:           storage.ModeSSE,
	})
	h.event(chat.Event{Type: chat.EventStatus, Status: chat.StatusStreaming})
	s.consume(body, h)
}

// Resume continues an interrupted turn from the persisted active-stream
// pointer. It returns false, with no side effects, when there is nothing to
// resume. A preview turn restarts from its saved cursor; a live turn reopens
// the transport with the last delivered event id so the server can replay
// only undelivered events, degrading to the preview stream when the
// reconnect fails.
func (s *Session) Resume(h Handlers) bool {
	ptr := s.store.LoadActiveStream()
	if ptr == nil {
		return false
	}

	s.mu.Lock()
	s.teardownLocked()
	s.conversationID = ptr.ConversationID
	s.messageID = ptr.MessageID
	s.lastEventID = ptr.LastEventID
	s.eventSeq = 0
	s.mu.Unlock()

	if ptr.Mode == storage.ModeFallback {
		s.logger.Info("Resuming preview stream", zap.Int("cursor", ptr.FallbackIndex))
		s.runFallback(ptr.FallbackIndex, h)
		return true
	}

	body, err := s.connect(streamURL(s.endpoint, nil, ptr.ConversationID, true, ptr.LastEventID))
	if err != nil {
		s.logger.Warn("Reconnect failed, downgrading to preview", zap.Error(err))
		h.advise(noticeResumeDowngrade)
		// No replay cursor exists for a live turn; the preview restarts whole.
		s.runFallback(0, h)
		return true
	}

	s.store.SaveActiveStream(ptr)
	h.event(chat.Event{Type: chat.EventStatus, Status: chat.StatusStreaming})
	s.consume(body, h)
	return true
}

// Stop tears down any outstanding transport or timer and clears the
// active-stream pointer. It does not change message status; the caller
// decides how to mark the in-flight message.
func (s *Session) Stop() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
	s.store.ClearActiveStream()
}

// teardownLocked releases the outstanding resource, if any, and invalidates
// callbacks still in flight. Idempotent; callers hold s.mu.
func (s *Session) teardownLocked() {
	s.gen++
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// deliver dispatches one domain event from the live transport. Terminal
// events clear the active-stream pointer before handler dispatch, so a crash
// immediately afterwards cannot resume an already-finished turn. Returns
// false when the event belongs to a torn-down turn and was discarded.
func (s *Session) deliver(gen uint64, ev chat.Event, frameID string, h Handlers) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}

	if ev.Terminal() {
		s.teardownLocked()
		s.mu.Unlock()
		s.store.ClearActiveStream()
		h.event(ev)
		h.close()
		return false
	}

	if frameID != "" {
		s.lastEventID = frameID
	} else {
		// Servers without native event ids still get a monotonic token.
		s.eventSeq++
		s.lastEventID = strconv.Itoa(s.eventSeq)
	}
	ptr := &storage.ActiveStream{
		ConversationID: s.conversationID,
		MessageID:      s.messageID,
		Mode:           storage.ModeSSE,
		LastEventID:    s.lastEventID,
	}
	s.mu.Unlock()

	s.store.SaveActiveStream(ptr)
	h.event(ev)
	return true
}

// failover handles a mid-stream transport failure: the read loop ended
// without a terminal event. The turn transparently continues on the preview
// generator under the same conversation id, so it still converges.
func (s *Session) failover(gen uint64, h Handlers) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.logger.Warn("Live stream interrupted, falling back to preview")
	h.advise(noticeConnectionLost)
	s.runFallback(0, h)
}

// runFallback starts the preview generator at the given script index. The
// streaming status is emitted once, then one delta per remaining line at the
// configured delay, with the replay cursor persisted before each emission.
func (s *Session) runFallback(from int, h Handlers) {
	s.mu.Lock()
	s.teardownLocked()
	if s.conversationID == "" {
		s.conversationID = uuid.NewString()
	}
	gen := s.gen
	s.mu.Unlock()

	h.event(chat.Event{Type: chat.EventStatus, Status: chat.StatusStreaming})
	s.emitPreview(gen, from, h)
}

func (s *Session) emitPreview(gen uint64, idx int, h Handlers) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	conversationID, messageID := s.conversationID, s.messageID

	if idx >= len(s.script) {
		s.gen++
		s.mu.Unlock()
		s.store.ClearActiveStream()
		h.event(chat.Event{Type: chat.EventStatus, Status: chat.StatusCompleted})
		h.close()
		return
	}
	line := s.script[idx]
	s.mu.Unlock()

	s.store.SaveActiveStream(&storage.ActiveStream{
		ConversationID: conversationID,
		MessageID:      messageID,
		Mode:           storage.ModeFallback,
		FallbackIndex:  idx + 1,
	})
	h.event(chat.Event{Type: chat.EventDelta, Delta: line + "\n\n"})

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.emitPreview(gen, idx+1, h)
	})
	s.mu.Unlock()
}
