package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"godex/internal/chat"
)

// streamURL builds the GET endpoint for a turn. History is serialized as the
// plain {role, content} projection; resume requests carry resume=1 and the
// last delivered event id so the server replays only undelivered events.
func streamURL(endpoint string, history []*chat.Message, conversationID string, resume bool, lastEventID string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		// Let connect surface the failure.
		return endpoint
	}

	q := u.Query()
	if history != nil {
		type entry struct {
			Role    chat.Role `json:"role"`
			Content string    `json:"content"`
		}
		entries := make([]entry, len(history))
		for i, m := range history {
			entries[i] = entry{Role: m.Role, Content: m.Content()}
		}
		if data, err := json.Marshal(entries); err == nil {
			q.Set("messages", string(data))
		}
	}
	q.Set("conversationId", conversationID)
	if resume {
		q.Set("resume", "1")
		if lastEventID != "" {
			q.Set("lastEventId", lastEventID)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// connect opens the server-push stream. Any failure here counts as transport
// construction failure and the caller degrades to the preview generator.
func (s *Session) connect(rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to streaming endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("streaming endpoint returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// consume registers the live stream as the session's outstanding resource and
// starts the read loop.
func (s *Session) consume(body io.ReadCloser, h Handlers) {
	s.mu.Lock()
	gen := s.gen
	s.stop = func() { body.Close() }
	s.mu.Unlock()

	go s.readLoop(gen, body, h)
}

// readLoop parses SSE frames from the response body. Each data payload is
// decoded into a domain event (malformed payloads degrade to raw text
// deltas). A read loop that ends without having delivered a terminal event
// is a mid-stream disconnect and triggers failover.
func (s *Session) readLoop(gen uint64, body io.ReadCloser, h Handlers) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventData bytes.Buffer
	var frameID string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// End of frame
			payload := strings.TrimSuffix(eventData.String(), "\n")
			eventData.Reset()
			id := frameID
			frameID = ""
			if payload == "" {
				continue
			}
			ev := chat.ParseEvent(payload)
			s.logger.Debug("Stream frame",
				zap.String("type", string(ev.Type)),
				zap.String("id", id))
			if !s.deliver(gen, ev, id, h) {
				// Turn ended or was torn down; stop reading.
				return
			}
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			eventData.WriteString(strings.TrimPrefix(line, "data: "))
			eventData.WriteByte('\n')
		} else if strings.HasPrefix(line, "id: ") {
			frameID = strings.TrimPrefix(line, "id: ")
		} else if strings.HasPrefix(line, ":") {
			// Comment, ignore
		}
		// event: and retry: fields are ignored; every frame is a message.
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("Stream read error", zap.Error(err))
	}

	s.failover(gen, h)
}
