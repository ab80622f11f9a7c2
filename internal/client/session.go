package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sergueidmitriev/slm-chat/internal/api"
)

// Role of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in the conversation transcript. The assistant
// message's Content grows by monotonic append while its stream is live and
// is never rolled back, so partial output survives cancellation.
type ChatMessage struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

// Session holds a conversation transcript and enforces at most one in-flight
// generation: submitting while a stream is active cancels the previous one
// before the new request starts.
type Session struct {
	mu         sync.Mutex
	client     *Client
	messages   []ChatMessage
	cancel     context.CancelFunc
	generation uint64
}

// NewSession creates an empty session over a relay client.
func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// Submit sends a message and streams the assistant reply into the
// transcript, invoking onChunk for each fragment as it lands. It blocks
// until the stream finishes; a concurrent Submit cancels it, in which case
// the returned error is context.Canceled.
func (s *Session) Submit(ctx context.Context, req api.ChatRequest, onChunk func(string)) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.generation++
	gen := s.generation

	now := time.Now()
	s.messages = append(s.messages,
		ChatMessage{
			ID:        messageID(now, len(s.messages)),
			Role:      RoleUser,
			Content:   req.Message,
			Timestamp: now,
		},
		ChatMessage{
			ID:        messageID(now, len(s.messages)+1),
			Role:      RoleAssistant,
			Timestamp: now,
		},
	)
	replyIdx := len(s.messages) - 1
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.generation == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	return s.client.StreamMessage(streamCtx, req, func(chunk string) {
		s.mu.Lock()
		s.messages[replyIdx].Content += chunk
		s.mu.Unlock()
		if onChunk != nil {
			onChunk(chunk)
		}
	})
}

// CancelActive aborts the in-flight stream, if any.
func (s *Session) CancelActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Messages returns a snapshot of the transcript.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// messageID is time-derived and unique within the session; the index breaks
// ties for messages created in the same instant.
func messageID(t time.Time, index int) string {
	return fmt.Sprintf("%d-%d", t.UnixMilli(), index)
}
