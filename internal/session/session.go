// Package session holds the per-name conversation state shared by HTTP and
// socket clients, backed by the durable KV store.
package session

import (
	"sync"
	"time"

	"github.com/parcom/reviewd/internal/review"
)

// HistoryPreviewLen caps the stored preview of each conversation turn.
const HistoryPreviewLen = 500

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the singleton state for one session name. All connections
// bound to the same name share one instance. The embedded mutex serializes
// every mutation and every review run; callers hold it across an entire
// operation, including the model call, so messages on one session never
// interleave.
type Session struct {
	sync.Mutex

	name     string
	hydrated bool

	history []Message
	reviews []review.Review
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// AppendMessage records a conversation turn, truncating the stored preview.
// Caller must hold the lock.
func (s *Session) AppendMessage(role, content string) {
	s.history = append(s.history, Message{
		Role:      role,
		Content:   review.Truncate(content, HistoryPreviewLen),
		Timestamp: time.Now().UTC(),
	})
}

// AppendReview records a completed review. Caller must hold the lock.
func (s *Session) AppendReview(r review.Review) {
	s.reviews = append(s.reviews, r)
}

// History returns a copy of the message history. Caller must hold the lock.
func (s *Session) History() []Message {
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Reviews returns a copy of the completed reviews. Caller must hold the
// lock.
func (s *Session) Reviews() []review.Review {
	out := make([]review.Review, len(s.reviews))
	copy(out, s.reviews)
	return out
}

// Counts returns the number of reviews and history messages. Caller must
// hold the lock.
func (s *Session) Counts() (reviews, messages int) {
	return len(s.reviews), len(s.history)
}
