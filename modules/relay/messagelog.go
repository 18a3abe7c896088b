package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/collab-chat-relay/domain/chat"
)

// MessageLog is the ordered, in-memory message history.
// It is not safe for concurrent use; the Relay actor owns it.
type MessageLog struct {
	messages []chat.Message
	limit    int // 0 keeps everything
	now      func() time.Time
}

// NewMessageLog creates a log that keeps at most limit messages, evicting the
// oldest first. A limit of 0 disables eviction.
func NewMessageLog(limit int, now func() time.Time) *MessageLog {
	if limit < 0 {
		limit = 0
	}
	if now == nil {
		now = time.Now
	}
	return &MessageLog{
		messages: make([]chat.Message, 0),
		limit:    limit,
		now:      now,
	}
}

// Append stores a new message and returns it.
func (l *MessageLog) Append(author, body string, isBot bool) chat.Message {
	msg := chat.Message{
		ID:        newMessageID(),
		Username:  author,
		Text:      body,
		Timestamp: l.now().UnixMilli(),
		IsAI:      isBot,
	}

	l.messages = append(l.messages, msg)
	if l.limit > 0 && len(l.messages) > l.limit {
		l.messages = l.messages[len(l.messages)-l.limit:]
	}
	return msg
}

// History returns a copy of every stored message, oldest first.
func (l *MessageLog) History() []chat.Message {
	return l.Recent(0)
}

// Recent returns a copy of the last n messages, oldest first. n <= 0 returns all.
func (l *MessageLog) Recent(n int) []chat.Message {
	if n <= 0 || n > len(l.messages) {
		n = len(l.messages)
	}
	result := make([]chat.Message, n)
	copy(result, l.messages[len(l.messages)-n:])
	return result
}

// Len returns the number of stored messages.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// newMessageID returns a time-ordered UUIDv7 so ids sort in append order.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
