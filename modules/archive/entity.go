package archive

import (
	"time"

	"github.com/example/collab-chat-relay/domain/chat"
)

// ArchivedMessage is a chat message mirrored to SQLite.
type ArchivedMessage struct {
	ID         string    `gorm:"primarykey;size:36" json:"id"`
	Username   string    `gorm:"size:64;not null;index" json:"username"`
	Text       string    `gorm:"size:4000;not null" json:"text"`
	Timestamp  int64     `gorm:"not null;index" json:"timestamp"`
	IsAI       bool      `gorm:"not null;default:false" json:"isAI"`
	ArchivedAt time.Time `gorm:"autoCreateTime" json:"archived_at"`
}

// TableName returns the table name for ArchivedMessage.
func (ArchivedMessage) TableName() string {
	return "chat_messages"
}

// FromMessage converts a chat message for storage.
func FromMessage(msg chat.Message) *ArchivedMessage {
	return &ArchivedMessage{
		ID:        msg.ID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		IsAI:      msg.IsAI,
	}
}

// Message converts back to the wire type.
func (a *ArchivedMessage) Message() chat.Message {
	return chat.Message{
		ID:        a.ID,
		Username:  a.Username,
		Text:      a.Text,
		Timestamp: a.Timestamp,
		IsAI:      a.IsAI,
	}
}
