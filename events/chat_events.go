package events

import (
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/collab-chat-relay/domain/chat"
)

// MessagePostedEvent is emitted after a message is appended to the log and broadcast.
type MessagePostedEvent struct {
	Message chat.Message `json:"message"`
}

// UserJoinedEvent is emitted when a connection joins under a display name.
type UserJoinedEvent struct {
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
	Timestamp    int64  `json:"timestamp"`
}

// UserLeftEvent is emitted when a joined connection disconnects.
type UserLeftEvent struct {
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
	Timestamp    int64  `json:"timestamp"`
}

// MentionRequestedEvent is emitted when a human message mentions the bot.
type MentionRequestedEvent struct {
	Request chat.MentionRequest `json:"request"`
}

// Event definitions for the chat domain.
var (
	MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
		"chat",
		"MessagePosted",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"chat",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"chat",
		"UserLeft",
		"v1",
	)

	MentionRequestedV1 = helper.EventDefinition[MentionRequestedEvent](
		"chat",
		"MentionRequested",
		"v1",
	)
)
