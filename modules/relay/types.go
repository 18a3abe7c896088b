package relay

import "github.com/example/collab-chat-relay/domain/chat"

// Service names registered by the relay module.
const (
	ServicePostBotReply = "post-bot-reply"
	ServiceSnapshot     = "snapshot"
)

// PostBotReplyRequest asks the relay to append and broadcast a bot message.
type PostBotReplyRequest struct {
	Text string `json:"text"`
}

// PostBotReplyResponse returns the stored bot message.
type PostBotReplyResponse struct {
	Message chat.Message `json:"message"`
}

// SnapshotRequest asks for the current relay state.
type SnapshotRequest struct{}

// SnapshotResponse carries the relay state.
type SnapshotResponse struct {
	Snapshot chat.Snapshot `json:"snapshot"`
}
