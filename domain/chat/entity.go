package chat

// Validation limits shared by the relay and the transport.
const (
	MaxUsernameLength = 20
	MaxMessageLength  = 1000
)

// Message represents a chat message.
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	IsAI      bool   `json:"isAI"`
}

// Presence is one entry of the users list.
type Presence struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MentionRequest is handed to the bot when a message mentions it.
// Context holds the most recent messages, oldest first, trigger included.
type MentionRequest struct {
	Trigger Message   `json:"trigger"`
	Context []Message `json:"context"`
}

// Snapshot is a consistent read of the relay state.
type Snapshot struct {
	History []Message  `json:"history"`
	Users   []Presence `json:"users"`
	Typing  []string   `json:"typing"`
}
