package archive

import "github.com/example/collab-chat-relay/domain/chat"

// ServiceRecent is the request-reply service returning archived messages.
const ServiceRecent = "recent"

// Limits for RecentRequest.Limit.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// RecentRequest asks for the newest archived messages.
type RecentRequest struct {
	Username string `json:"username,omitempty"`
	Limit    int    `json:"limit"`
}

// RecentResponse carries archived messages, oldest first.
type RecentResponse struct {
	Messages []chat.Message `json:"messages"`
	Total    int64          `json:"total"`
}
