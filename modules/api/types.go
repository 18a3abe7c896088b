package api

import "github.com/example/collab-chat-relay/domain/chat"

// HistoryResponse is the API response for the live message log.
type HistoryResponse struct {
	Messages []chat.Message `json:"messages"`
	Total    int            `json:"total"`
}

// UsersResponse is the API response for the joined users and who is typing.
type UsersResponse struct {
	Users  []chat.Presence `json:"users"`
	Typing []string        `json:"typing"`
}

// ArchiveResponse is the API response for archived transcripts.
type ArchiveResponse struct {
	Messages []chat.Message `json:"messages"`
	Total    int64          `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
