package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/collab-chat-relay/domain/chat"
)

// RelayPort is the view of the relay available to dependent modules.
type RelayPort interface {
	PostBotReply(ctx context.Context, text string) (chat.Message, error)
	Snapshot(ctx context.Context) (chat.Snapshot, error)
}

// RelayAdapter implements RelayPort over the relay module's request-reply services.
type RelayAdapter struct {
	container mono.ServiceContainer
}

// NewRelayAdapter creates a RelayAdapter.
func NewRelayAdapter(container mono.ServiceContainer) RelayPort {
	if container == nil {
		panic("relay: ServiceContainer is nil")
	}
	return &RelayAdapter{container: container}
}

// PostBotReply appends a bot message through the relay loop.
func (a *RelayAdapter) PostBotReply(ctx context.Context, text string) (chat.Message, error) {
	req := PostBotReplyRequest{Text: text}
	var resp PostBotReplyResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePostBotReply,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return chat.Message{}, fmt.Errorf("failed to post bot reply: %w", err)
	}
	return resp.Message, nil
}

// Snapshot reads the relay state.
func (a *RelayAdapter) Snapshot(ctx context.Context) (chat.Snapshot, error) {
	req := SnapshotRequest{}
	var resp SnapshotResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceSnapshot,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return chat.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return resp.Snapshot, nil
}
