package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ArchivePort is the view of the archive available to dependent modules.
type ArchivePort interface {
	Recent(ctx context.Context, username string, limit int) (RecentResponse, error)
}

// ArchiveAdapter implements ArchivePort over the archive module's services.
type ArchiveAdapter struct {
	container mono.ServiceContainer
}

// NewArchiveAdapter creates an ArchiveAdapter.
func NewArchiveAdapter(container mono.ServiceContainer) ArchivePort {
	if container == nil {
		panic("archive: ServiceContainer is nil")
	}
	return &ArchiveAdapter{container: container}
}

// Recent returns the newest archived messages.
func (a *ArchiveAdapter) Recent(ctx context.Context, username string, limit int) (RecentResponse, error) {
	req := RecentRequest{Username: username, Limit: limit}
	var resp RecentResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecent,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return RecentResponse{}, fmt.Errorf("failed to read archive: %w", err)
	}
	return resp, nil
}
