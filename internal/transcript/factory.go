package transcript

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// per-session JSON file store under dataDir.
func NewStore(ctx context.Context, databaseURL, dataDir string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileStore(dataDir)
	}
	return NewPostgresStore(ctx, databaseURL)
}
