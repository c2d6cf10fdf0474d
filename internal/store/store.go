// Package store persists the bridge's single state document, a JSON
// object carrying the refreshed access token, its expiry, and optionally
// a proxy key. Four interchangeable backends are provided: local file
// (default), PostgreSQL, S3-compatible object storage, and git.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

// StateStore loads and saves the raw state document.
type StateStore interface {
	// Load returns the current document, or nil when none exists yet.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the document.
	Save(ctx context.Context, data []byte) error

	// Close releases backend resources.
	Close() error
}

// NewStateStore selects and bootstraps the backend from configuration.
// configPath anchors the default file backend next to the config file.
func NewStateStore(ctx context.Context, cfg *config.Config, configPath string) (StateStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Type)) {
	case "", "file":
		return NewFileStateStore(stateFilePath(configPath)), nil
	case "postgres":
		return NewPostgresStateStore(ctx, cfg.Store.Postgres)
	case "object":
		return NewObjectStateStore(ctx, cfg.Store.Object)
	case "git":
		return NewGitStateStore(cfg.Store.Git)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Store.Type)
	}
}
