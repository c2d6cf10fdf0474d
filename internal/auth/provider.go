// Package auth supplies upstream credentials and URL building for the
// two Vertex authentication modes: service-account (application default
// credentials with a refreshed bearer token) and api-key (express mode,
// key carried in the URL query).
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

// ErrNoValidToken is returned by GetHeaders when no usable access token
// exists after a refresh attempt.
var ErrNoValidToken = errors.New("no valid token available")

// ErrUnsupportedOperation is returned when a capability is invoked on an
// auth mode that cannot perform it.
var ErrUnsupportedOperation = errors.New("operation not supported by auth mode")

// Provider abstracts the upstream identity. GetHeaders may block to
// refresh credentials; URL builders are pure. Start and Stop bracket the
// background refresh lifecycle and are no-ops for modes without one.
type Provider interface {
	GetHeaders(ctx context.Context) (map[string]string, error)
	BuildCompletionsURL(path string) (string, error)
	BuildGenerateURL(model, method string) string
	BuildModelsURL(publisher string) string
	Start(ctx context.Context)
	Stop()
}

// TokenPersister stores a refreshed access token so a restart does not
// need to re-authenticate immediately.
type TokenPersister interface {
	SaveToken(ctx context.Context, accessToken string, expiry time.Time) error
}

// NewProvider selects the Provider variant from the configured mode.
// This factory and the router's per-mode route selection are the only
// places that branch on the auth mode.
func NewProvider(cfg *config.Config, persist TokenPersister, httpClient *http.Client) Provider {
	if cfg.AuthMode() == config.AuthModeAPIKey {
		return NewAPIKeyAuth(cfg.APIKey)
	}
	return NewServiceAccountAuth(cfg, persist, httpClient)
}
