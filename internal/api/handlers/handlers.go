// Package handlers implements the HTTP request handlers of the bridge:
// the OpenAI-compatible chat endpoint, the native Gemini pass-through
// endpoints, and the aggregated model listing, plus the shared proxy
// primitives they are built on.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/auth"
	"github.com/router-for-me/VertexProxyAPI/internal/catalog"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

// Handler carries the shared collaborators of every route: the auth
// provider, the process-wide HTTP client, and a config snapshot getter
// (the snapshot is swapped by the config watcher).
type Handler struct {
	auth    auth.Provider
	client  *http.Client
	cfg     func() *config.Config
	catalog *catalog.Aggregator
}

// New creates the handler set.
func New(provider auth.Provider, client *http.Client, cfg func() *config.Config) *Handler {
	return &Handler{
		auth:    provider,
		client:  client,
		cfg:     cfg,
		catalog: catalog.New(provider, client),
	}
}

// upstreamAuthHeaders fetches upstream auth headers and writes the
// mapped error response when none are obtainable.
func (h *Handler) upstreamAuthHeaders(c *gin.Context) (map[string]string, bool) {
	headers, err := h.auth.GetHeaders(c.Request.Context())
	if err != nil {
		writeAuthError(c, err)
		return nil, false
	}
	return headers, true
}

// writeAuthError maps auth provider errors to HTTP responses.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrUnsupportedOperation):
		Error(c, http.StatusNotImplemented, "invalid_request_error", err.Error())
	case errors.Is(err, auth.ErrNoValidToken):
		Error(c, http.StatusInternalServerError, "authentication_error", err.Error())
	default:
		Error(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}
