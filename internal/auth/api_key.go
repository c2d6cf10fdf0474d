package auth

import (
	"context"
	"fmt"
	"strings"
)

// apiKeyBaseURL is the express-mode host; express keys only work against
// the global endpoint.
const apiKeyBaseURL = "https://aiplatform.googleapis.com"

// APIKeyAuth implements Provider for Vertex express mode. There is no
// token lifecycle; the key travels in the URL query.
type APIKeyAuth struct {
	apiKey string
}

// NewAPIKeyAuth creates an api-key provider.
func NewAPIKeyAuth(apiKey string) *APIKeyAuth {
	return &APIKeyAuth{apiKey: apiKey}
}

// GetHeaders returns no headers; the key is part of the URL.
func (a *APIKeyAuth) GetHeaders(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// appendKey attaches the API key to a URL, respecting an existing query
// string.
func (a *APIKeyAuth) appendKey(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "key=" + a.apiKey
}

// BuildCompletionsURL always fails: express mode has no OpenAI-compatible
// endpoint. Callers must translate the body and use BuildGenerateURL.
func (a *APIKeyAuth) BuildCompletionsURL(string) (string, error) {
	return "", fmt.Errorf("express mode has no OpenAI-compatible endpoint: %w", ErrUnsupportedOperation)
}

// BuildGenerateURL returns the global-host generate endpoint with the key
// appended.
func (a *APIKeyAuth) BuildGenerateURL(model, method string) string {
	return a.appendKey(fmt.Sprintf("%s/v1/publishers/google/models/%s:%s", apiKeyBaseURL, model, method))
}

// BuildModelsURL returns the catalog endpoint with the key appended.
func (a *APIKeyAuth) BuildModelsURL(publisher string) string {
	return a.appendKey(fmt.Sprintf("%s/v1beta1/publishers/%s/models", apiKeyBaseURL, publisher))
}

// Start is a no-op; there is no refresh lifecycle in express mode.
func (a *APIKeyAuth) Start(context.Context) {}

// Stop is a no-op.
func (a *APIKeyAuth) Stop() {}
