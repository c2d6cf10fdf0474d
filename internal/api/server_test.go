package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/router-for-me/VertexProxyAPI/internal/auth"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
	"github.com/router-for-me/VertexProxyAPI/internal/logging"
	"github.com/router-for-me/VertexProxyAPI/internal/watcher"
	"github.com/tidwall/gjson"
)

type noopProvider struct{}

func (noopProvider) GetHeaders(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
func (noopProvider) BuildCompletionsURL(string) (string, error) { return "", nil }
func (noopProvider) BuildGenerateURL(string, string) string     { return "" }
func (noopProvider) BuildModelsURL(string) string               { return "" }
func (noopProvider) Start(context.Context)                      {}
func (noopProvider) Stop()                                      {}

func newTestServer(cfg *config.Config) *Server {
	requestLogger := logging.NewFileRequestLogger("logs", func() bool { return false })
	return NewServer(cfg, noopProvider{}, http.DefaultClient, requestLogger)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if got := gjson.Get(body, "status").String(); got != "ok" {
		t.Errorf("status field = %q", got)
	}
	if got := gjson.Get(body, "auth_mode").String(); got != config.AuthModeServiceAccount {
		t.Errorf("auth_mode = %q", got)
	}
}

func TestHealthBypassesCallerAuth(t *testing.T) {
	srv := newTestServer(&config.Config{ProxyKey: "sekret"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200 without credentials", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec = httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("models status = %d, want 401 without credentials", rec.Code)
	}
}

func TestUpdateConfigSwapsSnapshot(t *testing.T) {
	srv := newTestServer(&config.Config{})
	if srv.Config().ProxyKey != "" {
		t.Fatal("unexpected initial proxy key")
	}

	srv.UpdateConfig(&config.Config{ProxyKey: "rotated"})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 after key rotation", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer rotated")
	rec = httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Fatal("rotated key should be accepted")
	}
}

// expressProvider behaves like the api-key auth variant: no
// OpenAI-compatible endpoint, generate calls routed to a test upstream.
type expressProvider struct {
	noopProvider
	base string
}

func (p expressProvider) BuildCompletionsURL(string) (string, error) {
	return "", auth.ErrUnsupportedOperation
}

func (p expressProvider) BuildGenerateURL(model, method string) string {
	return p.base + "/models/" + model + ":" + method + "?key=sekret"
}

func TestReloadKeepsUpstreamAuthMode(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`))
	}))
	defer upstream.Close()

	cfg := &config.Config{APIKey: "sekret"}
	requestLogger := logging.NewFileRequestLogger("logs", func() bool { return false })
	srv := NewServer(cfg, expressProvider{base: upstream.URL}, upstream.Client(), requestLogger)

	chat := func() *httptest.ResponseRecorder {
		body := `{"model":"gemini-2.0-flash","messages":[{"role":"user","content":"hi"}]}`
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.engine.ServeHTTP(rec, req)
		return rec
	}

	if rec := chat(); rec.Code != http.StatusOK {
		t.Fatalf("status before reload = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A reloaded file without the api-key must not flip the dispatcher
	// onto the service-account path while the provider stays express.
	next := &config.Config{}
	watcher.PinRestartOnly(srv.Config(), next)
	srv.UpdateConfig(next)

	rec := chat()
	if rec.Code != http.StatusOK {
		t.Fatalf("status after reload = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := gjson.Get(rec.Body.String(), "choices.0.message.content").String(); got != "ok" {
		t.Errorf("content = %q", got)
	}
}
