package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

// stubProvider routes every publisher to a fixed base URL.
type stubProvider struct {
	baseURL string
	headers map[string]string
	err     error
}

func (s *stubProvider) GetHeaders(context.Context) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.headers == nil {
		return map[string]string{}, nil
	}
	return s.headers, nil
}

func (s *stubProvider) BuildCompletionsURL(string) (string, error) { return "", nil }

func (s *stubProvider) BuildGenerateURL(string, string) string { return "" }

func (s *stubProvider) BuildModelsURL(publisher string) string {
	return s.baseURL + "/v1beta1/publishers/" + publisher + "/models"
}

func (s *stubProvider) Start(context.Context) {}

func (s *stubProvider) Stop() {}

func listConfig(publishers []string) *config.Config {
	return &config.Config{Publishers: publishers}
}

func TestListParsesBothCatalogShapes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1beta1/publishers/google/models":
			_, _ = w.Write([]byte(`{"publisherModels":[
				{"name":"publishers/google/models/gemini-2.0-flash"},
				{"name":"bogus"}
			]}`))
		case "/v1beta1/publishers/studio/models":
			_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.0-pro"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	agg := New(&stubProvider{baseURL: server.URL}, server.Client())
	models, err := agg.List(context.Background(), listConfig([]string{"google", "studio"}))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %+v, want 2 entries", models)
	}
	if models[0].ID != "google/gemini-2.0-flash" || models[0].OwnedBy != "google" {
		t.Errorf("first = %+v", models[0])
	}
	if models[1].ID != "google/gemini-2.0-pro" {
		t.Errorf("second = %+v", models[1])
	}
}

func TestListFailedPublisherContributesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1beta1/publishers/google/models" {
			_, _ = w.Write([]byte(`{"publisherModels":[{"name":"publishers/google/models/gemini-2.0-flash"}]}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	agg := New(&stubProvider{baseURL: server.URL}, server.Client())
	models, err := agg.List(context.Background(), listConfig([]string{"google", "anthropic"}))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 1 || models[0].ID != "google/gemini-2.0-flash" {
		t.Fatalf("models = %+v", models)
	}
}

func TestListRetriesTransportErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, errHijack := hj.Hijack()
			if errHijack != nil {
				t.Fatalf("hijack: %v", errHijack)
			}
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"publisherModels":[{"name":"publishers/google/models/gemini-2.0-flash"}]}`))
	}))
	defer server.Close()

	agg := New(&stubProvider{baseURL: server.URL}, server.Client())
	models, err := agg.List(context.Background(), listConfig([]string{"google"}))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("models = %+v, want the third attempt to succeed", models)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestListFilterAndExtras(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"publisherModels":[
			{"name":"publishers/google/models/gemini-2.0-flash"},
			{"name":"publishers/google/models/imagen-3"}
		]}`))
	}))
	defer server.Close()

	cfg := listConfig([]string{"google"})
	cfg.FilterModelNames = true
	cfg.ModelNameFilters = []string{"google/gemini-"}
	cfg.ExtraModels = []string{"anthropic/claude-opus", "bare-model"}

	agg := New(&stubProvider{baseURL: server.URL}, server.Client())
	models, err := agg.List(context.Background(), cfg)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("models = %+v, want 3", models)
	}
	if models[0].ID != "google/gemini-2.0-flash" {
		t.Errorf("filtered = %+v", models[0])
	}
	if models[1].ID != "anthropic/claude-opus" || models[1].OwnedBy != "anthropic" {
		t.Errorf("extra = %+v", models[1])
	}
	if models[2].ID != "bare-model" || models[2].OwnedBy != "custom" {
		t.Errorf("extra = %+v", models[2])
	}
}

func TestListAuthFailureAborts(t *testing.T) {
	wantErr := errors.New("no token")
	agg := New(&stubProvider{err: wantErr}, http.DefaultClient)
	if _, err := agg.List(context.Background(), listConfig([]string{"google"})); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestListAPIKeyModeQueriesGoogleOnly(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := listConfig([]string{"google", "anthropic", "meta"})
	cfg.APIKey = "sekret"

	agg := New(&stubProvider{baseURL: server.URL}, server.Client())
	if _, err := agg.List(context.Background(), cfg); err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/v1beta1/publishers/google/models" {
		t.Fatalf("paths = %v, want only the google catalog", paths)
	}
}
