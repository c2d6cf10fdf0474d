package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStateStore(filepath.Join(dir, stateFileName))

	data, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if data != nil {
		t.Fatalf("Load before Save = %q, want nil", data)
	}

	if err = s.Save(context.Background(), []byte(`{"access_token":"tok"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err = s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := gjson.GetBytes(data, "access_token").String(); got != "tok" {
		t.Errorf("access_token = %q", got)
	}
}

func TestManagerLoadEmpty(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(NewFileStateStore(filepath.Join(dir, stateFileName)))

	state, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.AccessToken != "" || state.ProxyKey != "" || !state.TokenExpiry.IsZero() {
		t.Errorf("state = %+v, want zero value", state)
	}
}

func TestManagerSaveTokenPreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, stateFileName)
	seed := `{"key":"proxy-secret","note":"hand written","access_token":"old"}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(NewFileStateStore(path))
	state, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.ProxyKey != "proxy-secret" {
		t.Errorf("ProxyKey = %q", state.ProxyKey)
	}
	if state.AccessToken != "old" {
		t.Errorf("AccessToken = %q", state.AccessToken)
	}

	expiry := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	if err = m.SaveToken(context.Background(), "new-token", expiry); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := gjson.ParseBytes(data)
	if got := doc.Get("access_token").String(); got != "new-token" {
		t.Errorf("access_token = %q", got)
	}
	if got := doc.Get("token_expiry").String(); got != "2026-08-25T12:00:00Z" {
		t.Errorf("token_expiry = %q", got)
	}
	if got := doc.Get("key").String(); got != "proxy-secret" {
		t.Errorf("key = %q, unknown fields must survive", got)
	}
	if got := doc.Get("note").String(); got != "hand written" {
		t.Errorf("note = %q, unknown fields must survive", got)
	}
}

func TestManagerRoundTripExpiry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, stateFileName)
	m := NewManager(NewFileStateStore(path))
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	expiry := time.Now().Add(45 * time.Minute).UTC().Truncate(time.Second)
	if err := m.SaveToken(context.Background(), "tok", expiry); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	m2 := NewManager(NewFileStateStore(path))
	state, err := m2.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.AccessToken != "tok" {
		t.Errorf("AccessToken = %q", state.AccessToken)
	}
	if !state.TokenExpiry.Equal(expiry) {
		t.Errorf("TokenExpiry = %v, want %v", state.TokenExpiry, expiry)
	}
}

func TestManagerLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, stateFileName)
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(NewFileStateStore(path))
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatal("Load should fail on an invalid document")
	}
}
