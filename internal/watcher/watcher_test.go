package watcher

import (
	"testing"

	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

func TestPinRestartOnlyKeepsAPIKeyMode(t *testing.T) {
	old := &config.Config{APIKey: "sekret", ProjectID: "proj", Location: "global"}
	next := &config.Config{Location: "us-central1"}

	PinRestartOnly(old, next)

	if next.AuthMode() != config.AuthModeAPIKey {
		t.Fatalf("AuthMode = %q, want api_key preserved across reload", next.AuthMode())
	}
	if next.APIKey != "sekret" {
		t.Errorf("APIKey = %q", next.APIKey)
	}
	if next.ProjectID != "proj" {
		t.Errorf("ProjectID = %q", next.ProjectID)
	}
	if next.Location != "global" {
		t.Errorf("Location = %q, want startup value kept", next.Location)
	}
}

func TestPinRestartOnlyKeepsServiceAccountMode(t *testing.T) {
	old := &config.Config{ProjectID: "proj", Location: "europe-west4"}
	next := &config.Config{APIKey: "added-later"}

	PinRestartOnly(old, next)

	if next.AuthMode() != config.AuthModeServiceAccount {
		t.Fatalf("AuthMode = %q, want service_account preserved across reload", next.AuthMode())
	}
	if next.APIKey != "" {
		t.Errorf("APIKey = %q, want a reload-added key discarded", next.APIKey)
	}
}

func TestPinRestartOnlyLeavesLiveSettings(t *testing.T) {
	old := &config.Config{APIKey: "sekret", ProxyKey: "old-proxy"}
	next := &config.Config{ProxyKey: "rotated", Debug: true, ExtraModels: []string{"google/gemini-exp"}}

	PinRestartOnly(old, next)

	if next.ProxyKey != "rotated" {
		t.Errorf("ProxyKey = %q, live settings must survive pinning", next.ProxyKey)
	}
	if !next.Debug || len(next.ExtraModels) != 1 {
		t.Errorf("live settings changed: %+v", next)
	}
}
