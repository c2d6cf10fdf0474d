package auth

import (
	"context"
	"errors"
	"testing"
)

func TestAPIKeyGetHeaders(t *testing.T) {
	a := NewAPIKeyAuth("sekret")
	headers, err := a.GetHeaders(context.Background())
	if err != nil {
		t.Fatalf("GetHeaders: %v", err)
	}
	if len(headers) != 0 {
		t.Errorf("headers = %v, want none", headers)
	}
}

func TestAPIKeyBuildCompletionsURL(t *testing.T) {
	a := NewAPIKeyAuth("sekret")
	if _, err := a.BuildCompletionsURL("/chat/completions"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("err = %v, want ErrUnsupportedOperation", err)
	}
}

func TestAPIKeyURLs(t *testing.T) {
	a := NewAPIKeyAuth("sekret")

	want := "https://aiplatform.googleapis.com/v1/publishers/google/models/gemini-2.0-flash:generateContent?key=sekret"
	if got := a.BuildGenerateURL("gemini-2.0-flash", "generateContent"); got != want {
		t.Errorf("generate url = %q, want %q", got, want)
	}

	want = "https://aiplatform.googleapis.com/v1beta1/publishers/google/models?key=sekret"
	if got := a.BuildModelsURL("google"); got != want {
		t.Errorf("models url = %q, want %q", got, want)
	}
}

func TestAPIKeyAppendKeyExistingQuery(t *testing.T) {
	a := NewAPIKeyAuth("sekret")
	if got := a.appendKey("https://host/path?alt=sse"); got != "https://host/path?alt=sse&key=sekret" {
		t.Errorf("appendKey = %q", got)
	}
}
