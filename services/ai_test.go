package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailpilot/models"

	"github.com/nalgeon/be"
)

func TestCompleteReturnsContent(t *testing.T) {
	var got models.ChatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		be.Equal(t, r.Header.Get("Authorization"), "Bearer test-key")
		be.Err(t, json.NewDecoder(r.Body).Decode(&got), nil)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  generated reply  "},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`))
	}))
	defer ts.Close()

	svc := NewOpenAIService("test-key", "gpt-4o")
	svc.endpoint = ts.URL

	content, err := svc.Complete(context.Background(), "system", "user", 500, 0.7)
	be.Err(t, err, nil)
	be.Equal(t, content, "generated reply")

	be.Equal(t, got.Model, "gpt-4o")
	be.Equal(t, len(got.Messages), 2)
	be.Equal(t, got.Messages[0].Role, "system")
	be.Equal(t, got.Messages[1].Role, "user")
	be.Equal(t, got.MaxTokens, 500)
	be.Equal(t, got.Temperature, 0.7)
}

func TestCompleteNon200Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	svc := NewOpenAIService("test-key", "gpt-4o")
	svc.endpoint = ts.URL

	_, err := svc.Complete(context.Background(), "s", "u", 100, 0.7)
	be.True(t, err != nil)
}

func TestCompleteAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer ts.Close()

	svc := NewOpenAIService("test-key", "gpt-4o")
	svc.endpoint = ts.URL

	_, err := svc.Complete(context.Background(), "s", "u", 100, 0.7)
	be.True(t, err != nil)
}

func TestCompleteEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	svc := NewOpenAIService("test-key", "gpt-4o")
	svc.endpoint = ts.URL

	_, err := svc.Complete(context.Background(), "s", "u", 100, 0.7)
	be.True(t, err != nil)
}

func TestCompleteMissingAPIKey(t *testing.T) {
	svc := NewOpenAIService("", "gpt-4o")

	_, err := svc.Complete(context.Background(), "s", "u", 100, 0.7)
	be.True(t, err != nil)
}
