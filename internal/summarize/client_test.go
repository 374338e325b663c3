package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSummarizeSendsChatCompletionRequest(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Key ideas.  "}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL + "/", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	summary, err := client.Summarize(context.Background(), "Lecture on graphs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "Key ideas." {
		t.Fatalf("unexpected summary %q", summary)
	}
	if received.Model != defaultModel {
		t.Fatalf("expected default model, got %q", received.Model)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != "system" || received.Messages[1].Content != "Lecture on graphs" {
		t.Fatalf("unexpected messages %#v", received.Messages)
	}
	if received.MaxCompletionTokens != maxCompletionTokens {
		t.Fatalf("unexpected max tokens %d", received.MaxCompletionTokens)
	}
}

func TestSummarizeFailures(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "bad-status", status: http.StatusTooManyRequests, body: `{"error":"rate limited"}`, wantErr: "bad status 429"},
		{name: "no-choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrNoChoices.Error()},
		{name: "malformed", status: http.StatusOK, body: `{`, wantErr: "decode response"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client, err := NewClient(Config{BaseURL: server.URL})
			if err != nil {
				t.Fatalf("failed to construct client: %v", err)
			}
			_, err = client.Summarize(context.Background(), "text")
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error containing %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	if _, err := client.Summarize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text error, got %v", err)
	}
	if _, err := NewClient(Config{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected missing base url error, got %v", err)
	}
}
