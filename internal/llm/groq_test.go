package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGroqClient(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			var body struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.Messages) != 1 || body.Messages[0].Content != "hello" {
				t.Errorf("Unexpected request body: %+v", body)
			}
			w.Write([]byte(`{"model":"llama","choices":[{"message":{"content":"Eat more dal."}}],
				"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
		}))
		defer server.Close()

		c := NewGroqClient("test-key")
		c.url = server.URL

		resp, err := c.GenerateContent(context.Background(), "hello")
		if err != nil {
			t.Fatalf("GenerateContent failed: %v", err)
		}
		if resp.Content != "Eat more dal." {
			t.Errorf("Unexpected content %q", resp.Content)
		}
		if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 4 || resp.Usage.Model != "llama" {
			t.Errorf("Unexpected usage: %+v", resp.Usage)
		}
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewGroqClient("test-key")
		c.url = server.URL

		_, err := c.GenerateContent(context.Background(), "hello")
		if err == nil || !strings.Contains(err.Error(), "status=429") {
			t.Errorf("Expected status error, got %v", err)
		}
	})
}

type stubGenerator struct {
	resp ContentResponse
	err  error
	hits int
}

func (s *stubGenerator) GenerateContent(context.Context, string) (ContentResponse, error) {
	s.hits++
	return s.resp, s.err
}

func TestFallback(t *testing.T) {
	failing := &stubGenerator{err: errors.New("quota")}
	working := &stubGenerator{resp: ContentResponse{Content: "ok"}}

	resp, err := Fallback{failing, working}.GenerateContent(context.Background(), "p")
	if err != nil || resp.Content != "ok" {
		t.Fatalf("Expected fallback success, got %+v (%v)", resp, err)
	}
	if failing.hits != 1 || working.hits != 1 {
		t.Errorf("Expected each generator tried once, got %d/%d", failing.hits, working.hits)
	}

	if _, err := (Fallback{failing}).GenerateContent(context.Background(), "p"); err == nil {
		t.Error("Expected error when all generators fail")
	}
	if _, err := (Fallback{}).GenerateContent(context.Background(), "p"); err == nil {
		t.Error("Expected error for empty fallback")
	}
}
