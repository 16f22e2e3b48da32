package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/llm"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, llm.Provider) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := llm.New(llm.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		BotName: "Dora",
	})
	return srv, p
}

func completionJSON(text string, tokens int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{{"text": text}},
		"usage":   map[string]any{"total_tokens": tokens},
	}
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(completionJSON(" Glad you asked!", 57))
	})

	comp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "User: hi\nDora:"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if comp.Text != "Glad you asked!" {
		t.Errorf("expected trimmed text, got %q", comp.Text)
	}
	if comp.TokensUsed != 57 {
		t.Errorf("expected 57 tokens, got %d", comp.TokensUsed)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["prompt"] != "User: hi\nDora:" {
		t.Errorf("prompt not forwarded: %v", gotBody["prompt"])
	}
	if _, ok := gotBody["stop"]; !ok {
		t.Error("stop sequences missing from request")
	}
}

func TestCompleteStripsThinkBlocks(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionJSON("<think>chain of thought here</think>The answer is 4.", 10))
	})

	comp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "2+2?"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if comp.Text != "The answer is 4." {
		t.Fatalf("think block not stripped: %q", comp.Text)
	}
}

func TestCompleteKeepsFirstParagraphOnly(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionJSON("Short answer.\n\nUser: invented follow-up", 10))
	})

	comp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if comp.Text != "Short answer." {
		t.Fatalf("invented dialogue not dropped: %q", comp.Text)
	}
}

func TestCompleteEmptyTextFallsBack(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionJSON("   ", 3))
	})

	comp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if comp.Text == "" {
		t.Fatal("expected a canned fallback for empty completion")
	}
}

func TestCompleteAuthError(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	if !errors.Is(err, llm.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestCompleteRateLimit(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	if !errors.Is(err, llm.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
}

func TestCompleteAPIErrorObject(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded", "type": "overloaded_error"},
		})
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	if err == nil {
		t.Fatal("expected error for API error object")
	}
}

func TestCompleteNoChoices(t *testing.T) {
	_, p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
