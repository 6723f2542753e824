package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"snapsift/internal/classify"
	"snapsift/internal/config"
	"snapsift/internal/retry"
)

const testImageB64 = "dGVzdC1pbWFnZS1ieXRlcw=="

func verdictJSON() string {
	return `{"decision": "keep", "confidence_keep": 0.9, "confidence_delete": 0.05, "confidence_unsure": 0.05, "primary_category": "personal", "reason": "family photo"}`
}

func TestOpenAIAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var payload openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", payload.Model)
		}
		if len(payload.Messages) != 1 || len(payload.Messages[0].Content) != 2 {
			t.Fatalf("unexpected message shape: %+v", payload.Messages)
		}
		image := payload.Messages[0].Content[1]
		if image.ImageURL == nil || !strings.HasPrefix(image.ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("image part missing data url: %+v", image)
		}
		if image.ImageURL != nil && image.ImageURL.Detail != "low" {
			t.Errorf("detail = %q, want low", image.ImageURL.Detail)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": verdictJSON()}}},
			"usage":   map[string]int{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
		})
	}))
	defer server.Close()

	client, err := New("openai", config.Provider{APIKey: "test-key", BaseURL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := client.Analyze(context.Background(), testImageB64)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Decision != classify.DecisionKeep {
		t.Fatalf("decision = %q", result.Decision)
	}
	if result.Tokens.Total != 160 {
		t.Fatalf("tokens = %+v", result.Tokens)
	}
}

func TestAnthropicAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("anthropic-version header missing")
		}
		var payload anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(payload.Messages) != 1 || len(payload.Messages[0].Content) != 2 {
			t.Fatalf("unexpected message shape: %+v", payload.Messages)
		}
		source := payload.Messages[0].Content[1].Source
		if source == nil || source.Type != "base64" || source.MediaType != "image/jpeg" {
			t.Errorf("image source = %+v", source)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": verdictJSON()}},
			"usage":   map[string]int{"input_tokens": 100, "output_tokens": 30},
		})
	}))
	defer server.Close()

	client, err := New("claude", config.Provider{APIKey: "test-key", BaseURL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.Name() != "anthropic" {
		t.Fatalf("claude alias should build the anthropic client, got %q", client.Name())
	}

	result, err := client.Analyze(context.Background(), testImageB64)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Tokens.Total != 130 {
		t.Fatalf("tokens = %+v", result.Tokens)
	}
}

func TestGeminiAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-1.5-flash:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		var payload geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(payload.Contents) != 1 || len(payload.Contents[0].Parts) != 2 {
			t.Fatalf("unexpected content shape: %+v", payload.Contents)
		}
		inline := payload.Contents[0].Parts[1].InlineData
		if inline == nil || inline.MimeType != "image/jpeg" || inline.Data != testImageB64 {
			t.Errorf("inline data = %+v", inline)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]string{{"text": "```json\n" + verdictJSON() + "\n```"}}},
			}},
			"usageMetadata": map[string]int{"promptTokenCount": 80, "candidatesTokenCount": 25, "totalTokenCount": 105},
		})
	}))
	defer server.Close()

	client, err := New("gemini", config.Provider{APIKey: "test-key", BaseURL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := client.Analyze(context.Background(), testImageB64)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Decision != classify.DecisionKeep {
		t.Fatalf("decision = %q (fenced payload should decode)", result.Decision)
	}
	if result.Tokens.Input != 80 {
		t.Fatalf("tokens = %+v", result.Tokens)
	}
}

func TestAnalyzeMapsRateLimitToTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := New("openai", config.Provider{APIKey: "test-key", BaseURL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Analyze(context.Background(), testImageB64)
	if err == nil {
		t.Fatal("expected error")
	}
	if !retry.Transient(err) {
		t.Fatalf("429 should be transient: %v", err)
	}
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %T, want *httpStatusError", err)
	}
	if statusErr.RetryAfter != 7*time.Second {
		t.Fatalf("RetryAfter = %v, want 7s", statusErr.RetryAfter)
	}
}

func TestAnalyzeMapsAuthFailureToPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := New("anthropic", config.Provider{APIKey: "wrong", BaseURL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Analyze(context.Background(), testImageB64)
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.Transient(err) {
		t.Fatalf("401 should be permanent: %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		if _, err := New(provider, config.Provider{}, Options{}); err == nil {
			t.Errorf("New(%q) without key should fail", provider)
		}
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New("dall-e", config.Provider{APIKey: "x"}, Options{}); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

func TestStubIsDeterministic(t *testing.T) {
	stub := NewStub("")
	first, err := stub.Analyze(context.Background(), testImageB64)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := stub.Analyze(context.Background(), testImageB64)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first != second {
		t.Fatalf("stub verdicts differ: %+v vs %+v", first, second)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("stub verdict invalid: %v", err)
	}
}

func TestDecodeResultHandlesProseWrappedJSON(t *testing.T) {
	content := "Here is my analysis:\n" + verdictJSON() + "\nHope that helps!"
	result, err := decodeResult("test", content)
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if result.Decision != classify.DecisionKeep {
		t.Fatalf("decision = %q", result.Decision)
	}
}

func TestDecodeResultRejectsEmptyContent(t *testing.T) {
	if _, err := decodeResult("test", "   "); err == nil {
		t.Fatal("expected error for empty content")
	}
}
