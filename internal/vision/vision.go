package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"snapsift/internal/classify"
	"snapsift/internal/config"
)

const defaultHTTPTimeout = 60 * time.Second

// Client analyzes a single base64-encoded JPEG and returns the triage
// verdict. Token usage, when the provider reports it, rides inside the
// result.
type Client interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, imageB64 string) (classify.Result, error)
}

// Options customizes client construction.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// New constructs the client for a named provider. "claude" is accepted as
// an alias for "anthropic". The stub provider needs no API key.
func New(provider string, cfg config.Provider, opts Options) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return newOpenAI(cfg, opts)
	case "anthropic", "claude":
		return newAnthropic(cfg, opts)
	case "gemini":
		return newGemini(cfg, opts)
	case "stub":
		return NewStub(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

type httpStatusError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s request: http %d: %s", e.Provider, e.StatusCode, summarizeSnippet(e.Body))
}

// HTTPStatus feeds the retry policy's transient/permanent split.
func (e *httpStatusError) HTTPStatus() int { return e.StatusCode }

// RetryAfterDelay surfaces the server's Retry-After hint, zero when absent.
func (e *httpStatusError) RetryAfterDelay() time.Duration { return e.RetryAfter }

func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s request: encode body: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%s request: new request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s request: read body: %w", provider, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

func decodeBody(provider string, body []byte, target any) error {
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%s response: decode: %w (payload snippet: %s)", provider, err, summarizeSnippet(string(body)))
	}
	return nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// decodeResult parses a model's text reply into the canonical result,
// tolerating markdown fences and prose around the JSON object.
func decodeResult(provider, content string) (classify.Result, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return classify.Result{}, fmt.Errorf("%s response: empty content", provider)
	}

	result, directErr := classify.Decode(json.RawMessage(trimmed))
	if directErr == nil {
		return result, nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return classify.Result{}, fmt.Errorf("%s response: %w (payload snippet: %s)", provider, directErr, summarizeSnippet(trimmed))
	}
	result, err := classify.Decode(json.RawMessage(sanitized))
	if err != nil {
		return classify.Result{}, fmt.Errorf("%s response: %w (sanitized payload snippet: %s)", provider, err, summarizeSnippet(sanitized))
	}
	return result, nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizeSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

func requireKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: api key required", provider)
	}
	return nil
}

var errEmptyImage = errors.New("image payload required")
