package vision

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"snapsift/internal/classify"
	"snapsift/internal/config"
)

const (
	defaultAnthropicModel    = "claude-3-haiku-20240307"
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
)

type anthropicClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

func newAnthropic(cfg config.Provider, opts Options) (*anthropicClient, error) {
	if err := requireKey("anthropic", cfg.APIKey); err != nil {
		return nil, err
	}
	client := &anthropicClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		endpoint:   strings.TrimSpace(cfg.BaseURL),
		httpClient: opts.httpClient(),
	}
	if client.model == "" {
		client.model = defaultAnthropicModel
	}
	if client.endpoint == "" {
		client.endpoint = defaultAnthropicEndpoint
	}
	return client, nil
}

func (c *anthropicClient) Name() string  { return "anthropic" }
func (c *anthropicClient) Model() string { return c.model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content []anthropicPart `json:"content"`
}

type anthropicPart struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) Analyze(ctx context.Context, imageB64 string) (classify.Result, error) {
	if strings.TrimSpace(imageB64) == "" {
		return classify.Result{}, fmt.Errorf("anthropic: %w", errEmptyImage)
	}

	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   400,
		Temperature: 0.1,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicPart{
				{Type: "text", Text: analysisPrompt},
				{Type: "image", Source: &anthropicSource{
					Type:      "base64",
					MediaType: "image/jpeg",
					Data:      imageB64,
				}},
			},
		}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	body, err := postJSON(ctx, c.httpClient, "anthropic", c.endpoint, headers, payload)
	if err != nil {
		return classify.Result{}, err
	}

	var parsed anthropicResponse
	if err := decodeBody("anthropic", body, &parsed); err != nil {
		return classify.Result{}, err
	}
	if parsed.Error != nil {
		return classify.Result{}, fmt.Errorf("anthropic response: api error: %s", strings.TrimSpace(parsed.Error.Message))
	}

	var text string
	for _, part := range parsed.Content {
		if part.Type == "text" && strings.TrimSpace(part.Text) != "" {
			text = part.Text
			break
		}
	}
	result, err := decodeResult("anthropic", text)
	if err != nil {
		return classify.Result{}, err
	}
	result.Tokens = classify.TokenUsage{
		Input:  parsed.Usage.InputTokens,
		Output: parsed.Usage.OutputTokens,
		Total:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}
	return result, nil
}
