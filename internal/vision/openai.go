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
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

type openAIClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

func newOpenAI(cfg config.Provider, opts Options) (*openAIClient, error) {
	if err := requireKey("openai", cfg.APIKey); err != nil {
		return nil, err
	}
	client := &openAIClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		endpoint:   strings.TrimSpace(cfg.BaseURL),
		httpClient: opts.httpClient(),
	}
	if client.model == "" {
		client.model = defaultOpenAIModel
	}
	if client.endpoint == "" {
		client.endpoint = defaultOpenAIEndpoint
	}
	return client, nil
}

func (c *openAIClient) Name() string  { return "openai" }
func (c *openAIClient) Model() string { return c.model }

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openAIClient) Analyze(ctx context.Context, imageB64 string) (classify.Result, error) {
	if strings.TrimSpace(imageB64) == "" {
		return classify.Result{}, fmt.Errorf("openai: %w", errEmptyImage)
	}

	payload := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIPart{
				{Type: "text", Text: analysisPrompt},
				{Type: "image_url", ImageURL: &openAIImageURL{
					URL:    "data:image/jpeg;base64," + imageB64,
					Detail: "low",
				}},
			},
		}},
		MaxTokens: 2000,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	body, err := postJSON(ctx, c.httpClient, "openai", c.endpoint, headers, payload)
	if err != nil {
		return classify.Result{}, err
	}

	var parsed openAIResponse
	if err := decodeBody("openai", body, &parsed); err != nil {
		return classify.Result{}, err
	}
	if parsed.Error != nil {
		return classify.Result{}, fmt.Errorf("openai response: api error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return classify.Result{}, fmt.Errorf("openai response: empty choices")
	}

	result, err := decodeResult("openai", parsed.Choices[0].Message.Content)
	if err != nil {
		return classify.Result{}, err
	}
	result.Tokens = classify.TokenUsage{
		Input:  parsed.Usage.PromptTokens,
		Output: parsed.Usage.CompletionTokens,
		Total:  parsed.Usage.TotalTokens,
	}
	return result, nil
}
