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
	defaultGeminiModel   = "gemini-1.5-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

type geminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func newGemini(cfg config.Provider, opts Options) (*geminiClient, error) {
	if err := requireKey("gemini", cfg.APIKey); err != nil {
		return nil, err
	}
	client := &geminiClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: opts.httpClient(),
	}
	if client.model == "" {
		client.model = defaultGeminiModel
	}
	if client.baseURL == "" {
		client.baseURL = defaultGeminiBaseURL
	}
	return client, nil
}

func (c *geminiClient) Name() string  { return "gemini" }
func (c *geminiClient) Model() string { return c.model }

func (c *geminiClient) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *geminiClient) Analyze(ctx context.Context, imageB64 string) (classify.Result, error) {
	if strings.TrimSpace(imageB64) == "" {
		return classify.Result{}, fmt.Errorf("gemini: %w", errEmptyImage)
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: analysisPrompt},
				{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: imageB64}},
			},
		}},
	}
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	body, err := postJSON(ctx, c.httpClient, "gemini", c.endpoint(), headers, payload)
	if err != nil {
		return classify.Result{}, err
	}

	var parsed geminiResponse
	if err := decodeBody("gemini", body, &parsed); err != nil {
		return classify.Result{}, err
	}
	if parsed.Error != nil {
		return classify.Result{}, fmt.Errorf("gemini response: api error: %s", strings.TrimSpace(parsed.Error.Message))
	}

	var text string
	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				text = part.Text
				break
			}
		}
		if text != "" {
			break
		}
	}
	result, err := decodeResult("gemini", text)
	if err != nil {
		return classify.Result{}, err
	}
	result.Tokens = classify.TokenUsage{
		Input:  parsed.UsageMetadata.PromptTokenCount,
		Output: parsed.UsageMetadata.CandidatesTokenCount,
		Total:  parsed.UsageMetadata.TotalTokenCount,
	}
	return result, nil
}
