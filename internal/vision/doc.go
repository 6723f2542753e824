// Package vision implements the provider clients that classify a single
// image: OpenAI chat completions, the Anthropic messages API, and Gemini
// generateContent, plus a deterministic stub for offline use. All providers
// share one prompt, one response decoder, and one HTTP error shape that the
// retry package understands.
package vision
