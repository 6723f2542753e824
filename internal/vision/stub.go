package vision

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"snapsift/internal/classify"
)

// StubClient returns deterministic verdicts without any network traffic.
// It backs offline dry runs and tests.
type StubClient struct {
	model string
}

// NewStub creates a stub client. The model name defaults to "stub".
func NewStub(model string) *StubClient {
	model = strings.TrimSpace(model)
	if model == "" {
		model = "stub"
	}
	return &StubClient{model: model}
}

func (c *StubClient) Name() string  { return "stub" }
func (c *StubClient) Model() string { return c.model }

// Analyze derives a stable verdict from the payload hash so repeated calls
// for the same image agree with each other.
func (c *StubClient) Analyze(ctx context.Context, imageB64 string) (classify.Result, error) {
	if err := ctx.Err(); err != nil {
		return classify.Result{}, err
	}
	if strings.TrimSpace(imageB64) == "" {
		return classify.Result{}, fmt.Errorf("stub: %w", errEmptyImage)
	}

	digest := sha256.Sum256([]byte(imageB64))
	switch digest[0] % 3 {
	case 0:
		return classify.Result{
			Decision:         classify.DecisionKeep,
			ConfidenceKeep:   0.9,
			ConfidenceDelete: 0.05,
			ConfidenceUnsure: 0.05,
			PrimaryCategory:  "personal",
			Reason:           "stub verdict",
		}, nil
	case 1:
		return classify.Result{
			Decision:         classify.DecisionDelete,
			ConfidenceKeep:   0.05,
			ConfidenceDelete: 0.9,
			ConfidenceUnsure: 0.05,
			PrimaryCategory:  "screenshot",
			Reason:           "stub verdict",
		}, nil
	default:
		return classify.Result{
			Decision:         classify.DecisionUnsure,
			ConfidenceKeep:   0.3,
			ConfidenceDelete: 0.3,
			ConfidenceUnsure: 0.4,
			PrimaryCategory:  "non_personal",
			Reason:           "stub verdict",
		}, nil
	}
}
