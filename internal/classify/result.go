package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Decision is the triage verdict for a single image.
type Decision string

const (
	DecisionKeep   Decision = "keep"
	DecisionDelete Decision = "delete"
	DecisionUnsure Decision = "unsure"
)

// TokenUsage records the token counts reported by a provider for one call.
type TokenUsage struct {
	Input  int `json:"input_tokens,omitempty"`
	Output int `json:"output_tokens,omitempty"`
	Total  int `json:"total_tokens,omitempty"`
}

// Result is the canonical classification for one image. Values are produced
// once per successful API call and never mutated afterwards.
type Result struct {
	Decision         Decision   `json:"decision"`
	ConfidenceKeep   float64    `json:"confidence_keep"`
	ConfidenceDelete float64    `json:"confidence_delete"`
	ConfidenceUnsure float64    `json:"confidence_unsure"`
	PrimaryCategory  string     `json:"primary_category"`
	Reason           string     `json:"reason"`
	Tokens           TokenUsage `json:"token_usage,omitzero"`
}

// Confidence returns the confidence score backing the decision.
func (r Result) Confidence() float64 {
	switch r.Decision {
	case DecisionKeep:
		return r.ConfidenceKeep
	case DecisionDelete:
		return r.ConfidenceDelete
	default:
		return r.ConfidenceUnsure
	}
}

// Validate checks that the result is internally consistent.
func (r Result) Validate() error {
	switch r.Decision {
	case DecisionKeep, DecisionDelete, DecisionUnsure:
	default:
		return fmt.Errorf("invalid decision %q", r.Decision)
	}
	for name, value := range map[string]float64{
		"confidence_keep":   r.ConfidenceKeep,
		"confidence_delete": r.ConfidenceDelete,
		"confidence_unsure": r.ConfidenceUnsure,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s out of range: %v", name, value)
		}
	}
	return nil
}

// legacyPayload is the original result shape: integer scores in [0,100]
// under final_classification, with free-text description/reasoning.
type legacyPayload struct {
	FinalClassification *struct {
		Keep    float64 `json:"keep"`
		Discard float64 `json:"discard"`
		Unsure  float64 `json:"unsure"`
	} `json:"final_classification"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Description    string             `json:"description"`
	Reasoning      string             `json:"reasoning"`
}

// currentPayload mirrors Result's wire form, with pointers so absence can be
// distinguished from zero.
type currentPayload struct {
	Decision         string     `json:"decision"`
	ConfidenceKeep   *float64   `json:"confidence_keep"`
	ConfidenceDelete *float64   `json:"confidence_delete"`
	ConfidenceUnsure *float64   `json:"confidence_unsure"`
	PrimaryCategory  string     `json:"primary_category"`
	Reason           string     `json:"reason"`
	Tokens           TokenUsage `json:"token_usage"`
}

var errNoClassification = errors.New("payload carries neither current nor legacy classification fields")

// Decode normalizes a stored or freshly returned result payload into the
// canonical Result. Current-schema fields win; the legacy shape
// (final_classification with 0-100 scores) is the fallback. This is the only
// place the two schemas are reconciled.
func Decode(raw json.RawMessage) (Result, error) {
	var current currentPayload
	if err := json.Unmarshal(raw, &current); err != nil {
		return Result{}, fmt.Errorf("parse result payload: %w", err)
	}

	if strings.TrimSpace(current.Decision) != "" {
		result := Result{
			Decision:        Decision(strings.ToLower(strings.TrimSpace(current.Decision))),
			PrimaryCategory: strings.TrimSpace(current.PrimaryCategory),
			Reason:          strings.TrimSpace(current.Reason),
			Tokens:          current.Tokens,
		}
		if current.ConfidenceKeep != nil {
			result.ConfidenceKeep = clamp01(*current.ConfidenceKeep)
		}
		if current.ConfidenceDelete != nil {
			result.ConfidenceDelete = clamp01(*current.ConfidenceDelete)
		}
		if current.ConfidenceUnsure != nil {
			result.ConfidenceUnsure = clamp01(*current.ConfidenceUnsure)
		}
		if err := result.Validate(); err != nil {
			return Result{}, err
		}
		return result, nil
	}

	var legacy legacyPayload
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Result{}, fmt.Errorf("parse legacy payload: %w", err)
	}
	if legacy.FinalClassification == nil {
		return Result{}, errNoClassification
	}

	result := Result{
		ConfidenceKeep:   clamp01(legacy.FinalClassification.Keep / 100),
		ConfidenceDelete: clamp01(legacy.FinalClassification.Discard / 100),
		ConfidenceUnsure: clamp01(legacy.FinalClassification.Unsure / 100),
		Reason:           strings.TrimSpace(legacy.Reasoning),
	}
	if result.Reason == "" {
		result.Reason = strings.TrimSpace(legacy.Description)
	}
	result.Decision = dominantDecision(result)
	result.PrimaryCategory = dominantCategory(legacy.CategoryScores)
	return result, nil
}

func dominantDecision(r Result) Decision {
	switch {
	case r.ConfidenceDelete > r.ConfidenceKeep && r.ConfidenceDelete >= r.ConfidenceUnsure:
		return DecisionDelete
	case r.ConfidenceKeep >= r.ConfidenceUnsure:
		return DecisionKeep
	default:
		return DecisionUnsure
	}
}

func dominantCategory(scores map[string]float64) string {
	best := ""
	bestScore := 0.0
	for category, score := range scores {
		if score > bestScore || (score == bestScore && (best == "" || category < best)) {
			best = category
			bestScore = score
		}
	}
	return best
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
