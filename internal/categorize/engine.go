// Package categorize implements the two-layer expense categorization engine:
// an ordered keyword rule layer that is always tried first, and an AI
// classifier fallback for descriptions no rule covers.
package categorize

import (
	"context"
	"log"
	"strings"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categories"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// Source tells which layer produced a category assignment.
type Source string

const (
	SourceRule Source = "RULE"
	SourceAI   Source = "AI"
	SourceNone Source = "NONE"
)

// Result is one category assignment for a line item description.
type Result struct {
	CategoryID   string  `json:"category_id,omitempty"`
	CategoryName string  `json:"category_name,omitempty"`
	Confidence   float64 `json:"confidence"`
	Source       Source  `json:"source"`
}

// Suggestion is the raw output of an AI classification call.
type Suggestion struct {
	ID         string
	Confidence float64
}

// Classifier is the AI categorization collaborator.
type Classifier interface {
	Classify(ctx context.Context, description string, businessType models.BusinessType) (*Suggestion, error)
}

// Engine is the hybrid categorizer. A nil classifier makes it rule-only.
type Engine struct {
	classifier    Classifier
	minConfidence float64
}

// NewEngine creates the engine. minConfidence is the acceptance threshold for
// AI suggestions (an empirical constant, 0.5 in production config).
func NewEngine(classifier Classifier, minConfidence float64) *Engine {
	return &Engine{classifier: classifier, minConfidence: minConfidence}
}

// Categorize assigns a category to a description: keyword rules first, AI
// fallback second, uncategorized last. Classifier failures are swallowed and
// fall through to uncategorized.
func (e *Engine) Categorize(ctx context.Context, description string, businessType models.BusinessType) Result {
	if result, ok := e.matchRules(description, businessType); ok {
		return result
	}

	if e.classifier != nil {
		suggestion, err := e.classifier.Classify(ctx, description, businessType)
		if err != nil {
			log.Printf("[Categorize] AI classification failed for %q: %v", description, err)
		} else if suggestion != nil && suggestion.Confidence >= e.minConfidence {
			if name := categories.NameFor(businessType, suggestion.ID); name != "" {
				return Result{
					CategoryID:   suggestion.ID,
					CategoryName: name,
					Confidence:   suggestion.Confidence,
					Source:       SourceAI,
				}
			}
		}
	}

	return uncategorized()
}

// CategorizeRules is the rule-only variant for contexts that must stay
// synchronous and cheap, such as category backfill during validation.
func (e *Engine) CategorizeRules(description string, businessType models.BusinessType) Result {
	if result, ok := e.matchRules(description, businessType); ok {
		return result
	}
	return uncategorized()
}

// matchRules walks the whitelist in its defined order; within each category
// keywords are tried in order and the first substring match wins. The
// ordering is a deliberate tie-break priority and must not change.
func (e *Engine) matchRules(description string, businessType models.BusinessType) (Result, bool) {
	cats, err := categories.ForType(businessType)
	if err != nil {
		return Result{}, false
	}

	normalized := strings.ToLower(strings.TrimSpace(description))
	for _, category := range cats {
		for _, keyword := range category.Keywords {
			if strings.Contains(normalized, strings.ToLower(keyword)) {
				return Result{
					CategoryID:   category.ID,
					CategoryName: category.Name,
					Confidence:   1.0,
					Source:       SourceRule,
				}, true
			}
		}
	}
	return Result{}, false
}

func uncategorized() Result {
	return Result{
		CategoryName: "Uncategorized",
		Confidence:   0.0,
		Source:       SourceNone,
	}
}
