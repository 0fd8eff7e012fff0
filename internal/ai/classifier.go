package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// Classification is the strict JSON object returned by a categorization call.
type Classification struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
}

// Classify asks the model pool to assign one expense category to an item
// description. Whitelist membership and the confidence threshold are enforced
// by the categorization engine, not here.
func (e *Extractor) Classify(
	ctx context.Context,
	description string,
	businessType models.BusinessType,
	timeout time.Duration,
) (*Classification, error) {
	categoryList, _, err := categoryPromptSection(businessType)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are an accountant for a %s business in Thailand.

Your task: Classify the following expense item into exactly ONE category.

Item: %q

Available Categories:
%s

Instructions:
1. Analyze the item description carefully.
2. Choose the single best-matching category ID.
3. Respond with ONLY a valid JSON object, no other text.

Output format:
{"id": "<category_id>", "confidence": <0.0-1.0>}

Example:
{"id": "C1", "confidence": 0.9}`, businessType, description, categoryList)

	response, _, err := e.pool.Generate(ctx, prompt, nil, timeout)
	if err != nil {
		return nil, err
	}

	payload := ExtractJSONObject(response)
	if payload == nil {
		return nil, fmt.Errorf("no JSON object in classification response")
	}
	var result Classification
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("classification parse error: %w", err)
	}
	result.ID = strings.ToUpper(strings.TrimSpace(result.ID))
	if result.ID == "" {
		return nil, fmt.Errorf("classification returned empty id")
	}
	return &result, nil
}
