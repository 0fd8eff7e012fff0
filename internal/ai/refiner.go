package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/parser"
)

// RefineText issues one refinement call per receipt: the raw OCR text plus
// the deterministic parser's candidates go in, and a strict structured
// candidate comes out. maxCandidateItems bounds how many parser items are
// shown to the model.
func (e *Extractor) RefineText(
	ctx context.Context,
	fullText string,
	businessType models.BusinessType,
	header parser.HeaderCandidates,
	items []parser.ItemCandidate,
	maxCandidateItems int,
	timeout time.Duration,
) (*models.ExtractionCandidate, error) {
	categoryList, validIDs, err := categoryPromptSection(businessType)
	if err != nil {
		return nil, err
	}

	if maxCandidateItems > 0 && len(items) > maxCandidateItems {
		items = items[:maxCandidateItems]
	}
	candidatesJSON, err := json.Marshal(map[string]interface{}{
		"header_candidates":    header,
		"line_item_candidates": items,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates payload: %w", err)
	}

	prompt := fmt.Sprintf(`You are a receipt extraction assistant for a %s business in Thailand.
Refine noisy OCR output and return strict JSON only.

Allowed category IDs:
%s

Rules:
1) Return only real purchased items.
2) Remove noise lines (tax id, member points, payment method, QR, references).
3) amount must be positive float.
4) date must be YYYY-MM-DD when possible, otherwise null.
5) merchant should be a store name, not numeric-only tax IDs.
6) category_id must be one of allowed IDs, else null.
7) If uncertain, keep item with lower confidence but still valid structure.

OCR full text:
%s

OCR candidates JSON:
%s

Output JSON format:
{
  "header": {
    "merchant": "string|null",
    "date": "YYYY-MM-DD|null",
    "total": 0.0
  },
  "items": [
    {
      "description": "string",
      "amount": 0.0,
      "category_id": "one of %s or null",
      "confidence": 0.0
    }
  ],
  "confidence_summary": {
    "overall": 0.0,
    "notes": ["short reason"]
  }
}`, businessType, categoryList, fullText, candidatesJSON, validIDs)

	response, modelName, err := e.pool.Generate(ctx, prompt, nil, timeout)
	if err != nil {
		return nil, err
	}

	candidate, err := decodeCandidate(response)
	if err != nil {
		return nil, fmt.Errorf("refinement produced no usable candidate: %w", err)
	}
	candidate.Source = "GEMINI_REFINE"
	candidate.Meta = map[string]interface{}{"model": modelName}
	return candidate, nil
}
