package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categories"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// Extractor handles structured receipt extraction through the model client
// pool: vision-direct extraction, OCR text refinement and item
// classification. Responses that cannot be decoded into a candidate come back
// as errors, and the caller degrades through the pipeline's fallback chain.
type Extractor struct {
	pool *Pool
}

// NewExtractor creates an extractor over a model client pool.
func NewExtractor(pool *Pool) *Extractor {
	return &Extractor{pool: pool}
}

// ExtractFromImage asks the vision model pool to read the receipt image
// directly and return a structured candidate. maxRetry bounds re-attempts on
// unparsable responses; a timeout ends the attempt loop immediately.
func (e *Extractor) ExtractFromImage(
	ctx context.Context,
	imageBytes []byte,
	mimeType string,
	businessType models.BusinessType,
	timeout time.Duration,
	maxRetry int,
) (*models.ExtractionCandidate, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if !strings.HasPrefix(mime, "image/") && mime != "application/pdf" {
		return nil, fmt.Errorf("unsupported mime type for vision extraction: %q", mime)
	}

	prompt, err := buildVisionPrompt(businessType)
	if err != nil {
		return nil, err
	}
	image := &ImagePart{Data: imageBytes, MIMEType: mime}

	attempts := maxRetry + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, modelName, err := e.pool.Generate(ctx, prompt, image, timeout)
		if err != nil {
			return nil, err
		}

		candidate, err := decodeCandidate(response)
		if err != nil {
			log.Printf("[Vision] unusable model response (attempt=%d/%d): %v", attempt, attempts, err)
			lastErr = err
			continue
		}
		candidate.Source = "GEMINI_VISION"
		candidate.Meta = map[string]interface{}{"model": modelName}
		return candidate, nil
	}
	return nil, fmt.Errorf("vision extraction produced no usable candidate: %w", lastErr)
}

// decodeCandidate parses a raw model response into an extraction candidate,
// requiring at least a well-formed header object and a non-empty items array.
// Everything beyond basic shape is left to the validator.
func decodeCandidate(response string) (*models.ExtractionCandidate, error) {
	payload := ExtractJSONObject(response)
	if payload == nil {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	var candidate models.ExtractionCandidate
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	if candidate.Header == nil {
		return nil, fmt.Errorf("candidate missing header")
	}
	if len(candidate.Items) == 0 {
		return nil, fmt.Errorf("candidate has no items")
	}
	return &candidate, nil
}

func buildVisionPrompt(businessType models.BusinessType) (string, error) {
	categoryList, validIDs, err := categoryPromptSection(businessType)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`You are an accounting OCR assistant for a %s business in Thailand.
Read the receipt image and extract only reliable structured data.

Allowed category IDs:
%s

Rules:
1) Keep only purchased line items with positive amount.
2) Ignore tax IDs, loyalty/member points, payment references, QR, phone numbers.
3) Preserve Thai text as-is from the receipt where possible.
4) date must be YYYY-MM-DD when confidently parsed, otherwise null.
5) merchant should be store name (not numeric-only).
6) category_id must be one of allowed IDs, otherwise null.
7) Return strict JSON only, no markdown.

Output JSON:
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
}`, businessType, categoryList, validIDs), nil
}

// categoryPromptSection renders the whitelist for prompt use.
func categoryPromptSection(businessType models.BusinessType) (string, string, error) {
	cats, err := categories.ForType(businessType)
	if err != nil {
		return "", "", err
	}
	var lines []string
	var ids []string
	for _, c := range cats {
		lines = append(lines, fmt.Sprintf("- %s: %s", c.ID, c.Name))
		ids = append(ids, c.ID)
	}
	return strings.Join(lines, "\n"), "[" + strings.Join(ids, " ") + "]", nil
}
