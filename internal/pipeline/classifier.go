package pipeline

import (
	"context"
	"time"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/ai"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categorize"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// AIClassifier adapts the model extractor to the categorization engine's
// classifier contract, baking in the configured call timeout.
type AIClassifier struct {
	extractor *ai.Extractor
	timeout   time.Duration
}

func NewAIClassifier(extractor *ai.Extractor, timeout time.Duration) *AIClassifier {
	return &AIClassifier{extractor: extractor, timeout: timeout}
}

func (c *AIClassifier) Classify(ctx context.Context, description string, businessType models.BusinessType) (*categorize.Suggestion, error) {
	classification, err := c.extractor.Classify(ctx, description, businessType, c.timeout)
	if err != nil {
		return nil, err
	}
	return &categorize.Suggestion{ID: classification.ID, Confidence: classification.Confidence}, nil
}
