package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

const candidateJSON = `{
	"header": {"merchant": "Coffee Corner", "date": "2023-12-31", "total": 120.0},
	"items": [{"description": "Iced Latte", "amount": 65.0, "category_id": "C1", "confidence": 0.9}]
}`

func TestExtractFromImage(t *testing.T) {
	provider := &fakeProvider{name: "gemini/test", text: "```json\n" + candidateJSON + "\n```"}
	extractor := NewExtractor(NewPool(provider))

	candidate, err := extractor.ExtractFromImage(
		context.Background(), []byte("img"), "image/jpeg",
		models.BusinessTypeCoffee, time.Second, 0,
	)

	require.NoError(t, err)
	require.NotNil(t, candidate.Header)
	assert.Equal(t, "Coffee Corner", candidate.Header.Merchant)
	require.Len(t, candidate.Items, 1)
	assert.Equal(t, "GEMINI_VISION", candidate.Source)
	assert.Equal(t, "gemini/test", candidate.Meta["model"])
}

func TestExtractFromImageRejectsBadInput(t *testing.T) {
	extractor := NewExtractor(NewPool(&fakeProvider{name: "gemini/test", text: candidateJSON}))

	_, err := extractor.ExtractFromImage(context.Background(), nil, "image/jpeg", models.BusinessTypeCoffee, time.Second, 0)
	assert.Error(t, err, "empty payload")

	_, err = extractor.ExtractFromImage(context.Background(), []byte("x"), "text/plain", models.BusinessTypeCoffee, time.Second, 0)
	assert.Error(t, err, "unsupported mime type")
}

func TestExtractFromImageUnusableResponse(t *testing.T) {
	provider := &fakeProvider{name: "gemini/test", text: "I could not read this receipt"}
	extractor := NewExtractor(NewPool(provider))

	_, err := extractor.ExtractFromImage(
		context.Background(), []byte("img"), "image/jpeg",
		models.BusinessTypeCoffee, time.Second, 1,
	)

	require.Error(t, err)
	assert.Equal(t, 2, provider.calls, "maxRetry=1 means two attempts")
}

func TestDecodeCandidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: candidateJSON},
		{name: "missing header", input: `{"items":[{"description":"x","amount":1}]}`, wantErr: true},
		{name: "empty items", input: `{"header":{"merchant":"x"},"items":[]}`, wantErr: true},
		{name: "not json", input: "hello", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := decodeCandidate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, candidate.Header)
			}
		})
	}
}
