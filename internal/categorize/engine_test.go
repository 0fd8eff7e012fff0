package categorize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

type stubClassifier struct {
	suggestion *Suggestion
	err        error
	calls      int
}

func (s *stubClassifier) Classify(ctx context.Context, description string, businessType models.BusinessType) (*Suggestion, error) {
	s.calls++
	return s.suggestion, s.err
}

func TestCategorizeRuleLayer(t *testing.T) {
	tests := []struct {
		name         string
		description  string
		businessType models.BusinessType
		categoryID   string
	}{
		{name: "coffee beans", description: "เมล็ดกาแฟ อาราบิก้า 1kg", businessType: models.BusinessTypeCoffee, categoryID: "C1"},
		{name: "milk", description: "นมสด Meiji 2L", businessType: models.BusinessTypeCoffee, categoryID: "C1"},
		{name: "electricity", description: "ค่าไฟฟ้า เดือน ธ.ค.", businessType: models.BusinessTypeCoffee, categoryID: "C4"},
		{name: "pork for restaurant", description: "หมูสับ 2kg", businessType: models.BusinessTypeRestaurant, categoryID: "F1"},
		{name: "gas", description: "แก๊สหุงต้ม 15kg", businessType: models.BusinessTypeRestaurant, categoryID: "F3"},
		{name: "keyword match is case insensitive", description: "pos monthly fee", businessType: models.BusinessTypeCoffee, categoryID: "C6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &stubClassifier{}
			engine := NewEngine(classifier, 0.5)

			result := engine.Categorize(context.Background(), tt.description, tt.businessType)

			assert.Equal(t, tt.categoryID, result.CategoryID)
			assert.Equal(t, 1.0, result.Confidence)
			assert.Equal(t, SourceRule, result.Source)
			assert.Equal(t, 0, classifier.calls, "rule match must not reach the AI layer")
		})
	}
}

func TestCategorizeRuleOrderIsTieBreak(t *testing.T) {
	// ทิชชู่ appears in both C5 and C8 keyword neighborhoods for coffee; the
	// first category in declaration order must win.
	engine := NewEngine(nil, 0.5)

	result := engine.CategorizeRules("ทิชชู่ 2 แพ็ค", models.BusinessTypeCoffee)

	assert.Equal(t, "C5", result.CategoryID)
	assert.Equal(t, SourceRule, result.Source)
}

func TestCategorizeAIFallback(t *testing.T) {
	tests := []struct {
		name       string
		suggestion *Suggestion
		err        error
		categoryID string
		source     Source
	}{
		{name: "accepted above threshold", suggestion: &Suggestion{ID: "C7", Confidence: 0.8}, categoryID: "C7", source: SourceAI},
		{name: "rejected below threshold", suggestion: &Suggestion{ID: "C7", Confidence: 0.4}, source: SourceNone},
		{name: "rejected unknown id", suggestion: &Suggestion{ID: "X9", Confidence: 0.9}, source: SourceNone},
		{name: "restaurant id rejected for coffee", suggestion: &Suggestion{ID: "F1", Confidence: 0.9}, source: SourceNone},
		{name: "call error swallowed", err: errors.New("provider unavailable"), source: SourceNone},
		{name: "nil suggestion", source: SourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &stubClassifier{suggestion: tt.suggestion, err: tt.err}
			engine := NewEngine(classifier, 0.5)

			result := engine.Categorize(context.Background(), "ค่าลงโฆษณาออนไลน์", models.BusinessTypeCoffee)

			assert.Equal(t, 1, classifier.calls)
			assert.Equal(t, tt.source, result.Source)
			assert.Equal(t, tt.categoryID, result.CategoryID)
			if tt.source == SourceNone {
				assert.Equal(t, "Uncategorized", result.CategoryName)
				assert.Equal(t, 0.0, result.Confidence)
			}
		})
	}
}

func TestCategorizeRulesSkipsAI(t *testing.T) {
	classifier := &stubClassifier{suggestion: &Suggestion{ID: "C7", Confidence: 0.9}}
	engine := NewEngine(classifier, 0.5)

	result := engine.CategorizeRules("ไม่มีคำที่ตรงกับกฎ", models.BusinessTypeCoffee)

	assert.Equal(t, SourceNone, result.Source)
	assert.Equal(t, "Uncategorized", result.CategoryName)
	assert.Equal(t, 0, classifier.calls)
}

func TestCategorizeUnknownBusinessType(t *testing.T) {
	engine := NewEngine(nil, 0.5)

	result := engine.Categorize(context.Background(), "เมล็ดกาแฟ", models.BusinessType("BAKERY"))

	assert.Equal(t, SourceNone, result.Source)
}
