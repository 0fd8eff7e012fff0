package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categories"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categorize"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

func newTestValidator() *Validator {
	engine := categorize.NewEngine(nil, 0.5)
	return New(engine, models.PipelineConfig{
		ToleranceFloor: 3.0,
		TolerancePct:   0.08,
	})
}

func validCandidate() *models.ExtractionCandidate {
	return &models.ExtractionCandidate{
		Header: &models.CandidateHeader{
			Merchant: "Coffee Corner",
			Date:     "31/12/2023",
			Total:    120.0,
		},
		Items: []models.CandidateItem{
			{Description: "Iced Latte", Amount: 65.0, CategoryID: "C1", Confidence: 0.9},
			{Description: "Americano", Amount: 55.0, CategoryID: "C1", Confidence: 0.85},
		},
	}
}

func TestValidateNilCandidate(t *testing.T) {
	v := newTestValidator()

	outcome := v.Validate(nil, models.BusinessTypeCoffee)

	assert.False(t, outcome.OK)
	assert.True(t, outcome.Flags.Has(models.FlagRefineEmpty))
}

func TestValidateUnknownBusinessType(t *testing.T) {
	v := newTestValidator()

	outcome := v.Validate(validCandidate(), models.BusinessType("BAKERY"))

	assert.False(t, outcome.OK)
	assert.True(t, outcome.Flags.Has(models.FlagInvalidBusinessType))
}

func TestValidateShapeInvalid(t *testing.T) {
	v := newTestValidator()

	outcome := v.Validate(&models.ExtractionCandidate{Items: validCandidate().Items}, models.BusinessTypeCoffee)

	assert.False(t, outcome.OK)
	assert.True(t, outcome.Flags.Has(models.FlagRefineShapeInvalid))
}

func TestValidateEmptyItemsIsNoValidItems(t *testing.T) {
	// a well-typed empty items array is a content failure, not a shape error
	v := newTestValidator()

	tests := []struct {
		name  string
		items []models.CandidateItem
	}{
		{name: "empty array", items: []models.CandidateItem{}},
		{name: "missing field", items: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := v.Validate(&models.ExtractionCandidate{
				Header: validCandidate().Header,
				Items:  tt.items,
			}, models.BusinessTypeCoffee)

			assert.False(t, outcome.OK)
			assert.True(t, outcome.Flags.Has(models.FlagRefineNoValidItems))
			assert.False(t, outcome.Flags.Has(models.FlagRefineShapeInvalid))
		})
	}
}

func TestValidateHappyPath(t *testing.T) {
	v := newTestValidator()

	outcome := v.Validate(validCandidate(), models.BusinessTypeCoffee)

	require.True(t, outcome.OK)
	assert.Empty(t, outcome.Flags.Slice())
	assert.Equal(t, "Coffee Corner", outcome.Header.Merchant)
	assert.Equal(t, "2023-12-31", outcome.Header.Date)
	assert.Equal(t, "120", outcome.Header.Total.String())

	require.Len(t, outcome.Items, 2)
	assert.Equal(t, "Iced Latte", outcome.Items[0].Description)
	assert.Equal(t, "65", outcome.Items[0].Amount.String())
	assert.Equal(t, "C1", outcome.Items[0].CategoryID)
	assert.Equal(t, categories.NameFor(models.BusinessTypeCoffee, "C1"), outcome.Items[0].CategoryName)
	assert.Equal(t, 0.9, outcome.Items[0].Confidence)
	assert.NotEmpty(t, outcome.Items[0].ID)
}

func TestValidateDropsNoiseItems(t *testing.T) {
	v := newTestValidator()
	candidate := validCandidate()
	candidate.Items = append(candidate.Items,
		models.CandidateItem{Description: "VAT 7%", Amount: 8.4},
		models.CandidateItem{Description: "เงินทอน", Amount: 80.0},
	)

	outcome := v.Validate(candidate, models.BusinessTypeCoffee)

	require.True(t, outcome.OK)
	assert.Len(t, outcome.Items, 2)
	assert.True(t, outcome.Flags.Has(models.FlagRefineItemNoiseRemoved))
}

func TestValidateDropsInvalidAmounts(t *testing.T) {
	v := newTestValidator()
	candidate := validCandidate()
	candidate.Items = append(candidate.Items,
		models.CandidateItem{Description: "Mystery line", Amount: "-"},
		models.CandidateItem{Description: "Free refill", Amount: 0.0},
		models.CandidateItem{Description: "Refund", Amount: -20.0},
		models.CandidateItem{Description: "", Amount: 30.0},
	)

	outcome := v.Validate(candidate, models.BusinessTypeCoffee)

	require.True(t, outcome.OK)
	assert.Len(t, outcome.Items, 2)
}

func TestValidateInvalidCategoryDropped(t *testing.T) {
	v := newTestValidator()
	candidate := validCandidate()
	candidate.Items[0].CategoryID = "F1" // restaurant id on a coffee branch

	outcome := v.Validate(candidate, models.BusinessTypeCoffee)

	require.True(t, outcome.OK)
	assert.True(t, outcome.Flags.Has(models.FlagRefineInvalidCategory))
	// "Iced Latte" has no rule keyword, so it ends up uncategorized
	assert.Empty(t, outcome.Items[0].CategoryID)
}

func TestValidateRuleBackfillForMissingCategory(t *testing.T) {
	v := newTestValidator()
	candidate := validCandidate()
	candidate.Items[0] = models.CandidateItem{Description: "นมสด Meiji 2L", Amount: 52.0}

	outcome := v.Validate(candidate, models.BusinessTypeCoffee)

	require.True(t, outcome.OK)
	assert.Equal(t, "C1", outcome.Items[0].CategoryID)
	assert.Equal(t, 1.0, outcome.Items[0].Confidence)
}

func TestValidateNoValidItems(t *testing.T) {
	v := newTestValidator()
	candidate := validCandidate()
	candidate.Items = []models.CandidateItem{
		{Description: "VAT 7%", Amount: 8.4},
		{Description: "CASH", Amount: 200.0},
	}

	outcome := v.Validate(candidate, models.BusinessTypeCoffee)

	assert.False(t, outcome.OK)
	assert.True(t, outcome.Flags.Has(models.FlagRefineNoValidItems))
	assert.Empty(t, outcome.Items)
}

func TestValidateHeaderRepairs(t *testing.T) {
	t.Run("invalid date flagged and cleared", func(t *testing.T) {
		v := newTestValidator()
		candidate := validCandidate()
		candidate.Header.Date = "2023/02/30"

		outcome := v.Validate(candidate, models.BusinessTypeCoffee)

		require.True(t, outcome.OK)
		assert.Empty(t, outcome.Header.Date)
		assert.True(t, outcome.Flags.Has(models.FlagRefineHeaderInvalidDate))
	})

	t.Run("numeric merchant flagged and cleared", func(t *testing.T) {
		v := newTestValidator()
		candidate := validCandidate()
		candidate.Header.Merchant = "0105556000751"

		outcome := v.Validate(candidate, models.BusinessTypeCoffee)

		require.True(t, outcome.OK)
		assert.Empty(t, outcome.Header.Merchant)
		assert.True(t, outcome.Flags.Has(models.FlagRefineHeaderMerchantNumeric))
	})

	t.Run("missing total autofilled from items", func(t *testing.T) {
		v := newTestValidator()
		candidate := validCandidate()
		candidate.Header.Total = nil

		outcome := v.Validate(candidate, models.BusinessTypeCoffee)

		require.True(t, outcome.OK)
		assert.Equal(t, "120", outcome.Header.Total.String())
		assert.True(t, outcome.Flags.Has(models.FlagRefineHeaderTotalMissing))
	})
}

func TestValidateTotalReconciliation(t *testing.T) {
	t.Run("within tolerance", func(t *testing.T) {
		v := newTestValidator()
		candidate := validCandidate()
		candidate.Header.Total = 127.0 // items 120, tolerance max(3, 9.6) = 9.6

		outcome := v.Validate(candidate, models.BusinessTypeCoffee)

		require.True(t, outcome.OK)
		assert.False(t, outcome.Flags.Has(models.FlagRefineTotalMismatch))
	})

	t.Run("beyond tolerance flags but stays valid", func(t *testing.T) {
		v := newTestValidator()
		candidate := validCandidate()
		candidate.Header.Total = 150.0

		outcome := v.Validate(candidate, models.BusinessTypeCoffee)

		require.True(t, outcome.OK)
		assert.True(t, outcome.Flags.Has(models.FlagRefineTotalMismatch))
	})
}

func TestValidateIdempotent(t *testing.T) {
	v := newTestValidator()

	first := v.Validate(validCandidate(), models.BusinessTypeCoffee)
	require.True(t, first.OK)

	// feed the normalized output back in as a candidate
	recandidate := &models.ExtractionCandidate{
		Header: &models.CandidateHeader{
			Merchant: first.Header.Merchant,
			Date:     first.Header.Date,
			Total:    first.Header.Total.String(),
		},
	}
	for _, item := range first.Items {
		recandidate.Items = append(recandidate.Items, models.CandidateItem{
			Description: item.Description,
			Amount:      item.Amount.String(),
			CategoryID:  item.CategoryID,
			Confidence:  item.Confidence,
		})
	}

	second := v.Validate(recandidate, models.BusinessTypeCoffee)

	require.True(t, second.OK)
	assert.Empty(t, second.Flags.Slice())
	assert.Equal(t, first.Header, second.Header)
	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Description, second.Items[i].Description)
		assert.True(t, first.Items[i].Amount.Equal(second.Items[i].Amount))
		assert.Equal(t, first.Items[i].CategoryID, second.Items[i].CategoryID)
		assert.Equal(t, first.Items[i].Confidence, second.Items[i].Confidence)
	}
}

func TestValidateWhitelistInvariant(t *testing.T) {
	v := newTestValidator()
	candidate := validCandidate()
	candidate.Items = append(candidate.Items,
		models.CandidateItem{Description: "Mystery snack", Amount: 25.0, CategoryID: "Z9"},
		models.CandidateItem{Description: "นมสด", Amount: 52.0},
	)

	outcome := v.Validate(candidate, models.BusinessTypeCoffee)

	require.True(t, outcome.OK)
	valid := categories.ValidIDs(models.BusinessTypeCoffee)
	for _, item := range outcome.Items {
		if item.CategoryID == "" {
			continue
		}
		_, ok := valid[item.CategoryID]
		assert.True(t, ok, "category %q not in whitelist", item.CategoryID)
	}
}
