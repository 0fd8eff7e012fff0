// Package validate normalizes AI extraction candidates into trusted receipt
// drafts. Every field of a candidate is treated as untrusted until it has
// passed through here.
package validate

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categories"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categorize"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/normalize"
)

// Outcome is the result of validating one extraction candidate. OK is false
// when the candidate is unusable and the caller must fall back; in that case
// Flags explains why. Non-fatal problems leave OK true with flags attached.
type Outcome struct {
	OK     bool
	Header models.ReceiptHeader
	Items  []models.LineItemDraft
	Flags  models.FlagSet
}

// Validator checks extraction candidates against the category whitelist and
// reconciles item sums against the stated total.
type Validator struct {
	engine         *categorize.Engine
	toleranceFloor float64
	tolerancePct   float64
}

// New creates a validator. The engine is used rule-only for category backfill.
func New(engine *categorize.Engine, cfg models.PipelineConfig) *Validator {
	return &Validator{
		engine:         engine,
		toleranceFloor: cfg.ToleranceFloor,
		tolerancePct:   cfg.TolerancePct,
	}
}

// Validate runs the full normalization pass over a candidate. It never
// panics on malformed input; anything it cannot repair it drops or flags.
func (v *Validator) Validate(candidate *models.ExtractionCandidate, businessType models.BusinessType) Outcome {
	outcome := Outcome{Flags: models.FlagSet{}}

	if candidate == nil {
		outcome.Flags.Add(models.FlagRefineEmpty)
		return outcome
	}

	whitelist, err := categories.ForType(businessType)
	if err != nil {
		outcome.Flags.Add(models.FlagInvalidBusinessType)
		return outcome
	}
	validIDs := make(map[string]bool, len(whitelist))
	for _, category := range whitelist {
		validIDs[category.ID] = true
	}

	if candidate.Header == nil {
		outcome.Flags.Add(models.FlagRefineShapeInvalid)
		return outcome
	}

	// An empty items array is well-typed; it falls through to the zero
	// survivors check below rather than a shape error.

	outcome.Items = v.validateItems(candidate.Items, businessType, validIDs, &outcome.Flags)
	if len(outcome.Items) == 0 {
		outcome.Flags.Add(models.FlagRefineNoValidItems)
		outcome.Items = nil
		return outcome
	}

	outcome.Header = v.validateHeader(candidate.Header, outcome.Items, &outcome.Flags)
	v.reconcileTotal(outcome.Header, outcome.Items, &outcome.Flags)

	outcome.OK = true
	return outcome
}

func (v *Validator) validateItems(raw []models.CandidateItem, businessType models.BusinessType, validIDs map[string]bool, flags *models.FlagSet) []models.LineItemDraft {
	items := make([]models.LineItemDraft, 0, len(raw))
	for _, candidate := range raw {
		description := normalize.CollapseWhitespace(normalize.StringFromAny(candidate.Description))
		if description == "" {
			continue
		}
		if normalize.IsNoise(description) {
			flags.Add(models.FlagRefineItemNoiseRemoved)
			continue
		}

		amount, ok := normalize.DecimalFromAny(candidate.Amount)
		if !ok {
			continue
		}

		item := models.LineItemDraft{
			ID:          uuid.New().String(),
			Description: description,
			Amount:      amount,
			Confidence:  normalize.ClampConfidence(normalize.FloatFromAny(candidate.Confidence)),
		}

		categoryID := strings.ToUpper(strings.TrimSpace(normalize.StringFromAny(candidate.CategoryID)))
		if categoryID != "" && !validIDs[categoryID] {
			flags.Add(models.FlagRefineInvalidCategory)
			categoryID = ""
		}
		if categoryID != "" {
			item.CategoryID = categoryID
			item.CategoryName = categories.NameFor(businessType, categoryID)
		} else if v.engine != nil {
			if result := v.engine.CategorizeRules(description, businessType); result.Source == categorize.SourceRule {
				item.CategoryID = result.CategoryID
				item.CategoryName = result.CategoryName
				item.Confidence = result.Confidence
			}
		}

		items = append(items, item)
	}
	return items
}

func (v *Validator) validateHeader(raw *models.CandidateHeader, items []models.LineItemDraft, flags *models.FlagSet) models.ReceiptHeader {
	header := models.ReceiptHeader{}

	merchant := normalize.CollapseWhitespace(normalize.StringFromAny(raw.Merchant))
	if merchant != "" && normalize.IsNumericOnly(merchant) {
		flags.Add(models.FlagRefineHeaderMerchantNumeric)
		merchant = ""
	}
	header.Merchant = merchant

	if rawDate := strings.TrimSpace(normalize.StringFromAny(raw.Date)); rawDate != "" {
		if date, ok := normalize.NormalizeDate(rawDate); ok {
			header.Date = date
		} else {
			flags.Add(models.FlagRefineHeaderInvalidDate)
		}
	}

	if total, ok := normalize.DecimalFromAny(raw.Total); ok {
		header.Total = total
	} else {
		flags.Add(models.FlagRefineHeaderTotalMissing)
		header.Total = sumItems(items)
	}

	return header
}

// reconcileTotal compares the item sum against the stated total within a
// tolerance of max(floor, sum*pct). Receipts legitimately carry service
// charges and rounding, so a mismatch flags for review instead of failing.
func (v *Validator) reconcileTotal(header models.ReceiptHeader, items []models.LineItemDraft, flags *models.FlagSet) {
	itemsTotal := sumItems(items)
	tolerance := decimal.NewFromFloat(v.toleranceFloor)
	if pct := itemsTotal.Mul(decimal.NewFromFloat(v.tolerancePct)); pct.GreaterThan(tolerance) {
		tolerance = pct
	}
	if itemsTotal.Sub(header.Total).Abs().GreaterThan(tolerance) {
		flags.Add(models.FlagRefineTotalMismatch)
	}
}

func sumItems(items []models.LineItemDraft) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total.Round(2)
}
