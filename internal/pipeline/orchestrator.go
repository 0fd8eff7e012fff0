// Package pipeline drives one receipt upload through the extraction
// strategies: vision-direct, OCR plus AI refinement, deterministic OCR
// parsing, and entity fallback. Extraction failure is never an error for the
// caller; it degrades through the fallback chain and always yields a draft.
package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categorize"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/normalize"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/ocr"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/parser"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/validate"
)

// Extractor is the model collaborator surface the orchestrator needs. It is
// satisfied by *ai.Extractor; tests substitute a stub.
type Extractor interface {
	ExtractFromImage(ctx context.Context, imageBytes []byte, mimeType string, businessType models.BusinessType, timeout time.Duration, maxRetry int) (*models.ExtractionCandidate, error)
	RefineText(ctx context.Context, fullText string, businessType models.BusinessType, header parser.HeaderCandidates, items []parser.ItemCandidate, maxCandidateItems int, timeout time.Duration) (*models.ExtractionCandidate, error)
}

// Orchestrator sequences the extraction strategies for one upload. All
// collaborators are injected once at startup and treated as read-only.
type Orchestrator struct {
	extractor    Extractor
	ocrEngine    ocr.Engine
	preprocessor *ocr.Preprocessor
	validator    *validate.Validator
	categorizer  *categorize.Engine
	aiCfg        models.AIConfig
	limits       models.PipelineConfig
}

// New wires the orchestrator. extractor and ocrEngine may be nil; the
// corresponding stages are then skipped and the pipeline degrades.
func New(
	extractor Extractor,
	ocrEngine ocr.Engine,
	preprocessor *ocr.Preprocessor,
	validator *validate.Validator,
	categorizer *categorize.Engine,
	aiCfg models.AIConfig,
	limits models.PipelineConfig,
) *Orchestrator {
	return &Orchestrator{
		extractor:    extractor,
		ocrEngine:    ocrEngine,
		preprocessor: preprocessor,
		validator:    validator,
		categorizer:  categorizer,
		aiCfg:        aiCfg,
		limits:       limits,
	}
}

// Process runs the full pipeline for one upload. It always returns a draft;
// the caller decides what to do with a draft that needs review.
func (o *Orchestrator) Process(ctx context.Context, imageBytes []byte, mimeType string, businessType models.BusinessType) *models.ReceiptDraft {
	start := time.Now()
	draft := &models.ReceiptDraft{QualityFlags: models.FlagSet{}}

	image := ocr.NormalizedImage{Data: imageBytes, MIMEType: mimeType}
	if o.preprocessor != nil {
		image = o.preprocessor.Normalize(imageBytes, mimeType)
	}

	if o.aiCfg.Mode != "ocr_first" && o.extractor != nil {
		if o.tryVision(ctx, draft, image, businessType) {
			o.finalize(draft, start)
			return draft
		}
	}

	o.runOCRStage(ctx, draft, image, businessType)
	o.finalize(draft, start)
	return draft
}

// tryVision runs the vision-direct strategy. A true return means the draft is
// populated and the OCR stage is skipped.
func (o *Orchestrator) tryVision(ctx context.Context, draft *models.ReceiptDraft, image ocr.NormalizedImage, businessType models.BusinessType) bool {
	visionStart := time.Now()
	candidate, err := o.extractor.ExtractFromImage(
		ctx, image.Data, image.MIMEType, businessType,
		time.Duration(o.aiCfg.VisionTimeoutMS)*time.Millisecond,
		o.aiCfg.VisionMaxRetry,
	)
	draft.Timings.VisionMs = time.Since(visionStart).Milliseconds()
	if err != nil {
		log.Printf("[Pipeline] Vision extraction failed: %v", err)
	}

	outcome := o.validator.Validate(candidate, businessType)
	draft.QualityFlags.Merge(outcome.Flags)
	if !outcome.OK {
		draft.QualityFlags.Add(models.FlagVisionFallbackToOCR)
		return false
	}

	draft.Header = outcome.Header
	draft.Items = outcome.Items
	draft.PipelinePath = models.PathVisionDirect
	draft.AIRefined = true
	return true
}

// runOCRStage runs OCR, optional AI text refinement, the deterministic
// parser, and the entity fallback. It always leaves a path on the draft.
func (o *Orchestrator) runOCRStage(ctx context.Context, draft *models.ReceiptDraft, image ocr.NormalizedImage, businessType models.BusinessType) {
	ocrResult := &models.OCRResult{}
	if o.ocrEngine != nil {
		ocrStart := time.Now()
		result, err := o.ocrEngine.Recognize(ctx, image.Data, image.MIMEType)
		draft.Timings.OCRMs = time.Since(ocrStart).Milliseconds()
		if err != nil {
			log.Printf("[Pipeline] OCR failed: %v", err)
		} else {
			ocrResult = result
		}
	}

	headerCands, itemCands := parser.Parse(ocrResult.Text, ocrResult.Entities)

	refineAttempted := false
	if o.aiCfg.RefineEnabled && o.extractor != nil && strings.TrimSpace(ocrResult.Text) != "" {
		refineAttempted = true
		refineStart := time.Now()
		candidate, err := o.extractor.RefineText(
			ctx, ocrResult.Text, businessType, headerCands, itemCands,
			o.limits.MaxCandidateItems,
			time.Duration(o.aiCfg.RefineTimeoutMS)*time.Millisecond,
		)
		draft.Timings.RefineMs = time.Since(refineStart).Milliseconds()
		if err != nil {
			log.Printf("[Pipeline] Text refinement failed: %v", err)
		}

		outcome := o.validator.Validate(candidate, businessType)
		draft.QualityFlags.Merge(outcome.Flags)
		if outcome.OK {
			draft.Header = outcome.Header
			draft.Items = outcome.Items
			draft.PipelinePath = models.PathOCRRefined
			draft.AIRefined = true
			return
		}
	}

	draft.Header = o.headerFromCandidates(headerCands)
	draft.Items = o.itemsFromParser(ctx, itemCands, businessType)
	draft.PipelinePath = models.PathOCRParser
	if refineAttempted {
		draft.NeedsReview = true
	}

	if len(draft.Items) == 0 {
		o.entityFallback(draft, ocrResult.Entities, businessType)
	}
}

// entityFallback builds low-confidence items straight from OCR entities when
// every other strategy produced nothing.
func (o *Orchestrator) entityFallback(draft *models.ReceiptDraft, entities []models.Entity, businessType models.BusinessType) {
	draft.PipelinePath = models.PathFallbackEntity
	draft.QualityFlags.Add(models.FlagFallbackEntityItems)
	draft.NeedsReview = true

	maxItems := o.limits.MaxEntityItems
	if maxItems <= 0 {
		maxItems = 20
	}

	for _, entity := range entities {
		if len(draft.Items) >= maxItems {
			break
		}
		if isHeaderEntityType(entity.Type) {
			continue
		}
		description := normalize.CollapseWhitespace(entity.MentionText)
		if description == "" || normalize.IsNoise(description) {
			continue
		}

		amount := decimal.Zero
		if desc, parsed, ok := parser.ParseItemLine(description); ok {
			description = desc
			amount = parsed
		}

		item := models.LineItemDraft{
			ID:          uuid.New().String(),
			Description: description,
			Amount:      amount,
			Confidence:  0.3,
		}
		if result := o.categorizer.CategorizeRules(description, businessType); result.Source == categorize.SourceRule {
			item.CategoryID = result.CategoryID
			item.CategoryName = result.CategoryName
		}
		draft.Items = append(draft.Items, item)
	}
}

// finalize reconciles the header against the items and computes the review
// verdict shared by every path.
func (o *Orchestrator) finalize(draft *models.ReceiptDraft, start time.Time) {
	itemsTotal := draft.ItemsTotal()

	if draft.Header.Total.IsZero() && itemsTotal.GreaterThan(decimal.Zero) {
		draft.Header.Total = itemsTotal
		draft.QualityFlags.Add(models.FlagHeaderTotalAutofill)
	} else if itemsTotal.GreaterThan(decimal.Zero) {
		tolerance := decimal.NewFromFloat(o.limits.ToleranceFloor)
		if pct := itemsTotal.Mul(decimal.NewFromFloat(o.limits.TolerancePct)); pct.GreaterThan(tolerance) {
			tolerance = pct
		}
		if itemsTotal.Sub(draft.Header.Total).Abs().GreaterThan(tolerance) {
			draft.QualityFlags.Add(models.FlagHeaderTotalItemsMismatch)
			draft.NeedsReview = true
		}
	}

	if draft.Header.Merchant != "" && normalize.IsNumericOnly(draft.Header.Merchant) {
		draft.Header.Merchant = ""
		draft.QualityFlags.Add(models.FlagHeaderMerchantNumeric)
		draft.NeedsReview = true
	}
	if draft.Header.Date == "" {
		draft.QualityFlags.Add(models.FlagHeaderDateMissing)
		draft.NeedsReview = true
	}

	draft.Timings.TotalMs = time.Since(start).Milliseconds()
}

// headerFromCandidates picks the best deterministic candidate per field:
// highest confidence that survives normalization.
func (o *Orchestrator) headerFromCandidates(cands parser.HeaderCandidates) models.ReceiptHeader {
	header := models.ReceiptHeader{}

	for _, candidate := range parser.Sorted(cands.Merchant) {
		merchant := normalize.CollapseWhitespace(candidate.Value)
		if merchant != "" && !normalize.IsNumericOnly(merchant) {
			header.Merchant = merchant
			break
		}
	}
	for _, candidate := range parser.Sorted(cands.Date) {
		if date, ok := normalize.NormalizeDate(candidate.Value); ok {
			header.Date = date
			break
		}
	}
	for _, candidate := range parser.Sorted(cands.Total) {
		if total, ok := normalize.ParseAmount(candidate.Value); ok {
			header.Total = total
			break
		}
	}
	return header
}

// itemsFromParser turns deterministic candidates into draft items. Parser
// items carry no model category, so each goes through the full categorizer:
// keyword rules first, AI classifier for descriptions no rule covers.
func (o *Orchestrator) itemsFromParser(ctx context.Context, cands []parser.ItemCandidate, businessType models.BusinessType) []models.LineItemDraft {
	items := make([]models.LineItemDraft, 0, len(cands))
	for _, candidate := range cands {
		item := models.LineItemDraft{
			ID:          uuid.New().String(),
			Description: candidate.Description,
			Amount:      candidate.Amount,
		}
		if result := o.categorizer.Categorize(ctx, candidate.Description, businessType); result.Source != categorize.SourceNone {
			item.CategoryID = result.CategoryID
			item.CategoryName = result.CategoryName
			item.Confidence = result.Confidence
		}
		items = append(items, item)
	}
	return items
}

func isHeaderEntityType(entityType string) bool {
	lower := strings.ToLower(entityType)
	for _, marker := range []string{"date", "total", "supplier", "merchant", "vendor", "tax", "currency", "subtotal"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
