package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BusinessType determines which expense category whitelist applies to a branch.
type BusinessType string

const (
	BusinessTypeCoffee     BusinessType = "COFFEE"
	BusinessTypeRestaurant BusinessType = "RESTAURANT"
)

// ParseBusinessType resolves a raw string into a known business type.
func ParseBusinessType(s string) (BusinessType, error) {
	switch BusinessType(strings.ToUpper(strings.TrimSpace(s))) {
	case BusinessTypeCoffee:
		return BusinessTypeCoffee, nil
	case BusinessTypeRestaurant:
		return BusinessTypeRestaurant, nil
	default:
		return "", fmt.Errorf("unknown business type: %q", s)
	}
}

// ReceiptStatus is the receipt lifecycle: DRAFT -> VERIFIED or REJECTED.
type ReceiptStatus string

const (
	StatusDraft    ReceiptStatus = "DRAFT"
	StatusVerified ReceiptStatus = "VERIFIED"
	StatusRejected ReceiptStatus = "REJECTED"
)

// ExpenseCategory is a single expense category definition. Category lists are
// static per business type and ordered: during rule matching the first
// category whose keyword matches wins.
type ExpenseCategory struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// LineItemDraft is one extracted expense line. Amount is always positive and
// rounded to 2 decimals; CategoryID is empty or a member of the active
// whitelist.
type LineItemDraft struct {
	ID           string          `json:"id,omitempty"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	Confidence   float64         `json:"confidence"`
	IsManualEdit bool            `json:"is_manual_edit"`
}

// ReceiptHeader holds the merchant-level fields extracted from a receipt.
type ReceiptHeader struct {
	Merchant string          `json:"merchant,omitempty"`
	Date     string          `json:"date,omitempty"` // ISO-8601 (YYYY-MM-DD)
	Total    decimal.Decimal `json:"total"`
}

// CandidateHeader is the untrusted header section of a model response.
// Amount-like fields stay interface{} because models return numbers, strings
// with separators, or null interchangeably.
type CandidateHeader struct {
	Merchant interface{} `json:"merchant"`
	Date     interface{} `json:"date"`
	Total    interface{} `json:"total"`
}

// CandidateItem is one untrusted line item from a model response.
type CandidateItem struct {
	Description string      `json:"description"`
	Amount      interface{} `json:"amount"`
	CategoryID  interface{} `json:"category_id"`
	Confidence  interface{} `json:"confidence"`
}

// ExtractionCandidate is the raw output of a vision or refinement call. It is
// never persisted directly; every candidate passes through the validator.
type ExtractionCandidate struct {
	Header            *CandidateHeader       `json:"header"`
	Items             []CandidateItem        `json:"items"`
	ConfidenceSummary map[string]interface{} `json:"confidence_summary,omitempty"`
	Source            string                 `json:"source,omitempty"`
	Meta              map[string]interface{} `json:"meta,omitempty"`
}

// QualityFlag marks a specific degradation detected during extraction or
// validation.
type QualityFlag string

const (
	FlagRefineEmpty                 QualityFlag = "gemini_refine_empty"
	FlagInvalidBusinessType         QualityFlag = "invalid_business_type"
	FlagRefineShapeInvalid          QualityFlag = "refine_shape_invalid"
	FlagRefineItemNoiseRemoved      QualityFlag = "refine_item_noise_removed"
	FlagRefineInvalidCategory       QualityFlag = "refine_invalid_category"
	FlagRefineNoValidItems          QualityFlag = "refine_no_valid_items"
	FlagRefineHeaderInvalidDate     QualityFlag = "refine_header_invalid_date"
	FlagRefineHeaderMerchantNumeric QualityFlag = "refine_header_merchant_numeric"
	FlagRefineHeaderTotalMissing    QualityFlag = "refine_header_total_missing"
	FlagRefineTotalMismatch         QualityFlag = "refine_total_mismatch"
	FlagVisionFallbackToOCR         QualityFlag = "vision_fallback_to_ocr"
	FlagFallbackEntityItems         QualityFlag = "fallback_entity_items"
	FlagHeaderTotalAutofill         QualityFlag = "header_total_autofill_items_sum"
	FlagHeaderTotalItemsMismatch    QualityFlag = "header_total_items_mismatch"
	FlagHeaderMerchantNumeric       QualityFlag = "header_merchant_numeric"
	FlagHeaderDateMissing           QualityFlag = "header_date_missing"
)

// FlagSet is a deduplicated, order-insensitive set of quality flags.
type FlagSet map[QualityFlag]struct{}

func NewFlagSet(flags ...QualityFlag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s.Add(f)
	}
	return s
}

func (s FlagSet) Add(f QualityFlag) {
	s[f] = struct{}{}
}

func (s FlagSet) Has(f QualityFlag) bool {
	_, ok := s[f]
	return ok
}

// Merge adds every flag from other into the set.
func (s FlagSet) Merge(other FlagSet) {
	for f := range other {
		s[f] = struct{}{}
	}
}

// Slice returns the flags sorted for stable output.
func (s FlagSet) Slice() []QualityFlag {
	out := make([]QualityFlag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var flags []QualityFlag
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	*s = NewFlagSet(flags...)
	return nil
}

// PipelinePath records which extraction strategy ultimately produced a draft.
// It is set exactly once per request and never changed afterwards.
type PipelinePath string

const (
	PathVisionDirect   PipelinePath = "vision_direct"
	PathOCRRefined     PipelinePath = "ocr_refined"
	PathOCRParser      PipelinePath = "ocr_parser"
	PathFallbackEntity PipelinePath = "fallback_entity"
)

// Timings holds per-stage processing durations in milliseconds.
type Timings struct {
	OCRMs    int64 `json:"ocr_ms,omitempty"`
	VisionMs int64 `json:"vision_ms,omitempty"`
	RefineMs int64 `json:"refine_ms,omitempty"`
	TotalMs  int64 `json:"total_ms"`
}

// ReceiptDraft is the pipeline output for one upload: a structured,
// not-yet-user-confirmed expense record.
type ReceiptDraft struct {
	Header       ReceiptHeader   `json:"header"`
	Items        []LineItemDraft `json:"items"`
	PipelinePath PipelinePath    `json:"pipeline_path"`
	AIRefined    bool            `json:"ai_refined"`
	NeedsReview  bool            `json:"needs_review"`
	QualityFlags FlagSet         `json:"quality_flags"`
	Timings      Timings         `json:"timings"`
}

// ItemsTotal sums the draft's item amounts.
func (d *ReceiptDraft) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// Entity is one structured field detected by the OCR collaborator.
type Entity struct {
	Type            string  `json:"type"`
	MentionText     string  `json:"mention_text"`
	Confidence      float64 `json:"confidence"`
	NormalizedValue string  `json:"normalized_value,omitempty"`
}

// Page carries page-level layout info from the OCR collaborator.
type Page struct {
	PageNumber int     `json:"page_number"`
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`
}

// OCRResult is the OCR collaborator output for one document.
type OCRResult struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
	Pages    []Page   `json:"pages"`
}

// ReceiptRecord is a persisted draft plus its lifecycle metadata.
type ReceiptRecord struct {
	ID         string        `json:"id"`
	BranchID   string        `json:"branch_id"`
	UserID     string        `json:"user_id"`
	Status     ReceiptStatus `json:"status"`
	ImageURL   string        `json:"image_url,omitempty"`
	Draft      ReceiptDraft  `json:"draft"`
	CreatedAt  time.Time     `json:"created_at"`
	VerifiedAt *time.Time    `json:"verified_at,omitempty"`
	VerifiedBy string        `json:"verified_by,omitempty"`
}
